package twitcheventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

const (
	cheerGiftName  = "Cheer"
	minReconnect   = 5 * time.Second
	maxReconnect   = time.Minute
	recentIDsLimit = 512
)

// Handler は配信元のイベントを受け取る側（ingest.Ingestor）
type Handler interface {
	HandleGift(raw types.RawGift) error
	HandleChat(raw types.RawChat) error
}

type Config struct {
	ClientID          string
	AccessToken       string
	BroadcasterUserID string
}

func (c Config) validate() error {
	if c.ClientID == "" || c.AccessToken == "" || c.BroadcasterUserID == "" {
		return fmt.Errorf("twitch client id, access token and user id are required")
	}
	return nil
}

// Source は Twitch EventSub をライブイベントの配信元として使う。
// cheer をギフト、チャットメッセージをチャットとして Handler に渡す。
type Source struct {
	cfg     Config
	handler Handler

	mu        sync.RWMutex
	client    *twitch.Client
	connected bool
	lastError error

	seen *recentIDs
}

func NewSource(cfg Config, handler Handler) (*Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Source{
		cfg:     cfg,
		handler: handler,
		seen:    newRecentIDs(recentIDsLimit),
	}, nil
}

// Run は ctx がキャンセルされるまで接続を維持する。切断時は間隔を空けて再接続する。
func (s *Source) Run(ctx context.Context) error {
	backoff := minReconnect
	for {
		client := s.setupClient()

		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				client.Close()
			case <-stop:
			}
		}()

		logger.Info("Connecting to EventSub...")
		err := client.Connect()
		close(stop)
		s.setConnected(false, err)

		if ctx.Err() != nil {
			logger.Info("EventSub source stopped")
			return nil
		}
		logger.Warn("EventSub connection closed, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxReconnect)
	}
}

// IsConnected returns whether EventSub is connected
func (s *Source) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastError returns the last EventSub error
func (s *Source) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Source) setConnected(connected bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	if err != nil {
		s.lastError = err
	}
}

func (s *Source) setupClient() *twitch.Client {
	client := twitch.NewClient()

	client.OnError(func(err error) {
		logger.Error("EventSub error", zap.Error(err))
		s.setConnected(false, err)
	})
	client.OnWelcome(func(message twitch.WelcomeMessage) {
		logger.Info("EventSub connected successfully")
		s.mu.Lock()
		s.connected = true
		s.lastError = nil
		s.mu.Unlock()

		s.subscribe(message.Payload.Session.ID)
	})
	client.OnNotification(func(message twitch.NotificationMessage) {
		if message.Payload.Event == nil {
			return
		}
		s.dispatch(message.Payload.Subscription.Type, *message.Payload.Event)
	})
	client.OnKeepAlive(func(message twitch.KeepAliveMessage) {
		s.setConnected(true, nil)
	})
	client.OnRevoke(func(message twitch.RevokeMessage) {
		logger.Warn("EventSub subscription revoked",
			zap.String("type", string(message.Payload.Subscription.Type)),
			zap.String("status", message.Payload.Subscription.Status))
	})

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return client
}

func (s *Source) subscribe(sessionID string) {
	events := []twitch.EventSubscription{
		twitch.SubChannelCheer,
		twitch.SubChannelChatMessage,
	}

	for _, event := range events {
		_, err := twitch.SubscribeEvent(twitch.SubscribeRequest{
			SessionID:   sessionID,
			ClientID:    s.cfg.ClientID,
			AccessToken: s.cfg.AccessToken,
			Event:       event,
			Condition: map[string]string{
				"broadcaster_user_id": s.cfg.BroadcasterUserID,
				"user_id":             s.cfg.BroadcasterUserID,
			},
		})
		if err != nil {
			logger.Error("Failed to subscribe to event",
				zap.String("event", string(event)),
				zap.Error(err))
			// エラーが発生しても他のイベントのサブスクリプションを続ける
			continue
		}
		logger.Info("Successfully subscribed to event", zap.String("event", string(event)))
	}
}

func (s *Source) dispatch(subType twitch.EventSubscription, payload json.RawMessage) {
	logger.Debug("Received EventSub notification",
		zap.String("type", string(subType)),
		zap.String("data", string(payload)))

	switch subType {
	case twitch.SubChannelCheer:
		var evt twitch.EventChannelCheer
		if err := json.Unmarshal(payload, &evt); err != nil {
			logger.Error("Failed to parse cheer event", zap.Error(err))
			return
		}
		s.handleCheer(evt)

	case twitch.SubChannelChatMessage:
		var evt twitch.EventChannelChatMessage
		if err := json.Unmarshal(payload, &evt); err != nil {
			logger.Error("Failed to parse channel chat message event", zap.Error(err))
			return
		}
		s.handleChat(evt)

	default:
		logger.Debug("Unhandled EventSub notification", zap.String("type", string(subType)))
	}
}

func (s *Source) handleCheer(evt twitch.EventChannelCheer) {
	if err := s.handler.HandleGift(CheerToGift(evt)); err != nil {
		logger.Warn("Failed to forward cheer", zap.Error(err))
		return
	}

	// cheer のメッセージにも名乗りが含まれることがあるのでチャットとしても流す
	if chat, ok := CheerToChat(evt); ok {
		if err := s.handler.HandleChat(chat); err != nil {
			logger.Warn("Failed to forward cheer message", zap.Error(err))
		}
	}
}

func (s *Source) handleChat(evt twitch.EventChannelChatMessage) {
	if evt.MessageId != "" && !s.seen.Add(evt.MessageId) {
		logger.Debug("Duplicate chat message detected, skipping", zap.String("message_id", evt.MessageId))
		return
	}
	if err := s.handler.HandleChat(ChatToRaw(evt)); err != nil {
		logger.Warn("Failed to forward chat message", zap.Error(err))
	}
}

// CheerToGift は cheer を1回分のギフトに変換する。
// cheer にはバーストが無いので常に確定イベントになる。匿名 cheer はユーザーIDが無いため後段で捨てられる。
func CheerToGift(evt twitch.EventChannelCheer) types.RawGift {
	return types.RawGift{
		UserID:         evt.User.UserID,
		Nickname:       evt.User.UserName,
		GiftName:       cheerGiftName,
		GiftCount:      1,
		CoinsPerGift:   evt.Bits,
		IsFinalInBurst: true,
	}
}

// CheerToChat は cheer のメッセージ本文からチャットを作る（"Cheer100" などの部分は除く）
func CheerToChat(evt twitch.EventChannelCheer) (types.RawChat, bool) {
	if evt.User.UserID == "" {
		return types.RawChat{}, false
	}

	words := strings.Fields(evt.Message)
	kept := words[:0]
	for _, word := range words {
		if isCheermote(word) {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		return types.RawChat{}, false
	}

	return types.RawChat{
		UserID:      evt.User.UserID,
		Nickname:    evt.User.UserName,
		CommentText: strings.Join(kept, " "),
	}, true
}

// isCheermote は "Cheer100" のような英字+数字の語か
func isCheermote(word string) bool {
	i := len(word)
	for i > 0 && word[i-1] >= '0' && word[i-1] <= '9' {
		i--
	}
	if i == len(word) || i == 0 {
		return false
	}
	for _, r := range word[:i] {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func ChatToRaw(evt twitch.EventChannelChatMessage) types.RawChat {
	return types.RawChat{
		UserID:      evt.Chatter.ChatterUserId,
		Nickname:    evt.Chatter.ChatterUserName,
		CommentText: evt.Message.Text,
	}
}

// recentIDs は直近に見たメッセージIDを上限付きで覚える
type recentIDs struct {
	mu    sync.Mutex
	limit int
	order []string
	set   map[string]struct{}
}

func newRecentIDs(limit int) *recentIDs {
	return &recentIDs{limit: limit, set: make(map[string]struct{}, limit)}
}

// Add は初めて見たIDなら true を返す
func (r *recentIDs) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.set[id]; ok {
		return false
	}
	r.set[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.limit {
		delete(r.set, r.order[0])
		r.order = r.order[1:]
	}
	return true
}
