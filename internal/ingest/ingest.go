package ingest

import (
	"context"
	"time"

	"github.com/Tirta71/live-tiktok/internal/localdb"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"go.uber.org/zap"
)

// Engine は生イベントを受け取る側（correlator.Engine）
type Engine interface {
	HandleGift(raw types.RawGift) error
	HandleChat(raw types.RawChat) error
}

// Journal は受信したイベントの記録先
type Journal func(row localdb.LiveEventRow) error

// DBJournal は live_events テーブルに記録する Journal
func DBJournal(row localdb.LiveEventRow) error {
	_, err := localdb.AddLiveEvent(row)
	return err
}

// Ingestor は配信元のイベントをエンジンに渡し、履歴に残す。
// Twitch EventSub とデバッグAPIの両方から使う。
type Ingestor struct {
	engine  Engine
	journal Journal
	now     func() time.Time
}

func New(engine Engine, journal Journal) *Ingestor {
	return &Ingestor{engine: engine, journal: journal, now: time.Now}
}

func (i *Ingestor) HandleGift(raw types.RawGift) error {
	if err := i.engine.HandleGift(raw); err != nil {
		return err
	}

	// 途中経過のバーストは記録しない
	if !raw.IsFinalInBurst {
		return nil
	}
	count := raw.GiftCount
	if count <= 0 {
		count = 1
	}
	i.record(localdb.LiveEventRow{
		Kind:      localdb.LiveEventGift,
		UserID:    raw.UserID,
		Nickname:  raw.Nickname,
		GiftName:  raw.GiftName,
		GiftCount: count,
		Coins:     count * max(raw.CoinsPerGift, 0),
		Final:     raw.IsFinalInBurst,
	})
	return nil
}

func (i *Ingestor) HandleChat(raw types.RawChat) error {
	if err := i.engine.HandleChat(raw); err != nil {
		return err
	}

	i.record(localdb.LiveEventRow{
		Kind:     localdb.LiveEventChat,
		UserID:   raw.UserID,
		Nickname: raw.Nickname,
		Text:     raw.CommentText,
	})
	return nil
}

func (i *Ingestor) record(row localdb.LiveEventRow) {
	if i.journal == nil {
		return
	}
	row.CreatedAt = i.now().UnixMilli()
	if err := i.journal(row); err != nil {
		logger.Warn("Failed to journal live event",
			zap.String("kind", row.Kind),
			zap.String("user_id", row.UserID),
			zap.Error(err))
	}
}

// RunRetention は起動時と interval ごとに retention より古い履歴を削除する
func RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}

	purge := func() {
		cutoff := time.Now().Add(-retention).UnixMilli()
		deleted, err := localdb.CleanupLiveEventsBefore(cutoff)
		if err != nil {
			logger.Warn("Failed to purge live event history", zap.Error(err))
			return
		}
		if deleted > 0 {
			logger.Info("Purged live event history", zap.Int64("deleted", deleted))
		}
	}

	purge()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
