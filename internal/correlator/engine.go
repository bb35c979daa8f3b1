package correlator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Tirta71/live-tiktok/internal/claim"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultMatchWindow      = 5 * time.Minute
	DefaultMaxComments      = 5
	DefaultCoinsPerSpin     = 30
	DefaultMaxSpinsPerEvent = 100
	DefaultSpinAnimation    = 6 * time.Second
	DefaultSpinCooldown     = 2 * time.Second
	DefaultDuplicateTTL     = 5 * time.Second
	DefaultIdleSweepFactor  = 3

	minSweepInterval = 30 * time.Second
	inboxSize        = 256
	persistTimeout   = 10 * time.Second
)

// ErrEngineStopped は Run が終了した後に操作しようとした場合に返る
var ErrEngineStopped = errors.New("correlator: engine stopped")

// Config はエンジンの動作パラメータ
type Config struct {
	MatchWindow      time.Duration // 0 で無効
	MaxComments      int
	BufferPolicy     BufferPolicy
	CoinsPerSpin     int
	MaxSpinsPerEvent int // 1回のギフトで積むスピンの上限
	SpinAnimation    time.Duration
	SpinCooldown     time.Duration
	DuplicateTTL     time.Duration
	IdleSweepFactor  int // 0 で無効
}

func DefaultConfig() Config {
	return Config{
		MatchWindow:      DefaultMatchWindow,
		MaxComments:      DefaultMaxComments,
		BufferPolicy:     BufferPolicyClear,
		CoinsPerSpin:     DefaultCoinsPerSpin,
		MaxSpinsPerEvent: DefaultMaxSpinsPerEvent,
		SpinAnimation:    DefaultSpinAnimation,
		SpinCooldown:     DefaultSpinCooldown,
		DuplicateTTL:     DefaultDuplicateTTL,
		IdleSweepFactor:  DefaultIdleSweepFactor,
	}
}

// Sink は視聴者向けの通知先。配送の完了は待たない。
type Sink interface {
	Emit(event string, payload any)
}

// SinkFunc は関数を Sink として使うためのアダプタ
type SinkFunc func(event string, payload any)

func (f SinkFunc) Emit(event string, payload any) {
	f(event, payload)
}

// WinnerStore は当選記録の保存先
type WinnerStore interface {
	SaveWinner(ctx context.Context, sub types.ResultSubmission) (types.WinnerRecord, error)
}

// SpinStatus はスピン待ち行列の状態
type SpinStatus struct {
	Pending   int  `json:"pending"`
	Animating bool `json:"animating"`
}

// Engine はギフト・チャット・名乗りの突き合わせを1つのgoroutineで処理する。
// 状態（台帳・スピン待ち行列・重複ガード）は Run のgoroutineだけが触る。
type Engine struct {
	cfg   Config
	clock Clock
	sink  Sink
	store WinnerStore

	inbox   chan func()
	stopped chan struct{}
	once    sync.Once

	ledger *Ledger
	spins  *SpinScheduler
	guard  *DuplicateGuard

	persisting sync.WaitGroup
}

// NewEngine はエンジンを作成する。clock が nil ならシステム時刻を使う。
func NewEngine(cfg Config, sink Sink, store WinnerStore, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.MaxComments <= 0 {
		cfg.MaxComments = DefaultMaxComments
	}
	if cfg.CoinsPerSpin <= 0 {
		cfg.CoinsPerSpin = DefaultCoinsPerSpin
	}
	if cfg.MaxSpinsPerEvent <= 0 {
		cfg.MaxSpinsPerEvent = DefaultMaxSpinsPerEvent
	}
	if cfg.BufferPolicy == "" {
		cfg.BufferPolicy = BufferPolicyClear
	}

	e := &Engine{
		cfg:     cfg,
		clock:   clock,
		sink:    sink,
		store:   store,
		inbox:   make(chan func(), inboxSize),
		stopped: make(chan struct{}),
		ledger:  NewLedger(cfg.MaxComments),
		guard:   NewDuplicateGuard(cfg.DuplicateTTL, clock),
	}
	e.spins = newSpinScheduler(cfg, sink, clock, e.postAsync)
	return e
}

// Run はコンテキストがキャンセルされるまでイベントを処理する
func (e *Engine) Run(ctx context.Context) error {
	defer e.once.Do(func() { close(e.stopped) })

	logger.Info("Correlation engine started",
		zap.Duration("match_window", e.cfg.MatchWindow),
		zap.Int("max_comments", e.cfg.MaxComments),
		zap.String("buffer_policy", string(e.cfg.BufferPolicy)),
		zap.Int("coins_per_spin", e.cfg.CoinsPerSpin))

	e.scheduleSweep()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Correlation engine stopped")
			return ctx.Err()
		case fn := <-e.inbox:
			fn()
		}
	}
}

// post は処理をエンジンのgoroutineに渡す
func (e *Engine) post(fn func()) error {
	select {
	case <-e.stopped:
		return ErrEngineStopped
	default:
	}
	select {
	case e.inbox <- fn:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// タイマーや保存goroutineから戻すとき用（停止後は捨てる）
func (e *Engine) postAsync(fn func()) {
	_ = e.post(fn)
}

// call は処理をエンジンのgoroutineで実行し、完了を待つ
func (e *Engine) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.post(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync はそれまでに投入した処理がすべて終わるまで待つ
func (e *Engine) Sync(ctx context.Context) error {
	return e.call(ctx, func() {})
}

// Flush は実行中の当選記録の保存がすべて終わるまで待つ
func (e *Engine) Flush() {
	e.persisting.Wait()
}

// HandleGift はライブ配信元からのギフトを受け付ける
func (e *Engine) HandleGift(raw types.RawGift) error {
	return e.post(func() { e.onGift(raw) })
}

// HandleChat はライブ配信元からのチャットを受け付ける
func (e *Engine) HandleChat(raw types.RawChat) error {
	return e.post(func() { e.onChat(raw) })
}

// ResolveClaim は名乗りを処理済みにして台帳から消す
func (e *Engine) ResolveClaim(userID string) error {
	return e.post(func() { e.onResolve(userID) })
}

// SubmitResult は視聴者画面からのスピン結果を受け付ける。
// 重複や保存失敗は呼び出し元には返さない。
func (e *Engine) SubmitResult(sub types.ResultSubmission) error {
	return e.post(func() { e.onResult(sub) })
}

// TestSpin は獲得判定を通さずにスピン演出を1回流す
func (e *Engine) TestSpin(identity string) error {
	return e.post(func() { e.onTestSpin(identity) })
}

// Snapshots は台帳の全エントリのコピーを返す
func (e *Engine) Snapshots(ctx context.Context) ([]types.LedgerSnapshot, error) {
	var out []types.LedgerSnapshot
	err := e.call(ctx, func() { out = e.ledger.Snapshots() })
	return out, err
}

// SpinStatus はスピン待ち行列の状態を返す
func (e *Engine) SpinStatus(ctx context.Context) (SpinStatus, error) {
	var status SpinStatus
	err := e.call(ctx, func() {
		status = SpinStatus{Pending: e.spins.Pending(), Animating: e.spins.Animating()}
	})
	return status, err
}

func (e *Engine) onGift(raw types.RawGift) {
	gift, ok := NormalizeGift(raw)
	if !ok {
		return
	}

	now := e.clock.Now()
	entry := e.ledger.RecordGift(gift, now)

	// 候補はポリシー適用前のバッファから決める
	candidate := entry.Candidate()
	snapshot := entry.Snapshot()
	e.ledger.ApplyPolicy(entry, e.cfg.BufferPolicy)

	logger.Info("Gift received",
		zap.String("user_id", gift.UserID),
		zap.String("nickname", gift.Nickname),
		zap.String("gift", gift.GiftName),
		zap.Int("units", gift.GiftUnits),
		zap.Int("coins", gift.CoinValue),
		zap.Int("total_coins", entry.TotalCoins))

	e.sink.Emit(types.EventGift, types.GiftPayload{
		UserID:       gift.UserID,
		Nickname:     gift.Nickname,
		GiftName:     gift.GiftName,
		GiftCount:    gift.GiftUnits,
		CoinsPerGift: gift.UnitValue,
		Coins:        gift.CoinValue,
		Timestamp:    now.UnixMilli(),
	})
	e.emitClaim(snapshot, candidate, now)

	e.spins.Earn(gift)
}

func (e *Engine) onChat(raw types.RawChat) {
	chat := NormalizeChat(raw)
	entry, ok := e.ledger.Get(chat.UserID)
	if !ok {
		return
	}

	now := e.clock.Now()
	if e.cfg.MatchWindow > 0 && now.Sub(entry.LastGiftAt) > e.cfg.MatchWindow {
		logger.Debug("Chat outside match window", zap.String("user_id", chat.UserID))
		return
	}

	notify := e.ledger.AppendComment(entry, chat.Text)
	if notify {
		e.sink.Emit(types.EventCommentsUpdate, types.CommentsUpdatePayload{
			UserID:     entry.UserID,
			Nickname:   entry.Nickname,
			TotalGifts: entry.TotalGifts,
			TotalCoins: entry.TotalCoins,
			Comments:   entry.commentsCopy(),
			Timestamp:  now.UnixMilli(),
		})
	}

	if identity, found := claim.Extract(chat.Text); found {
		logger.Info("Claim found in chat",
			zap.String("user_id", chat.UserID),
			zap.String("identity", identity))
		e.emitClaim(entry.Snapshot(), identity, now)
	}
}

func (e *Engine) onResolve(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	if e.ledger.Delete(userID) {
		logger.Info("Claim resolved", zap.String("user_id", userID))
	}
	e.sink.Emit(types.EventClaimRemoved, types.ClaimRemovedPayload{
		UserID:    userID,
		Timestamp: e.clock.Now().UnixMilli(),
	})
}

func (e *Engine) onResult(sub types.ResultSubmission) {
	sub.Identity = strings.TrimSpace(sub.Identity)
	sub.Prize = strings.TrimSpace(sub.Prize)
	if sub.Identity == "" || sub.Prize == "" {
		logger.Warn("Result submission missing identity or prize",
			zap.String("identity", sub.Identity),
			zap.String("prize", sub.Prize))
		return
	}

	if !e.guard.Admit(sub.Identity, sub.Prize) {
		logger.Warn("Duplicate result submission dropped",
			zap.String("identity", sub.Identity),
			zap.String("prize", sub.Prize))
		return
	}

	if e.store == nil {
		logger.Warn("No winner store configured, result not saved", zap.String("identity", sub.Identity))
		return
	}

	// 保存はエンジンのgoroutineの外で行う
	e.persisting.Add(1)
	go func() {
		defer e.persisting.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		record, err := e.store.SaveWinner(ctx, sub)
		if err != nil {
			logger.Error("Failed to save winner",
				zap.String("identity", sub.Identity),
				zap.String("prize", sub.Prize),
				zap.Error(err))
			return
		}

		logger.Info("Winner saved",
			zap.Int64("id", record.ID),
			zap.String("username", record.Username),
			zap.String("prize", record.Prize))
		e.postAsync(func() {
			e.sink.Emit(types.EventWinnerSaved, types.WinnerSavedPayload{
				WinnerRecord: record,
				Timestamp:    e.clock.Now().UnixMilli(),
			})
		})
	}()
}

func (e *Engine) onTestSpin(identity string) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "test"
	}
	logger.Info("Test spin requested", zap.String("identity", identity))
	e.sink.Emit(types.EventWheelSpin, types.WheelSpinPayload{
		Nickname:  identity,
		UserID:    identity,
		CoinValue: 0,
		UnitIndex: 1,
		Pending:   e.spins.Pending(),
		IsTest:    true,
		Timestamp: e.clock.Now().UnixMilli(),
	})
}

func (e *Engine) emitClaim(snapshot types.LedgerSnapshot, identity string, now time.Time) {
	e.sink.Emit(types.EventClaim, types.ClaimPayload{
		UserID:          snapshot.UserID,
		Nickname:        snapshot.Nickname,
		ClaimedIdentity: identity,
		TotalGifts:      snapshot.TotalGifts,
		TotalCoins:      snapshot.TotalCoins,
		RecentComments:  snapshot.RecentComments,
		Timestamp:       now.UnixMilli(),
	})
}

func (e *Engine) sweepInterval() time.Duration {
	if e.cfg.IdleSweepFactor <= 0 || e.cfg.MatchWindow <= 0 {
		return 0
	}
	if e.cfg.MatchWindow < minSweepInterval {
		return minSweepInterval
	}
	return e.cfg.MatchWindow
}

func (e *Engine) scheduleSweep() {
	interval := e.sweepInterval()
	if interval == 0 {
		return
	}
	e.clock.AfterFunc(interval, func() {
		e.postAsync(func() {
			e.sweep()
			e.scheduleSweep()
		})
	})
}

// sweep は長時間ギフトの無いエントリを台帳から消す
func (e *Engine) sweep() {
	idle := time.Duration(e.cfg.IdleSweepFactor) * e.cfg.MatchWindow
	now := e.clock.Now()
	evicted := e.ledger.EvictIdle(now.Add(-idle))
	for _, userID := range evicted {
		e.sink.Emit(types.EventClaimRemoved, types.ClaimRemovedPayload{
			UserID:    userID,
			Timestamp: now.UnixMilli(),
		})
	}
	if len(evicted) > 0 {
		logger.Info("Idle ledger entries evicted",
			zap.Int("count", len(evicted)),
			zap.Int("remaining", e.ledger.Len()))
	}
}
