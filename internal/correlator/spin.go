package correlator

import (
	"time"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"go.uber.org/zap"
)

// 待ち行列がこの長さを超えたら警告を出す（破棄はしない）
const spinQueueWarnThreshold = 200

// SpinUnits は1回のギフトで獲得したスピン数（切り捨て）
func SpinUnits(coinValue, coinsPerSpin int) int {
	if coinsPerSpin <= 0 || coinValue <= 0 {
		return 0
	}
	return coinValue / coinsPerSpin
}

// SpinScheduler はスピン演出を1件ずつ、一定間隔で順番に流す。
// 状態はエンジンのgoroutineからのみ触り、タイマーの完了も post 経由で戻ってくる。
type SpinScheduler struct {
	queue        []types.SpinUnit
	animating    bool
	hold         time.Duration
	coinsPerSpin int
	maxPerEvent  int

	sink  Sink
	clock Clock
	post  func(func())

	dispatched int
}

func newSpinScheduler(cfg Config, sink Sink, clock Clock, post func(func())) *SpinScheduler {
	return &SpinScheduler{
		queue:        make([]types.SpinUnit, 0, 16),
		hold:         cfg.SpinAnimation + cfg.SpinCooldown,
		coinsPerSpin: cfg.CoinsPerSpin,
		maxPerEvent:  cfg.MaxSpinsPerEvent,
		sink:         sink,
		clock:        clock,
		post:         post,
	}
}

// Earn はギフトから獲得したスピンを待ち行列に積み、空いていれば流し始める。
// 1イベントで積むのは maxPerEvent 件まで。積んだ件数を返す。
func (s *SpinScheduler) Earn(gift types.GiftEvent) int {
	units := SpinUnits(gift.CoinValue, s.coinsPerSpin)
	if units == 0 {
		return 0
	}
	if s.maxPerEvent > 0 && units > s.maxPerEvent {
		logger.Warn("Spin units capped for a single gift",
			zap.String("user_id", gift.UserID),
			zap.Int("earned", units),
			zap.Int("cap", s.maxPerEvent))
		units = s.maxPerEvent
	}

	now := s.clock.Now()
	for i := 1; i <= units; i++ {
		s.queue = append(s.queue, types.SpinUnit{
			Nickname:    gift.Nickname,
			UserID:      gift.UserID,
			CoinsAtEarn: gift.CoinValue,
			UnitIndex:   i,
			EnqueuedAt:  now,
		})
	}

	logger.Info("Spin units enqueued",
		zap.String("user_id", gift.UserID),
		zap.Int("units", units),
		zap.Int("coins", gift.CoinValue),
		zap.Int("queue_size", len(s.queue)))
	if len(s.queue) > spinQueueWarnThreshold {
		logger.Warn("Spin queue is growing", zap.Int("queue_size", len(s.queue)))
	}

	s.drain()
	return units
}

// drain は演出中でなければ先頭を1件流し、hold 後に次を試す
func (s *SpinScheduler) drain() {
	if s.animating || len(s.queue) == 0 {
		return
	}

	unit := s.queue[0]
	s.queue[0] = types.SpinUnit{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		// 先頭を詰め直して配列が伸び続けないようにする
		s.queue = s.queue[:0:0]
	}

	s.animating = true
	s.dispatched++
	s.sink.Emit(types.EventWheelSpin, types.WheelSpinPayload{
		Nickname:  unit.Nickname,
		UserID:    unit.UserID,
		CoinValue: unit.CoinsAtEarn,
		UnitIndex: unit.UnitIndex,
		Pending:   len(s.queue),
		Timestamp: s.clock.Now().UnixMilli(),
	})

	logger.Debug("Spin dispatched",
		zap.String("user_id", unit.UserID),
		zap.Int("unit_index", unit.UnitIndex),
		zap.Duration("hold", s.hold))

	s.clock.AfterFunc(s.hold, func() {
		s.post(s.release)
	})
}

func (s *SpinScheduler) release() {
	s.animating = false
	s.drain()
}

// Pending は待ち行列の長さ
func (s *SpinScheduler) Pending() int {
	return len(s.queue)
}

// Animating は演出中かどうか
func (s *SpinScheduler) Animating() bool {
	return s.animating
}
