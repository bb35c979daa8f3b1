package correlator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Tirta71/live-tiktok/internal/types"
)

// manualClock はテスト用の手動で進める時計
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []manualTimer
}

type manualTimer struct {
	at time.Time
	f  func()
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, manualTimer{at: c.now.Add(d), f: f})
}

// Advance は時計を進め、期限の来たタイマーを時刻順に呼ぶ
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due, rest []manualTimer
	for _, timer := range c.timers {
		if !timer.at.After(now) {
			due = append(due, timer)
		} else {
			rest = append(rest, timer)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, timer := range due {
		timer.f()
	}
}

type emitted struct {
	event   string
	payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []emitted
}

func (s *recordingSink) Emit(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emitted{event: event, payload: payload})
}

func (s *recordingSink) all() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]emitted, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) byName(event string) []emitted {
	var out []emitted
	for _, e := range s.all() {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []types.ResultSubmission
	err   error
}

func (s *fakeStore) SaveWinner(_ context.Context, sub types.ResultSubmission) (types.WinnerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return types.WinnerRecord{}, s.err
	}
	s.saved = append(s.saved, sub)
	return types.WinnerRecord{
		ID:          int64(len(s.saved)),
		Username:    sub.Identity,
		Prize:       sub.Prize,
		SpinCount:   sub.SpinCount,
		RewardValue: sub.RewardValue,
		Status:      types.WinnerStatusPending,
	}, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type harness struct {
	engine *Engine
	clock  *manualClock
	sink   *recordingSink
	store  *fakeStore
}

func startEngine(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		clock: newManualClock(),
		sink:  &recordingSink{},
		store: &fakeStore{},
	}
	h.engine = NewEngine(cfg, h.sink, h.store, h.clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	})
	return h
}

// sync はエンジンの処理と保存goroutineが落ち着くまで待つ
func (h *harness) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	h.engine.Flush()
	if err := h.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	h.clock.Advance(d)
	h.sync(t)
}

func finalGift(userID, nickname string, count, coinsPerGift int) types.RawGift {
	return types.RawGift{
		UserID:         userID,
		Nickname:       nickname,
		GiftName:       "Rose",
		GiftCount:      count,
		CoinsPerGift:   coinsPerGift,
		IsFinalInBurst: true,
	}
}
