package correlator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Tirta71/live-tiktok/internal/types"
)

func eventNames(events []emitted) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.event)
	}
	return names
}

func TestEngine_NonFinalGiftIsNoOp(t *testing.T) {
	h := startEngine(t, DefaultConfig())

	raw := finalGift("u1", "Ana", 5, 100)
	raw.IsFinalInBurst = false
	_ = h.engine.HandleGift(raw)
	h.sync(t)

	if events := h.sink.all(); len(events) != 0 {
		t.Fatalf("events got=%v want none", eventNames(events))
	}
	snaps, err := h.engine.Snapshots(testContext(t))
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("ledger got=%d entries want=0", len(snaps))
	}
}

func TestEngine_GiftEmitsGiftThenClaim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoinsPerSpin = 1000
	h := startEngine(t, cfg)

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 2, 10))
	h.sync(t)

	events := h.sink.all()
	if got := eventNames(events); !reflect.DeepEqual(got, []string{types.EventGift, types.EventClaim}) {
		t.Fatalf("events got=%v", got)
	}

	gift := events[0].payload.(types.GiftPayload)
	if gift.Coins != 20 || gift.GiftCount != 2 || gift.GiftName != "Rose" {
		t.Fatalf("gift payload got=%+v", gift)
	}
	claimed := events[1].payload.(types.ClaimPayload)
	if claimed.ClaimedIdentity != "Ana" {
		t.Fatalf("claimedIdentity got=%q want=%q", claimed.ClaimedIdentity, "Ana")
	}
	if claimed.TotalGifts != 2 || claimed.TotalCoins != 20 {
		t.Fatalf("totals got=%d/%d want=2/20", claimed.TotalGifts, claimed.TotalCoins)
	}
}

func TestEngine_ChatClaimFlow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoinsPerSpin = 1000
	h := startEngine(t, cfg)

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
	h.sync(t)
	h.sink.reset()

	_ = h.engine.HandleChat(types.RawChat{UserID: "u1", CommentText: "halo kak"})
	_ = h.engine.HandleChat(types.RawChat{UserID: "u1", CommentText: "usn: bob_99"})
	h.sync(t)

	events := h.sink.all()
	want := []string{types.EventCommentsUpdate, types.EventCommentsUpdate, types.EventClaim}
	if got := eventNames(events); !reflect.DeepEqual(got, want) {
		t.Fatalf("events got=%v want=%v", got, want)
	}

	claimed := events[2].payload.(types.ClaimPayload)
	if claimed.ClaimedIdentity != "bob_99" {
		t.Fatalf("claimedIdentity got=%q want=bob_99", claimed.ClaimedIdentity)
	}
	if !reflect.DeepEqual(claimed.RecentComments, []string{"halo kak", "usn: bob_99"}) {
		t.Fatalf("recentComments got=%v", claimed.RecentComments)
	}
}

func TestEngine_ChatFromUnknownUserIgnored(t *testing.T) {
	h := startEngine(t, DefaultConfig())
	_ = h.engine.HandleChat(types.RawChat{UserID: "stranger", CommentText: "usn: bob_99"})
	h.sync(t)

	if events := h.sink.all(); len(events) != 0 {
		t.Fatalf("events got=%v want none", eventNames(events))
	}
}

func TestEngine_MatchWindowBoundary(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		accepted bool
	}{
		{"just inside", DefaultMatchWindow - time.Millisecond, true},
		{"exactly window", DefaultMatchWindow, true},
		{"just outside", DefaultMatchWindow + time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CoinsPerSpin = 1000
			h := startEngine(t, cfg)

			_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
			h.sync(t)
			h.advance(t, tt.elapsed)
			h.sink.reset()

			_ = h.engine.HandleChat(types.RawChat{UserID: "u1", CommentText: "@carol"})
			h.sync(t)

			got := len(h.sink.byName(types.EventClaim)) == 1
			if got != tt.accepted {
				t.Fatalf("accepted got=%v want=%v", got, tt.accepted)
			}
		})
	}
}

func TestEngine_CommentsUpdateOnlyUpToCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoinsPerSpin = 1000
	h := startEngine(t, cfg)

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
	h.sync(t)
	h.sink.reset()

	for i := 0; i < 6; i++ {
		_ = h.engine.HandleChat(types.RawChat{UserID: "u1", CommentText: "hi"})
	}
	_ = h.engine.HandleChat(types.RawChat{UserID: "u1", CommentText: "username=late_one"})
	h.sync(t)

	if got := len(h.sink.byName(types.EventCommentsUpdate)); got != DefaultMaxComments {
		t.Fatalf("comments_update got=%d want=%d", got, DefaultMaxComments)
	}
	claims := h.sink.byName(types.EventClaim)
	if len(claims) != 1 {
		t.Fatalf("claims got=%d want=1", len(claims))
	}
	if got := len(claims[0].payload.(types.ClaimPayload).RecentComments); got != DefaultMaxComments {
		t.Fatalf("buffer got=%d want=%d", got, DefaultMaxComments)
	}
}

func TestEngine_BufferPolicy(t *testing.T) {
	tests := []struct {
		policy        BufferPolicy
		wantCandidate string
		wantBuffer    int
	}{
		{BufferPolicyClear, "dave-7", 0},
		{BufferPolicyRetain, "dave-7", 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CoinsPerSpin = 1000
			cfg.BufferPolicy = tt.policy
			h := startEngine(t, cfg)

			_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
			_ = h.engine.HandleChat(types.RawChat{UserID: "u1", CommentText: "USN dave-7"})
			h.sync(t)
			h.sink.reset()

			_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
			h.sync(t)

			claims := h.sink.byName(types.EventClaim)
			if len(claims) != 1 {
				t.Fatalf("claims got=%d want=1", len(claims))
			}
			payload := claims[0].payload.(types.ClaimPayload)
			if payload.ClaimedIdentity != tt.wantCandidate {
				t.Fatalf("candidate got=%q want=%q", payload.ClaimedIdentity, tt.wantCandidate)
			}
			if payload.TotalGifts != 2 {
				t.Fatalf("totalGifts got=%d want=2", payload.TotalGifts)
			}

			snaps, _ := h.engine.Snapshots(testContext(t))
			if len(snaps) != 1 || len(snaps[0].RecentComments) != tt.wantBuffer {
				t.Fatalf("buffer after gift got=%+v want len %d", snaps, tt.wantBuffer)
			}
		})
	}
}

func TestEngine_ResolveClaim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoinsPerSpin = 1000
	h := startEngine(t, cfg)

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 3, 10))
	h.sync(t)
	h.sink.reset()

	_ = h.engine.ResolveClaim("u1")
	_ = h.engine.ResolveClaim("ghost")
	h.sync(t)

	removed := h.sink.byName(types.EventClaimRemoved)
	if len(removed) != 2 {
		t.Fatalf("claim_removed got=%d want=2", len(removed))
	}
	if got := removed[1].payload.(types.ClaimRemovedPayload).UserID; got != "ghost" {
		t.Fatalf("second removal got=%q want=ghost", got)
	}

	// 次のギフトはゼロから数える
	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
	h.sync(t)
	claims := h.sink.byName(types.EventClaim)
	if got := claims[len(claims)-1].payload.(types.ClaimPayload).TotalGifts; got != 1 {
		t.Fatalf("totalGifts after resolve got=%d want=1", got)
	}
}

func TestEngine_DuplicateSubmissionsWriteOnce(t *testing.T) {
	h := startEngine(t, DefaultConfig())

	sub := types.ResultSubmission{Identity: "bob_99", Prize: "Jackpot", SpinCount: 3, RewardValue: 50}
	_ = h.engine.SubmitResult(sub)
	_ = h.engine.SubmitResult(sub)
	h.sync(t)

	if got := h.store.count(); got != 1 {
		t.Fatalf("writes got=%d want=1", got)
	}
	saved := h.sink.byName(types.EventWinnerSaved)
	if len(saved) != 1 {
		t.Fatalf("winner_saved got=%d want=1", len(saved))
	}
	if got := saved[0].payload.(types.WinnerSavedPayload).Username; got != "bob_99" {
		t.Fatalf("username got=%q want=bob_99", got)
	}

	h.advance(t, DefaultDuplicateTTL)
	_ = h.engine.SubmitResult(sub)
	h.sync(t)
	if got := h.store.count(); got != 2 {
		t.Fatalf("writes after ttl got=%d want=2", got)
	}
}

func TestEngine_PersistenceFailureIsContained(t *testing.T) {
	h := startEngine(t, DefaultConfig())
	h.store.err = errors.New("disk full")

	_ = h.engine.SubmitResult(types.ResultSubmission{Identity: "bob_99", Prize: "Jackpot"})
	h.sync(t)

	if got := len(h.sink.byName(types.EventWinnerSaved)); got != 0 {
		t.Fatalf("winner_saved got=%d want=0", got)
	}
	// エンジンは動き続ける
	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
	h.sync(t)
	if got := len(h.sink.byName(types.EventGift)); got != 1 {
		t.Fatalf("gift got=%d want=1", got)
	}
}

func TestEngine_TestSpinBypassesQueue(t *testing.T) {
	h := startEngine(t, DefaultConfig())

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 30))
	_ = h.engine.TestSpin("tester")
	h.sync(t)

	spins := spinPayloads(t, h.sink)
	if len(spins) != 2 {
		t.Fatalf("spins got=%d want=2", len(spins))
	}
	test := spins[1]
	if !test.IsTest || test.UnitIndex != 1 || test.CoinValue != 0 || test.Nickname != "tester" {
		t.Fatalf("test spin got=%+v", test)
	}

	status, _ := h.engine.SpinStatus(testContext(t))
	if !status.Animating || status.Pending != 0 {
		t.Fatalf("status got=%+v", status)
	}
}

func TestEngine_IdleSweepEvictsEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoinsPerSpin = 1000
	h := startEngine(t, cfg)

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 10))
	h.sync(t)
	h.sink.reset()

	// factor 3 × 5分 を超えるまで進める
	for i := 0; i < 4; i++ {
		h.advance(t, DefaultMatchWindow)
	}

	removed := h.sink.byName(types.EventClaimRemoved)
	if len(removed) != 1 {
		t.Fatalf("claim_removed got=%d want=1", len(removed))
	}
	snaps, _ := h.engine.Snapshots(testContext(t))
	if len(snaps) != 0 {
		t.Fatalf("ledger got=%d entries want=0", len(snaps))
	}
}

func TestEngine_StoppedEngineRejectsEvents(t *testing.T) {
	engine := NewEngine(DefaultConfig(), &recordingSink{}, &fakeStore{}, newManualClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = engine.Run(ctx)

	if err := engine.HandleGift(finalGift("u1", "Ana", 1, 10)); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("err got=%v want=%v", err, ErrEngineStopped)
	}
}

func TestEngine_TotalsNeverDecreaseOnHugeGift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoinsPerSpin = 1000
	h := startEngine(t, cfg)

	_ = h.engine.HandleGift(finalGift("u1", "Ana", 1, 100))
	_ = h.engine.HandleGift(finalGift("u1", "Ana", 3, 1<<62))
	h.sync(t)

	claims := h.sink.byName(types.EventClaim)
	if len(claims) != 1 {
		t.Fatalf("claims got=%d want=1", len(claims))
	}
	snapshots, err := h.engine.Snapshots(testContext(t))
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].TotalCoins != 100 {
		t.Fatalf("snapshots got=%+v", snapshots)
	}
}
