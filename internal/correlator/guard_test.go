package correlator

import (
	"testing"
	"time"
)

func TestDuplicateGuard_Admit(t *testing.T) {
	clock := newManualClock()
	guard := NewDuplicateGuard(5*time.Second, clock)

	if !guard.Admit("bob_99", "Jackpot") {
		t.Fatal("first submission should be admitted")
	}
	if guard.Admit(" BOB_99 ", "Jackpot") {
		t.Fatal("same identity with different case should be dropped")
	}
	if !guard.Admit("bob_99", "Small") {
		t.Fatal("different prize should be admitted")
	}

	clock.Advance(4999 * time.Millisecond)
	if guard.Admit("bob_99", "Jackpot") {
		t.Fatal("should still be guarded before ttl")
	}

	clock.Advance(time.Millisecond)
	if !guard.Admit("bob_99", "Jackpot") {
		t.Fatal("should be admitted after ttl")
	}
}

func TestDuplicateGuard_PrunesExpired(t *testing.T) {
	clock := newManualClock()
	guard := NewDuplicateGuard(time.Second, clock)

	guard.Admit("a", "x")
	guard.Admit("b", "x")
	clock.Advance(2 * time.Second)
	guard.Admit("c", "x")

	if got := guard.Len(); got != 1 {
		t.Fatalf("len got=%d want=1", got)
	}
}

func TestDuplicateGuard_ZeroTTLAlwaysAdmits(t *testing.T) {
	guard := NewDuplicateGuard(0, newManualClock())
	for i := 0; i < 3; i++ {
		if !guard.Admit("a", "x") {
			t.Fatalf("attempt %d should be admitted", i)
		}
	}
}
