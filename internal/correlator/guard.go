package correlator

import (
	"strings"
	"time"

	"github.com/Tirta71/live-tiktok/internal/claim"
)

// DuplicateGuard は同じ (identity, prize) の結果送信を TTL の間だけ弾く
type DuplicateGuard struct {
	ttl     time.Duration
	clock   Clock
	entries map[string]time.Time // key -> 期限
}

func NewDuplicateGuard(ttl time.Duration, clock Clock) *DuplicateGuard {
	return &DuplicateGuard{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]time.Time),
	}
}

func guardKey(identity, prize string) string {
	return claim.NormalizeIdentity(identity) + "\x00" + strings.TrimSpace(prize)
}

// Admit は初回（または期限切れ後）なら true を返して記録する。
// TTL が 0 以下なら常に通す。
func (g *DuplicateGuard) Admit(identity, prize string) bool {
	if g.ttl <= 0 {
		return true
	}

	now := g.clock.Now()
	key := guardKey(identity, prize)
	if expiry, ok := g.entries[key]; ok && now.Before(expiry) {
		return false
	}

	g.prune(now)
	g.entries[key] = now.Add(g.ttl)
	return true
}

func (g *DuplicateGuard) prune(now time.Time) {
	for key, expiry := range g.entries {
		if !now.Before(expiry) {
			delete(g.entries, key)
		}
	}
}

// Len は記録中のキー数
func (g *DuplicateGuard) Len() int {
	return len(g.entries)
}
