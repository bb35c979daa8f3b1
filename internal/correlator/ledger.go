package correlator

import (
	"math"
	"time"

	"github.com/Tirta71/live-tiktok/internal/claim"
	"github.com/Tirta71/live-tiktok/internal/types"
)

// BufferPolicy はギフト受信時のコメントバッファの扱い
type BufferPolicy string

const (
	// BufferPolicyClear はギフトのたびにコメントバッファを空にする
	BufferPolicyClear BufferPolicy = "clear"
	// BufferPolicyRetain はバッファを残し、ギフト自体を名乗りのきっかけとして扱う
	BufferPolicyRetain BufferPolicy = "retain"
)

// ParseBufferPolicy は設定値を BufferPolicy に変換する。不明な値は clear。
func ParseBufferPolicy(value string) BufferPolicy {
	if BufferPolicy(value) == BufferPolicyRetain {
		return BufferPolicyRetain
	}
	return BufferPolicyClear
}

// LedgerEntry はギフトを送ったユーザー1人分の状態
type LedgerEntry struct {
	UserID     string
	Nickname   string
	TotalGifts int
	TotalCoins int
	Comments   []string
	LastGiftAt time.Time

	// 最後にバッファをリセットしてから受け付けたコメント数
	accepted int
}

// Snapshot はコメントをコピーした読み取り専用の状態を返す
func (e *LedgerEntry) Snapshot() types.LedgerSnapshot {
	return types.LedgerSnapshot{
		UserID:         e.UserID,
		Nickname:       e.Nickname,
		TotalGifts:     e.TotalGifts,
		TotalCoins:     e.TotalCoins,
		RecentComments: e.commentsCopy(),
		LastGiftAt:     e.LastGiftAt,
	}
}

func (e *LedgerEntry) commentsCopy() []string {
	out := make([]string, len(e.Comments))
	copy(out, e.Comments)
	return out
}

// Candidate は現在のバッファから claim 候補を決める
func (e *LedgerEntry) Candidate() string {
	return claim.BestCandidate(e.Comments, e.Nickname)
}

func (e *LedgerEntry) resetComments() {
	e.Comments = e.Comments[:0]
	e.accepted = 0
}

// Ledger は userID をキーにした LedgerEntry の集合。エンジンのgoroutineからのみ触る。
type Ledger struct {
	entries  map[string]*LedgerEntry
	capacity int
}

func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultMaxComments
	}
	return &Ledger{
		entries:  make(map[string]*LedgerEntry),
		capacity: capacity,
	}
}

func (l *Ledger) Get(userID string) (*LedgerEntry, bool) {
	entry, ok := l.entries[userID]
	return entry, ok
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// RecordGift はエントリを作成または更新し、合計を加算する。
// コメントバッファはここでは触らない（ポリシー適用は ApplyPolicy）。
func (l *Ledger) RecordGift(gift types.GiftEvent, now time.Time) *LedgerEntry {
	entry, ok := l.entries[gift.UserID]
	if !ok {
		entry = &LedgerEntry{
			UserID:   gift.UserID,
			Comments: make([]string, 0, l.capacity),
		}
		l.entries[gift.UserID] = entry
	}

	entry.Nickname = gift.Nickname
	entry.TotalGifts = saturatingAdd(entry.TotalGifts, gift.GiftUnits)
	entry.TotalCoins = saturatingAdd(entry.TotalCoins, gift.CoinValue)
	entry.LastGiftAt = now
	return entry
}

// saturatingAdd は b >= 0 の加算で、あふれる場合は math.MaxInt で止める
func saturatingAdd(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// ApplyPolicy はギフト後のコメントバッファをポリシーに従って処理する
func (l *Ledger) ApplyPolicy(entry *LedgerEntry, policy BufferPolicy) {
	if policy == BufferPolicyClear {
		entry.resetComments()
	}
}

// AppendComment はコメントを追加し、容量を超えた分は古い順に捨てる。
// 戻り値はリセット後の受付数が容量以内かどうか（comments_update を送るかの判定）。
func (l *Ledger) AppendComment(entry *LedgerEntry, text string) bool {
	entry.Comments = append(entry.Comments, text)
	if over := len(entry.Comments) - l.capacity; over > 0 {
		entry.Comments = append(entry.Comments[:0], entry.Comments[over:]...)
	}
	entry.accepted++
	return entry.accepted <= l.capacity
}

// Delete はエントリを削除する。存在しなかった場合は false。
func (l *Ledger) Delete(userID string) bool {
	if _, ok := l.entries[userID]; !ok {
		return false
	}
	delete(l.entries, userID)
	return true
}

// EvictIdle は最後のギフトが cutoff より前のエントリを削除し、そのIDを返す
func (l *Ledger) EvictIdle(cutoff time.Time) []string {
	evicted := []string{}
	for userID, entry := range l.entries {
		if entry.LastGiftAt.Before(cutoff) {
			delete(l.entries, userID)
			evicted = append(evicted, userID)
		}
	}
	return evicted
}

// Snapshots は全エントリのコピーを返す
func (l *Ledger) Snapshots() []types.LedgerSnapshot {
	out := make([]types.LedgerSnapshot, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.Snapshot())
	}
	return out
}
