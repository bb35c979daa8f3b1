package types

import "time"

// RawGift はライブ配信元から届くギフトイベントそのもの
type RawGift struct {
	UserID         string `json:"userId"`
	Nickname       string `json:"nickname"`
	GiftName       string `json:"giftName"`
	GiftCount      int    `json:"giftCount"`    // バースト内の個数（repeatCount）
	CoinsPerGift   int    `json:"coinsPerGift"` // 1個あたりのコイン数（diamondCount）
	IsFinalInBurst bool   `json:"isFinalInBurst"`
}

// RawChat はライブ配信元から届くチャットイベント
type RawChat struct {
	UserID      string `json:"userId"`
	Nickname    string `json:"nickname"`
	CommentText string `json:"commentText"`
}

// GiftEvent は正規化済みのギフト
type GiftEvent struct {
	UserID    string
	Nickname  string
	GiftName  string
	GiftUnits int
	UnitValue int
	CoinValue int // UnitValue × GiftUnits
}

// ChatEvent は正規化済みのチャット
type ChatEvent struct {
	UserID string
	Text   string
}

// SpinUnit はスピン待ち行列の1エントリ
type SpinUnit struct {
	Nickname    string
	UserID      string
	CoinsAtEarn int
	UnitIndex   int // イベント内での1始まりの番号
	EnqueuedAt  time.Time
}

// Broadcast event names sent to viewers.
const (
	EventGift           = "gift"
	EventCommentsUpdate = "comments_update"
	EventClaim          = "claim"
	EventClaimRemoved   = "claim_removed"
	EventWheelSpin      = "wheel_spin"
	EventWinnerSaved    = "winner_saved"
)

type GiftPayload struct {
	UserID       string `json:"userId"`
	Nickname     string `json:"nickname"`
	GiftName     string `json:"giftName"`
	GiftCount    int    `json:"giftCount"`
	CoinsPerGift int    `json:"coinsPerGift"`
	Coins        int    `json:"coins"`
	Timestamp    int64  `json:"timestamp"`
}

type CommentsUpdatePayload struct {
	UserID     string   `json:"userId"`
	Nickname   string   `json:"nickname"`
	TotalGifts int      `json:"totalGifts"`
	TotalCoins int      `json:"totalCoins"`
	Comments   []string `json:"comments"`
	Timestamp  int64    `json:"timestamp"`
}

type ClaimPayload struct {
	UserID          string   `json:"userId"`
	Nickname        string   `json:"nickname"`
	ClaimedIdentity string   `json:"claimedIdentity"`
	TotalGifts      int      `json:"totalGifts"`
	TotalCoins      int      `json:"totalCoins"`
	RecentComments  []string `json:"recentComments"`
	Timestamp       int64    `json:"timestamp"`
}

type ClaimRemovedPayload struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type WheelSpinPayload struct {
	Nickname  string `json:"nickname"`
	UserID    string `json:"userId"`
	CoinValue int    `json:"coinValue"`
	UnitIndex int    `json:"unitIndex"`
	Pending   int    `json:"pending"` // この後に待っているスピン数
	IsTest    bool   `json:"isTest,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// LedgerSnapshot はUserLedgerエントリのコピー（APIレスポンス用）
type LedgerSnapshot struct {
	UserID         string    `json:"userId"`
	Nickname       string    `json:"nickname"`
	TotalGifts     int       `json:"totalGifts"`
	TotalCoins     int       `json:"totalCoins"`
	RecentComments []string  `json:"recentComments"`
	LastGiftAt     time.Time `json:"lastGiftAt"`
}

// WinnerStatus は当選記録の状態
type WinnerStatus string

const (
	WinnerStatusPending  WinnerStatus = "pending"
	WinnerStatusResolved WinnerStatus = "resolved"
)

// ResultSubmission は視聴者画面から送られてくるスピン結果
type ResultSubmission struct {
	Identity    string `json:"identity"`
	Prize       string `json:"prize"`
	SpinCount   int    `json:"spinCount"`
	RewardValue int    `json:"rewardValue"`
}

// WinnerRecord は永続化される当選記録
type WinnerRecord struct {
	ID          int64        `json:"id"`
	Username    string       `json:"username"`
	Prize       string       `json:"prize"`
	SpinCount   int          `json:"spinCount"`
	RewardValue int          `json:"rewardValue"`
	Status      WinnerStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	ResolvedAt  *time.Time   `json:"resolvedAt,omitempty"`
}

// WinnerHistoryGroup は (username, status) ごとの集計
type WinnerHistoryGroup struct {
	Username    string       `json:"username"`
	Status      WinnerStatus `json:"status"`
	Wins        int          `json:"wins"`
	TotalSpins  int          `json:"totalSpins"`
	TotalReward int          `json:"totalReward"`
	Prizes      []string     `json:"prizes"`
	LastWonAt   time.Time    `json:"lastWonAt"`
}

type WinnerSavedPayload struct {
	WinnerRecord
	Timestamp int64 `json:"timestamp"`
}
