package correlator

import (
	"strings"

	"github.com/Tirta71/live-tiktok/internal/types"
)

// 1イベントで受け付ける上限。超えたイベントは壊れた入力として捨てる。
// 上限同士の積でも int に収まる。
const (
	MaxGiftUnits    = 100_000
	MaxCoinsPerGift = 1_000_000
)

// NormalizeGift は生のギフトイベントを内部形式に変換する。
// 連続ギフト（バースト）の途中経過、ユーザーIDの無いイベント、上限を超える個数・単価は ok=false で捨てる。
func NormalizeGift(raw types.RawGift) (types.GiftEvent, bool) {
	if !raw.IsFinalInBurst {
		return types.GiftEvent{}, false
	}
	userID := strings.TrimSpace(raw.UserID)
	if userID == "" {
		return types.GiftEvent{}, false
	}

	units := raw.GiftCount
	// 個数が来ない単発ギフトは1個として扱う
	if units <= 0 {
		units = 1
	}
	unitValue := raw.CoinsPerGift
	if unitValue < 0 {
		unitValue = 0
	}
	if units > MaxGiftUnits || unitValue > MaxCoinsPerGift {
		return types.GiftEvent{}, false
	}

	return types.GiftEvent{
		UserID:    userID,
		Nickname:  raw.Nickname,
		GiftName:  raw.GiftName,
		GiftUnits: units,
		UnitValue: unitValue,
		CoinValue: unitValue * units,
	}, true
}

// NormalizeChat はチャットをそのまま内部形式にする（空文字も許可）
func NormalizeChat(raw types.RawChat) types.ChatEvent {
	return types.ChatEvent{
		UserID: strings.TrimSpace(raw.UserID),
		Text:   raw.CommentText,
	}
}
