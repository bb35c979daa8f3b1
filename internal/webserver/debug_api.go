package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Tirta71/live-tiktok/internal/correlator"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"go.uber.org/zap"
)

// DebugGiftRequest は配信元のギフトを模したリクエスト
type DebugGiftRequest struct {
	UserID         string `json:"userId"`
	Nickname       string `json:"nickname"`
	GiftName       string `json:"giftName"`
	GiftCount      int    `json:"giftCount"`
	CoinsPerGift   int    `json:"coinsPerGift"`
	IsFinalInBurst *bool  `json:"isFinalInBurst"` // 省略時は true
}

// DebugChatRequest は配信元のチャットを模したリクエスト
type DebugChatRequest struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Comment  string `json:"comment"`
}

// handleDebugGift handles POST /api/debug/gift
func handleDebugGift(w http.ResponseWriter, r *http.Request) {
	if deps.Source == nil {
		http.Error(w, "Engine is not running", http.StatusServiceUnavailable)
		return
	}

	var req DebugGiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if req.GiftCount < 0 || req.GiftCount > correlator.MaxGiftUnits {
		http.Error(w, fmt.Sprintf("giftCount must be between 0 and %d", correlator.MaxGiftUnits), http.StatusBadRequest)
		return
	}
	if req.CoinsPerGift < 0 || req.CoinsPerGift > correlator.MaxCoinsPerGift {
		http.Error(w, fmt.Sprintf("coinsPerGift must be between 0 and %d", correlator.MaxCoinsPerGift), http.StatusBadRequest)
		return
	}

	final := true
	if req.IsFinalInBurst != nil {
		final = *req.IsFinalInBurst
	}
	if req.Nickname == "" {
		req.Nickname = req.UserID
	}
	if req.GiftName == "" {
		req.GiftName = "Rose"
	}

	raw := types.RawGift{
		UserID:         req.UserID,
		Nickname:       req.Nickname,
		GiftName:       req.GiftName,
		GiftCount:      req.GiftCount,
		CoinsPerGift:   req.CoinsPerGift,
		IsFinalInBurst: final,
	}
	if err := deps.Source.HandleGift(raw); err != nil {
		engineError(w, err)
		return
	}

	logger.Info("Debug gift injected",
		zap.String("user_id", raw.UserID),
		zap.Int("count", raw.GiftCount),
		zap.Int("coins_per_gift", raw.CoinsPerGift))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleDebugChat handles POST /api/debug/chat
func handleDebugChat(w http.ResponseWriter, r *http.Request) {
	if deps.Source == nil {
		http.Error(w, "Engine is not running", http.StatusServiceUnavailable)
		return
	}

	var req DebugChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	raw := types.RawChat{
		UserID:      req.UserID,
		Nickname:    req.Nickname,
		CommentText: req.Comment,
	}
	if err := deps.Source.HandleChat(raw); err != nil {
		engineError(w, err)
		return
	}

	logger.Info("Debug chat injected", zap.String("user_id", raw.UserID))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
