package webserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Tirta71/live-tiktok/internal/localdb"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"go.uber.org/zap"
)

type claimWinnerRequest struct {
	Username string `json:"username"`
}

// handleSubmitResult handles POST /api/winners
// 重複や保存失敗は呼び出し元に返さない（受付のみ）
func handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	if !engineReady(w) {
		return
	}

	var sub types.ResultSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(sub.Identity) == "" || strings.TrimSpace(sub.Prize) == "" {
		http.Error(w, "identity and prize are required", http.StatusBadRequest)
		return
	}
	if sub.SpinCount < 0 || sub.RewardValue < 0 {
		http.Error(w, "spinCount and rewardValue must be greater than or equal to 0", http.StatusBadRequest)
		return
	}

	if err := deps.Engine.SubmitResult(sub); err != nil {
		engineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleClaimWinner handles POST /api/winners/claim
// 指定ユーザーの未処理の当選記録をすべて処理済みにする
func handleClaimWinner(w http.ResponseWriter, r *http.Request) {
	var req claimWinnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	updated, err := localdb.ResolveWinnersByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, localdb.ErrDBNotInitialized) {
			http.Error(w, "Database not initialized", http.StatusServiceUnavailable)
			return
		}
		logger.Error("Failed to claim winner", zap.Error(err), zap.String("username", username))
		http.Error(w, "Failed to claim winner", http.StatusInternalServerError)
		return
	}

	logger.Info("Winner claimed", zap.String("username", username), zap.Int64("updated", updated))
	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"updated":  updated,
	})
}

// handleWinnerHistory handles GET /api/winners/history
func handleWinnerHistory(w http.ResponseWriter, r *http.Request) {
	history, err := localdb.GetWinnerHistory(r.Context())
	if err != nil {
		if errors.Is(err, localdb.ErrDBNotInitialized) {
			http.Error(w, "Database not initialized", http.StatusServiceUnavailable)
			return
		}
		logger.Error("Failed to get winner history", zap.Error(err))
		http.Error(w, "Failed to get winner history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"count":   len(history),
	})
}
