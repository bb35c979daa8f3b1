package webserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

type resolveClaimRequest struct {
	UserID   string `json:"userId"`
	TiktokID string `json:"tiktokId"` // 旧オーバーレイ互換
}

func (r resolveClaimRequest) userID() string {
	if id := strings.TrimSpace(r.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(r.TiktokID)
}

// handleClaims handles GET /api/claims
// 後から接続したオーバーレイが現在の名乗り一覧を復元するために使う
func handleClaims(w http.ResponseWriter, r *http.Request) {
	if !engineReady(w) {
		return
	}

	snapshots, err := deps.Engine.Snapshots(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}

	// 直近のギフト順
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].LastGiftAt.After(snapshots[j].LastGiftAt)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"claims": snapshots,
		"count":  len(snapshots),
	})
}

// handleResolveClaim handles POST /api/claims/resolve
func handleResolveClaim(w http.ResponseWriter, r *http.Request) {
	if !engineReady(w) {
		return
	}

	var req resolveClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	userID := req.userID()
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if err := deps.Engine.ResolveClaim(userID); err != nil {
		engineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "userId": userID})
}
