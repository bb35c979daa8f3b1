package webserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Tirta71/live-tiktok/internal/localdb"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	defaultEventHistoryWindow = time.Hour
	defaultEventHistoryLimit  = 200
	maxEventHistoryLimit      = 1000
)

// handleEventHistory handles GET /api/events/history?since=<unix ms>&limit=<n>
func handleEventHistory(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultEventHistoryWindow).UnixMilli()
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "since must be a unix timestamp in milliseconds", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	limit := defaultEventHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > maxEventHistoryLimit {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxEventHistoryLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := localdb.GetLiveEventsSince(since, limit)
	if err != nil {
		logger.Error("Failed to get event history", zap.Error(err))
		http.Error(w, "Failed to fetch event history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":    events,
		"count":     len(events),
		"since":     since,
		"timestamp": time.Now().UnixMilli(),
	})
}
