package webserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

type testSpinRequest struct {
	Identity string `json:"identity"`
}

// handleTestSpin handles POST /api/spin/test
func handleTestSpin(w http.ResponseWriter, r *http.Request) {
	if !engineReady(w) {
		return
	}

	var req testSpinRequest
	// 本文なしでも受け付ける
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := deps.Engine.TestSpin(strings.TrimSpace(req.Identity)); err != nil {
		engineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleSpinStatus handles GET /api/spin/status
func handleSpinStatus(w http.ResponseWriter, r *http.Request) {
	if !engineReady(w) {
		return
	}

	status, err := deps.Engine.SpinStatus(r.Context())
	if err != nil {
		engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
