package webserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/Tirta71/live-tiktok/internal/localdb"
	"github.com/Tirta71/live-tiktok/internal/settings"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/version"
	"go.uber.org/zap"
)

func settingsManager(w http.ResponseWriter) (*settings.SettingsManager, bool) {
	db := localdb.GetDB()
	if db == nil {
		http.Error(w, "Database not initialized", http.StatusServiceUnavailable)
		return nil, false
	}
	return settings.NewSettingsManager(db), true
}

// handleGetSettings handles GET /api/settings
func handleGetSettings(w http.ResponseWriter, r *http.Request) {
	sm, ok := settingsManager(w)
	if !ok {
		return
	}

	all, err := sm.GetAllSettings()
	if err != nil {
		logger.Error("Failed to get settings", zap.Error(err))
		http.Error(w, "Failed to get settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, settings.MaskSecrets(all))
}

// handlePutSettings handles PUT /api/settings
// 値はすべて検証してから保存する（1件でも不正なら何も保存しない）
// 突き合わせ・スピンの設定は次回起動時に反映される
func handlePutSettings(w http.ResponseWriter, r *http.Request) {
	sm, ok := settingsManager(w)
	if !ok {
		return
	}

	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(updates) == 0 {
		http.Error(w, "no settings given", http.StatusBadRequest)
		return
	}

	keys := make([]string, 0, len(updates))
	for key, value := range updates {
		if _, known := settings.DefaultSettings[key]; !known {
			http.Error(w, "unknown setting: "+key, http.StatusBadRequest)
			return
		}
		if err := settings.ValidateSetting(key, value); err != nil {
			http.Error(w, key+": "+err.Error(), http.StatusBadRequest)
			return
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := sm.SetSetting(key, updates[key]); err != nil {
			logger.Error("Failed to update setting", zap.String("key", key), zap.Error(err))
			http.Error(w, "Failed to update settings", http.StatusInternalServerError)
			return
		}
	}

	logger.Info("Settings updated", zap.Strings("keys", keys))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"updated":          keys,
		"restart_required": true,
	})
}

// handleStatus handles GET /api/status
func handleStatus(w http.ResponseWriter, r *http.Request) {
	statusData := map[string]any{
		"version":   version.Get(),
		"wsClients": wsHub.ClientCount(),
		"timestamp": time.Now().Format("2006-01-02T15:04:05Z"),
	}

	if deps.Feed != nil {
		statusData["feedConnected"] = deps.Feed.IsConnected()
		if err := deps.Feed.LastError(); err != nil {
			statusData["feedError"] = err.Error()
		}
	} else {
		statusData["feedConnected"] = false
	}

	if deps.Engine != nil {
		if spin, err := deps.Engine.SpinStatus(r.Context()); err == nil {
			statusData["engineRunning"] = true
			statusData["spin"] = spin
		} else {
			statusData["engineRunning"] = false
		}
	} else {
		statusData["engineRunning"] = false
	}

	if db := localdb.GetDB(); db != nil {
		if features, err := settings.NewSettingsManager(db).CheckFeatureStatus(); err == nil {
			statusData["features"] = features
		}
	}

	writeJSON(w, http.StatusOK, statusData)
}
