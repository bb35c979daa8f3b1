package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Tirta71/live-tiktok/internal/broadcast"
	"github.com/Tirta71/live-tiktok/internal/correlator"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Engine はコントロールプレーンから使うエンジンの操作
type Engine interface {
	ResolveClaim(userID string) error
	SubmitResult(sub types.ResultSubmission) error
	TestSpin(identity string) error
	Snapshots(ctx context.Context) ([]types.LedgerSnapshot, error)
	SpinStatus(ctx context.Context) (correlator.SpinStatus, error)
}

// Source は生イベントの入口（デバッグAPI用）
type Source interface {
	HandleGift(raw types.RawGift) error
	HandleChat(raw types.RawChat) error
}

// Feed は配信元接続の状態（未設定なら nil）
type Feed interface {
	IsConnected() bool
	LastError() error
}

type Dependencies struct {
	Engine Engine
	Source Source
	Feed   Feed
}

var (
	httpServer *http.Server
	deps       Dependencies
)

// wsBroadcaster は broadcast パッケージからWebSocketハブへ流すアダプタ
type wsBroadcaster struct{}

func (wsBroadcaster) BroadcastWSMessage(msgType string, data any) {
	BroadcastWSMessage(msgType, data)
}

// Configure はハンドラが使う依存を設定する
func Configure(d Dependencies) {
	deps = d
}

// NewRouter はすべてのAPIとWebSocketのルートを登録したハンドラを返す
func NewRouter() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	// 名乗り
	api.HandleFunc("/claims", handleClaims).Methods(http.MethodGet)
	api.HandleFunc("/claims/resolve", handleResolveClaim).Methods(http.MethodPost)

	// 当選記録
	api.HandleFunc("/winners", handleSubmitResult).Methods(http.MethodPost)
	api.HandleFunc("/winners/claim", handleClaimWinner).Methods(http.MethodPost)
	api.HandleFunc("/winners/history", handleWinnerHistory).Methods(http.MethodGet)

	// スピン
	api.HandleFunc("/spin/test", handleTestSpin).Methods(http.MethodPost)
	api.HandleFunc("/spin/status", handleSpinStatus).Methods(http.MethodGet)

	// デバッグ投入
	api.HandleFunc("/debug/gift", handleDebugGift).Methods(http.MethodPost)
	api.HandleFunc("/debug/chat", handleDebugChat).Methods(http.MethodPost)

	// 設定・状態
	api.HandleFunc("/settings", handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/status", handleStatus).Methods(http.MethodGet)

	api.HandleFunc("/events/history", handleEventHistory).Methods(http.MethodGet)
	api.HandleFunc("/overlay/qr", handleOverlayQR).Methods(http.MethodGet)

	r.HandleFunc("/ws", handleWS)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func StartWebServer(port int, d Dependencies) error {
	Configure(d)

	// WebSocketハブを起動し、エンジンの通知先として登録
	StartWSHub()
	broadcast.SetBroadcaster(wsBroadcaster{})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting web server", zap.String("address", addr))

	httpServer = &http.Server{
		Addr:        addr,
		Handler:     NewRouter(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func Shutdown() {
	broadcast.SetBroadcaster(nil)
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// engineError はエンジン呼び出しの失敗をHTTPステータスに変換する
func engineError(w http.ResponseWriter, err error) {
	if errors.Is(err, correlator.ErrEngineStopped) {
		http.Error(w, "Engine is not running", http.StatusServiceUnavailable)
		return
	}
	logger.Error("Engine request failed", zap.Error(err))
	http.Error(w, "Engine request failed", http.StatusInternalServerError)
}

func engineReady(w http.ResponseWriter) bool {
	if deps.Engine == nil {
		http.Error(w, "Engine is not running", http.StatusServiceUnavailable)
		return false
	}
	return true
}
