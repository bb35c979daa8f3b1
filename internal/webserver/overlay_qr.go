package webserver

import (
	"net/http"
	"strconv"

	"github.com/Tirta71/live-tiktok/internal/env"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// overlayURL は QR に埋め込むオーバーレイのURL
func overlayURL(r *http.Request) string {
	if env.Value.OverlayPublicURL != "" {
		return env.Value.OverlayPublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

// handleOverlayQR handles GET /api/overlay/qr
// スマホなど別端末でオーバーレイを開くためのQRコード(PNG)を返す
func handleOverlayQR(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil || parsed < 64 || parsed > maxQRSize {
			http.Error(w, "size must be between 64 and 1024", http.StatusBadRequest)
			return
		}
		size = parsed
	}

	content := overlayURL(r)
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		logger.Error("Failed to generate overlay QR code", zap.Error(err), zap.String("url", content))
		http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
