package broadcast

import (
	"sync"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"go.uber.org/zap"
)

// Broadcaster は視聴者への一方向通知を配る実装（webserverのWebSocketハブ）
type Broadcaster interface {
	BroadcastWSMessage(msgType string, data any)
}

var (
	mu          sync.RWMutex
	broadcaster Broadcaster
)

// SetBroadcaster は通知先を登録する。nil で解除。
func SetBroadcaster(b Broadcaster) {
	mu.Lock()
	defer mu.Unlock()
	broadcaster = b
}

// Send は登録済みの通知先へメッセージを渡す。未登録なら捨てる。
func Send(msgType string, data any) {
	mu.RLock()
	b := broadcaster
	mu.RUnlock()

	if b == nil {
		logger.Debug("No broadcaster registered, message dropped", zap.String("type", msgType))
		return
	}
	b.BroadcastWSMessage(msgType, data)
}

// Sink はエンジンの通知をそのまま Send に流す
type Sink struct{}

func (Sink) Emit(event string, payload any) {
	Send(event, payload)
}
