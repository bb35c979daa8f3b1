package webserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/types"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 8 * 1024

	// 視聴者画面からの操作は1クライアントあたり毎秒10件まで（瞬間20件）
	wsInboundRate  = 10
	wsInboundBurst = 20
)

// 視聴者画面から送られてくる操作
const (
	wsInResolveClaim = "resolve_claim"
	wsInSubmitResult = "submit_result"
	wsInTestSpin     = "test_spin"
)

// WSMessage はWebSocketメッセージの構造を定義
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSClient はWebSocket接続クライアントを表す
type WSClient struct {
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	connectedAt time.Time
	limiter     *rate.Limiter
}

// WSHub はすべてのWebSocket接続を管理
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan WSMessage
	mu         sync.RWMutex
}

var wsUpgrader = websocket.Upgrader{
	// オーバーレイはOBSのブラウザソースなど任意のオリジンから接続する
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var (
	wsHub = &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan WSMessage, 256),
	}
	wsHubOnce sync.Once
)

// StartWSHub WebSocketハブを起動
func StartWSHub() {
	wsHubOnce.Do(func() {
		go wsHub.run()
	})
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			logger.Info("WebSocket client connected",
				zap.String("clientId", client.clientID),
				zap.Int("total_clients", total))

			// 接続確認メッセージを送信
			hello, _ := json.Marshal(map[string]string{"clientId": client.clientID})
			if data, err := json.Marshal(WSMessage{Type: "connected", Data: hello}); err == nil {
				select {
				case client.send <- data:
				default:
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				remaining := len(h.clients)
				h.mu.Unlock()

				logger.Info("WebSocket client disconnected",
					zap.String("clientId", client.clientID),
					zap.Int("remaining_clients", remaining))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to marshal WebSocket message", zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// クライアントのバッファがフルの場合は切断
					go func(c *WSClient) {
						h.unregister <- c
						c.conn.Close()
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount は接続中のクライアント数
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastWSMessage すべてのクライアントにメッセージを送信
func BroadcastWSMessage(msgType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket broadcast data", zap.Error(err))
		return
	}

	select {
	case wsHub.broadcast <- WSMessage{Type: msgType, Data: jsonData}:
		logger.Debug("WebSocket message queued for broadcast", zap.String("message_type", msgType))
	default:
		logger.Warn("WebSocket broadcast channel full, message dropped", zap.String("message_type", msgType))
	}
}

// handleWS WebSocket接続を処理
func handleWS(w http.ResponseWriter, r *http.Request) {
	// クライアントIDを取得または生成
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = generateClientID()
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:        conn,
		send:        make(chan []byte, 256),
		clientID:    clientID,
		connectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(wsInboundRate), wsInboundBurst),
	}

	wsHub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		wsHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			logger.Warn("WebSocket client rate limited, message dropped", zap.String("clientId", c.clientID))
			continue
		}
		c.handleInbound(message)
	}
}

// handleInbound は視聴者画面からの操作をエンジンに渡す（応答は返さない）
func (c *WSClient) handleInbound(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Debug("Invalid WebSocket message", zap.String("clientId", c.clientID), zap.Error(err))
		return
	}
	if deps.Engine == nil {
		logger.Warn("WebSocket control message received before engine start", zap.String("type", msg.Type))
		return
	}

	var err error
	switch msg.Type {
	case wsInResolveClaim:
		var req resolveClaimRequest
		if err = json.Unmarshal(msg.Data, &req); err == nil {
			if userID := req.userID(); userID != "" {
				err = deps.Engine.ResolveClaim(userID)
			}
		}
	case wsInSubmitResult:
		var sub types.ResultSubmission
		if err = json.Unmarshal(msg.Data, &sub); err == nil {
			err = deps.Engine.SubmitResult(sub)
		}
	case wsInTestSpin:
		var req testSpinRequest
		if len(msg.Data) > 0 {
			err = json.Unmarshal(msg.Data, &req)
		}
		if err == nil {
			err = deps.Engine.TestSpin(strings.TrimSpace(req.Identity))
		}
	default:
		logger.Debug("Received WebSocket message from client",
			zap.String("clientId", c.clientID),
			zap.String("type", msg.Type))
		return
	}

	if err != nil {
		logger.Warn("Failed to handle WebSocket control message",
			zap.String("clientId", c.clientID),
			zap.String("type", msg.Type),
			zap.Error(err))
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// ハートビート
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// generateClientID クライアントIDを生成
func generateClientID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "ws-" + time.Now().Format("20060102150405.000000000")
	}
	return "ws-" + id
}
