package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   同一個人會同時開著選單頁與 3D 場景，兩者都需要即時推送。
//
// 設計方案：
//   ✅ 兩個端點：/ws/lobby 與 /ws/presence，角色在建立連接時決定
//   ✅ Hub 只管連接（connID → Connection），不知道房間；
//      房間名單由 Coordinator 從 Room Directory 取得後傳入
//   ✅ 每條連接一個緩衝 channel + writePump，發送永不阻塞 Coordinator
//   ✅ Ping/Pong 心跳檢測死連接
//
// 鎖順序：Coordinator.mu → hub.mu。Hub 持有 hub.mu 時絕不呼叫 Coordinator。

// RequestHandler 處理解碼後的客戶端請求
type RequestHandler interface {
	Handle(conn ConnID, role Role, req Request)
	Detach(conn ConnID)
	ListPublic() []RoomSummary
}

// WebSocketHub WebSocket 連接中心，實作 Transport
type WebSocketHub struct {
	handler     RequestHandler
	cfg         WebSocketConfig
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[ConnID]*Connection
	mu          sync.RWMutex
}

// Connection WebSocket 連接
type Connection struct {
	ID        ConnID
	Role      Role
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	LastPing  time.Time
	mu        sync.Mutex
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
//
// allowedOrigin 為空或 "*" 時不檢查來源；沒有 Origin 標頭的非瀏覽器客戶端一律放行。
func NewWebSocketHub(cfg WebSocketConfig, allowedOrigin string, logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[ConnID]*Connection),
	}
}

// SetHandler 設定請求處理器（Coordinator 需要先拿到 Hub 作為 Transport）
func (hub *WebSocketHub) SetHandler(handler RequestHandler) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.handler = handler
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := Role(r.PathValue("role"))
	if !role.Valid() {
		http.Error(w, "未知的連接角色", http.StatusBadRequest)
		return
	}

	hub.mu.RLock()
	handler := hub.handler
	hub.mu.RUnlock()
	if handler == nil {
		http.Error(w, "服務尚未就緒", http.StatusServiceUnavailable)
		return
	}

	// 升級為 WebSocket 連接
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:       ConnID(uuid.NewString()),
		Role:     role,
		Conn:     conn,
		Send:     make(chan []byte, hub.cfg.SendBuffer),
		Hub:      hub,
		LastPing: time.Now(),
	}

	hub.register(connection)

	// 新連接先拿到目前的房間列表
	hub.Send(connection.ID, Event{Type: EventRoomList, Data: handler.ListPublic()})

	go connection.writePump()
	go connection.readPump(handler)

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", connection.ID,
		"role", role,
		"remote_addr", r.RemoteAddr)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.ID] = conn
}

// unregister 取消註冊連接，返回連接是否仍在表中
func (hub *WebSocketHub) unregister(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	actual, exists := hub.connections[conn.ID]
	if !exists || actual != conn {
		return false
	}
	delete(hub.connections, conn.ID)

	// 使用 sync.Once 確保 channel 只關閉一次
	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
	return true
}

// Send 單播
func (hub *WebSocketHub) Send(conn ConnID, ev Event) {
	message := hub.encode(ev)
	if message == nil {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if c, exists := hub.connections[conn]; exists {
		c.enqueue(message)
	}
}

// Broadcast 多播到指定連接（只序列化一次）
func (hub *WebSocketHub) Broadcast(conns []ConnID, ev Event) {
	if len(conns) == 0 {
		return
	}
	message := hub.encode(ev)
	if message == nil {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, id := range conns {
		if c, exists := hub.connections[id]; exists {
			c.enqueue(message)
		}
	}
}

// BroadcastAll 多播到所有連接
func (hub *WebSocketHub) BroadcastAll(ev Event) {
	message := hub.encode(ev)
	if message == nil {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, c := range hub.connections {
		c.enqueue(message)
	}
}

// Disconnect 強制關閉連接
//
// 只關閉 Send channel：writePump 會先送完已排入的訊息（例如 evicted 通知），
// 再送出關閉幀並關閉底層連接。
func (hub *WebSocketHub) Disconnect(conn ConnID) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	c, exists := hub.connections[conn]
	if !exists {
		return
	}
	delete(hub.connections, conn)
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// Stop 關閉所有連接
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.connections {
		// 先關閉 Send channel，再關閉連接
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.connections = make(map[ConnID]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// ConnectionCount 各角色的連接數
func (hub *WebSocketHub) ConnectionCount() map[Role]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[Role]int)
	for _, conn := range hub.connections {
		result[conn.Role]++
	}
	return result
}

func (hub *WebSocketHub) encode(ev Event) []byte {
	message, err := json.Marshal(ev)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", ev.Type)
		return nil
	}
	return message
}

// enqueue 非阻塞入隊，呼叫端需持有 hub.mu（讀鎖即可）
func (c *Connection) enqueue(message []byte) {
	select {
	case c.Send <- message:
	default:
		// 慢客戶端不能拖累整個房間
		c.Hub.logger.Warn("連接緩衝區滿，丟棄訊息",
			"conn_id", c.ID,
			"role", c.Role)
	}
}

// readPump 讀取客戶端消息
//
// pong_wait 內沒有收到任何消息（包括 Pong）就關閉連接；
// 結束時通知 Coordinator 處理斷線。
func (c *Connection) readPump(handler RequestHandler) {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
		handler.Detach(c.ID)
		c.Hub.logger.Info("WebSocket 連接關閉",
			"conn_id", c.ID,
			"role", c.Role)
	}()

	cfg := c.Hub.cfg
	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	// Pong 處理器（收到 Pong 重置超時）
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			break
		}

		// 任何消息都代表連接仍然活著
		if err := c.Conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(handler, message)
		}
	}
}

// writePump 寫入消息到客戶端
func (c *Connection) writePump() {
	cfg := c.Hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，嘗試發送關閉消息，忽略錯誤（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					_ = c.Conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解碼並交給 Coordinator
func (c *Connection) handleMessage(handler RequestHandler, message []byte) {
	req, err := DecodeRequest(message)
	if err != nil {
		c.Hub.logger.Debug("解析客戶端消息失敗",
			"error", err,
			"conn_id", c.ID)
		c.Hub.Send(c.ID, errorEvent(EventError, err))
		return
	}
	handler.Handle(c.ID, c.Role, req)
}
