package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// HTTP 只提供查詢；所有狀態變更都走 WebSocket，經由 Coordinator 串行化。

// Handler HTTP 請求處理器
type Handler struct {
	coordinator *Coordinator
	hub         *WebSocketHub
	logger      *slog.Logger
	started     time.Time
}

// NewHandler 創建 HTTP 處理器
func NewHandler(coordinator *Coordinator, hub *WebSocketHub, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		hub:         hub,
		logger:      logger,
		started:     time.Now(),
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 查詢 API
	mux.HandleFunc("GET /api/v1/rooms", wrap(h.listRooms))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoomDetail))
	mux.HandleFunc("GET /api/v1/users/{user_id}", wrap(h.getUser))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	// WebSocket 升級需要原始 ResponseWriter（Hijacker），不包 loggerMiddleware
	if h.hub != nil {
		mux.HandleFunc("GET /ws/{role}", h.recoverer(h.hub.ServeWS))
	}

	return mux
}

// listRooms 列出房間
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.coordinator.ListPublic()

	h.jsonResponse(w, map[string]any{
		"rooms": rooms,
		"total": len(rooms),
	}, http.StatusOK)
}

// getRoomDetail 獲取房間詳情
func (h *Handler) getRoomDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.coordinator.RoomDetail(r.PathValue("room_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		h.errorResponse(w, err, status)
		return
	}

	h.jsonResponse(w, detail, http.StatusOK)
}

// getUser 查詢使用者（客戶端重連前確認記住的房間是否仍有效）
func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.coordinator.User(r.PathValue("user_id"))
	if !ok {
		h.errorResponse(w, ErrNotRegistered, http.StatusNotFound)
		return
	}

	h.jsonResponse(w, user, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
		"uptime": time.Since(h.started).String(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.coordinator.Stats()
	if h.hub != nil {
		stats["connections_by_role"] = h.hub.ConnectionCount()
	}
	h.jsonResponse(w, stats, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應，格式與 WebSocket 的 error 事件一致
func (h *Handler) errorResponse(w http.ResponseWriter, err error, status int) {
	h.jsonResponse(w, ErrorPayload{
		Code:   ErrorCode(err),
		Reason: err.Error(),
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.jsonResponse(w, ErrorPayload{Code: "internal", Reason: "內部伺服器錯誤"},
					http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
