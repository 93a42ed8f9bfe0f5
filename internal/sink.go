package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// 生命週期事件流
//
// 房間創建/刪除、房主變更、驅逐等事件除了推給客戶端，也發布到 NATS，
// 讓分析或監控服務訂閱（subject: <prefix>.<kind>，如 presence.room_deleted）。
// 這是單向通知，協調器不依賴任何訂閱者，也不從 NATS 讀回狀態。

// 事件種類
const (
	LifecycleRoomCreated    = "room_created"
	LifecycleRoomDeleted    = "room_deleted"
	LifecycleHostChanged    = "host_changed"
	LifecycleMemberAttached = "member_attached"
	LifecycleMemberDetached = "member_detached"
	LifecycleSeatReserved   = "seat_reserved"
	LifecycleSeatReleased   = "seat_released"
	LifecycleEvicted        = "connection_evicted"
	LifecycleUserReleased   = "user_released"
)

// LifecycleEvent 生命週期事件
type LifecycleEvent struct {
	Kind   string    `json:"kind"`
	RoomID string    `json:"room_id,omitempty"`
	UserID string    `json:"user_id,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// LifecycleSink 生命週期事件接收端，Publish 必須非阻塞
type LifecycleSink interface {
	Publish(ev LifecycleEvent)
	Close() error
}

// NATSSink 發布到 NATS
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSSink 連接 NATS
func NewNATSSink(cfg NATSConfig, logger *slog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("presence-coordinator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "presence"
	}

	return &NATSSink{conn: conn, prefix: prefix, logger: logger}, nil
}

// Publish 發布事件（nats.Conn.Publish 寫入本地緩衝區，不等待伺服器）
func (s *NATSSink) Publish(ev LifecycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("序列化生命週期事件失敗", "error", err, "kind", ev.Kind)
		return
	}
	if err := s.conn.Publish(s.prefix+"."+ev.Kind, data); err != nil {
		s.logger.Warn("發布生命週期事件失敗", "error", err, "kind", ev.Kind)
	}
}

// Close 送出緩衝區後關閉
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}

// LogSink 未配置 NATS 時只寫 debug 日誌
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink 創建日誌接收端
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ev LifecycleEvent) {
	s.logger.Debug("生命週期事件",
		"kind", ev.Kind,
		"room_id", ev.RoomID,
		"user_id", ev.UserID,
		"detail", ev.Detail)
}

func (s *LogSink) Close() error { return nil }
