package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服務配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Rooms     RoomConfig      `yaml:"rooms"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
}

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Port int `yaml:"port"`

	// 允許的 WebSocket Origin，空字串或 "*" 表示不檢查
	AllowedOrigin string `yaml:"allowed_origin"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RoomConfig 房間限制
type RoomConfig struct {
	MinCapacity     int `yaml:"min_capacity"`
	MaxCapacity     int `yaml:"max_capacity"`
	DefaultCapacity int `yaml:"default_capacity"`
	MaxNameLength   int `yaml:"max_name_length"`

	// 定期重新廣播房間列表（安全網），0 表示停用
	ListRefresh time.Duration `yaml:"list_refresh"`
}

// WebSocketConfig 連接參數
//
// 心跳時間配置：ping_interval 必須小於 pong_wait，
// 否則正常連接也會在收到 Pong 前超時。
type WebSocketConfig struct {
	PongWait       time.Duration `yaml:"pong_wait"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteWait      time.Duration `yaml:"write_wait"`
	SendBuffer     int           `yaml:"send_buffer"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

// NATSConfig 生命週期事件流配置，URL 為空時只寫日誌
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Rooms: RoomConfig{
			MinCapacity:     1,
			MaxCapacity:     16,
			DefaultCapacity: 6,
			MaxNameLength:   32,
			ListRefresh:     30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PongWait:       60 * time.Second,
			PingInterval:   54 * time.Second,
			WriteWait:      10 * time.Second,
			SendBuffer:     256,
			MaxMessageSize: 4096,
		},
		NATS: NATSConfig{
			SubjectPrefix: "presence",
		},
	}
}

// LoadConfig 載入配置檔案
//
// 檔案只需列出要覆寫的欄位，其餘沿用 DefaultConfig。
// path 為空時直接返回預設配置。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("讀取配置檔案失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置檔案失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無效的端口: %d", c.Server.Port)
	}

	r := c.Rooms
	if r.MinCapacity < 1 {
		return fmt.Errorf("min_capacity 至少為 1")
	}
	if r.MaxCapacity < r.MinCapacity {
		return fmt.Errorf("max_capacity (%d) 小於 min_capacity (%d)", r.MaxCapacity, r.MinCapacity)
	}
	if r.DefaultCapacity < r.MinCapacity || r.DefaultCapacity > r.MaxCapacity {
		return fmt.Errorf("default_capacity 必須在 %d-%d 之間", r.MinCapacity, r.MaxCapacity)
	}
	if r.MaxNameLength <= 0 {
		return fmt.Errorf("max_name_length 必須大於 0")
	}
	if r.ListRefresh < 0 {
		return fmt.Errorf("list_refresh 不能為負數")
	}

	ws := c.WebSocket
	if ws.PingInterval <= 0 || ws.PingInterval >= ws.PongWait {
		return fmt.Errorf("ping_interval 必須大於 0 且小於 pong_wait")
	}
	if ws.WriteWait <= 0 {
		return fmt.Errorf("write_wait 必須大於 0")
	}
	if ws.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer 必須大於 0")
	}
	if ws.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size 必須大於 0")
	}

	return nil
}
