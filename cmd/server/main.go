package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koopa0/system-design/presence-coordinator/internal"
)

func main() {
	// 解析命令行參數（覆蓋配置檔）
	var (
		configPath = flag.String("config", "", "配置檔路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
		natsURL    = flag.String("nats-url", "", "NATS 位址，空字串表示不發布生命週期事件")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *natsURL != "" {
		cfg.NATS.URL = *natsURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置無效: %v\n", err)
		os.Exit(1)
	}

	// 設置日誌
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := run(*cfg, logger); err != nil {
		logger.Error("服務器異常退出", "error", err)
		os.Exit(1)
	}
}

func run(cfg internal.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 生命週期事件流
	var sink internal.LifecycleSink = internal.NewLogSink(logger)
	if cfg.NATS.URL != "" {
		natsSink, err := internal.NewNATSSink(cfg.NATS, logger)
		if err != nil {
			return err
		}
		sink = natsSink
		logger.Info("生命週期事件將發布到 NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	// Hub 是 Coordinator 的 Transport，Coordinator 又是 Hub 的請求處理器
	wsHub := internal.NewWebSocketHub(cfg.WebSocket, cfg.Server.AllowedOrigin, logger)
	coordinator := internal.NewCoordinator(wsHub, sink, cfg.Rooms, logger)
	wsHub.SetHandler(coordinator)

	handler := internal.NewHandler(coordinator, wsHub, logger)

	// 創建 HTTP 服務器（WebSocket 是長連接，不設 WriteTimeout）
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     handler.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 啟動服務器
	g.Go(func() error {
		logger.Info("在線狀態協調服務啟動",
			"port", cfg.Server.Port,
			"log_level", cfg.Log.Level,
			"log_format", cfg.Log.Format)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服務器啟動失敗: %w", err)
		}
		return nil
	})

	// 等待中斷信號後優雅關閉
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("收到關閉信號，開始優雅關閉...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 停止接受新連接
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("服務器關閉失敗", "error", err)
		}

		// 停止 WebSocket Hub，各連接的 readPump 會回報斷線
		wsHub.Stop()

		// 停止協調器
		coordinator.Stop()

		if err := sink.Close(); err != nil {
			logger.Warn("關閉事件流失敗", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("服務器已關閉")
	return nil
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
