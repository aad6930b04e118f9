package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vendormonitor/internal/worker"
	"vendormonitor/pkg/config"
	"vendormonitor/pkg/logger"
	"vendormonitor/pkg/metrics"
)

var (
	configPath = flag.String("config", "./config/monitor.yaml", "配置文件路径")
)

// initialFetchTimeout 启动时同步拉取的上限，超时后仍然就绪并交给调度循环重试
const initialFetchTimeout = 10 * time.Minute

func main() {
	flag.Parse()

	log.Println("========================================")
	log.Println("  Vendor Monitor Starting...")
	log.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}
	log.Printf("Config loaded: %s, env: %s, log_level: %s\n", cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)

	// 2. 初始化 Logger 与指标
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	// 3. 组装组件
	ctx := context.Background()
	app, cleanup, err := InitializeApp(ctx, cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer cleanup()

	// 4. 启动 HTTP Server：首次拉取期间存活检查可用，就绪检查与会话创建返回未就绪
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	serverErrChan := make(chan error, 1)
	go func() {
		zapLogger.Infof(ctx, "[Main] HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 5. 后台首次拉取，完成后启动 Manager
	bgCtx, cancelBackground := context.WithCancel(ctx)
	backgroundDone := startBackground(bgCtx, app.Refresher, app.Manager, zapLogger)

	// 6. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v, shutting down...", sig)
	case err := <-serverErrChan:
		zapLogger.Errorf(ctx, "[Main] HTTP server error: %v", err)
	}

	// 7. 优雅停机：先停首次拉取与调度，再停 HTTP，最后关闭订阅与外部连接
	cancelBackground()
	app.Manager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	select {
	case <-backgroundDone:
	case <-shutdownCtx.Done():
		zapLogger.Warnf(ctx, "[Main] Background jobs did not stop within %v", cfg.Server.ShutdownTimeout)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Errorf(ctx, "[Main] HTTP server shutdown error: %v", err)
	}

	log.Println("========================================")
	log.Println("  Vendor Monitor exited gracefully")
	log.Println("========================================")
}

// initialFetcher 启动时的同步首次拉取
type initialFetcher interface {
	InitialFetch(ctx context.Context) error
}

// startBackground 先完成首次拉取（上限 initialFetchTimeout），再启动 Manager。
// ctx 取消时放弃首次拉取且不再启动 Manager；返回的通道在后台任务全部结束后关闭
func startBackground(ctx context.Context, fetcher initialFetcher, mgr worker.Manager, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		fetchCtx, cancel := context.WithTimeout(ctx, initialFetchTimeout)
		err := fetcher.InitialFetch(fetchCtx)
		cancel()
		if err != nil {
			log.Warnf(ctx, "[Main] Initial fetch incomplete, serving with partial data: %v", err)
		}

		if ctx.Err() != nil {
			log.Infof(context.Background(), "[Main] Shutdown requested before background jobs started")
			return
		}
		if err := mgr.Start(); err != nil {
			log.Errorf(ctx, "[Main] Manager start failed: %v", err)
		}
	}()
	return done
}
