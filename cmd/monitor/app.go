package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/business"
	"vendormonitor/internal/framework"
	"vendormonitor/internal/server/handlers/health"
	"vendormonitor/internal/server/handlers/realtime"
	"vendormonitor/internal/server/handlers/session"
	"vendormonitor/internal/server/routers"
	"vendormonitor/internal/store"
	"vendormonitor/internal/worker"
	"vendormonitor/pkg/config"
	"vendormonitor/pkg/infra/mysql"
	"vendormonitor/pkg/infra/redis"
	"vendormonitor/pkg/lmstfy"
	"vendormonitor/pkg/logger"
	"vendormonitor/pkg/metabase"
	"vendormonitor/pkg/metrics"
)

// App 组装完成的进程组件
type App struct {
	Engine    *gin.Engine
	Store     *store.Store
	Hub       *broadcast.Hub
	Refresher *worker.Refresher
	Manager   worker.Manager
}

// InitializeApp 按配置组装全部组件；可选依赖（Redis/MySQL/Lmstfy）未配置时跳过
func InitializeApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, func(), error) {
	closers := make([]func(), 0)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// 1. 可选：Redis（令牌共享 + 事件镜像）
	var tokens metabase.TokenStore
	var mirrors []broadcast.Mirror
	readiness := make(map[string]health.Pinger)
	if cfg.Redis.Addr != "" {
		rc, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		tokens = redis.NewTokenStore(rc, cfg.Redis.TokenKey, 0)
		mirrors = append(mirrors, broadcast.NewChannelMirror(rc, cfg.Redis.ChannelPrefix))
		readiness["redis"] = rc
		log.Infof(ctx, "[App] Redis enabled at %s", cfg.Redis.Addr)
	}

	// 2. 可选：Lmstfy（告警通知队列）
	if cfg.Lmstfy.Host != "" {
		lc, err := lmstfy.NewClient(cfg.Lmstfy.Host, cfg.Lmstfy.Port, cfg.Lmstfy.Namespace, cfg.Lmstfy.Token, cfg.Lmstfy.Queue, cfg.Lmstfy.TTL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create lmstfy client: %w", err)
		}
		mirrors = append(mirrors, broadcast.NewQueueMirror(lc, string(business.EventNewAlert), string(business.EventAlertCleared)))
		log.Infof(ctx, "[App] Lmstfy notifications enabled, queue=%s", lc.Queue())
	}

	// 3. 可选：MySQL（已清除告警归档）
	var archiver worker.Archiver
	var archive session.ArchiveReader
	if cfg.MySQL.DSN != "" {
		dao, err := mysql.NewAlertArchiveDAO(cfg.MySQL.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect mysql: %w", err)
		}
		closers = append(closers, func() { _ = dao.Close() })
		if err := dao.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate archive: %w", err)
		}
		archiver = worker.NewDAOArchiver(dao)
		archive = dao
		readiness["mysql"] = dao
		log.Infof(ctx, "[App] Cleared alert archive enabled")
	}

	// 4. 数据源
	source := metabase.New(metabase.Config{
		URL:            cfg.Metabase.URL,
		Username:       cfg.Metabase.Username,
		Password:       cfg.Metabase.Password,
		Database:       cfg.Metabase.Database,
		PageSize:       cfg.Metabase.PageSize,
		Workers:        cfg.Metabase.Workers,
		RequestTimeout: cfg.Metabase.RequestTimeout,
		Questions: map[string]int{
			string(framework.DomainDiscountStock):       cfg.Questions.DiscountStock,
			string(framework.DomainVendorStatus):        cfg.Questions.VendorStatus,
			string(framework.DomainVendorProductStatus): cfg.Questions.VendorProductStatus,
		},
	}, tokens, log)

	// 5. 核心：Store、Hub、引擎、流水线、刷新任务
	st := store.New(store.Options{
		InactivityTimeout: cfg.Session.InactivityTimeout,
		LockTimeout:       cfg.Session.LockTimeout,
		OnLockTimeout:     metrics.LockTimeout,
	}, log)

	hub := broadcast.NewHub(log, mirrors...)
	hub.OnDrop(metrics.BroadcastDropped.Inc)
	closers = append(closers, hub.Close)

	engine := business.NewEngine(cfg.Alerts.DiscountNearEndThreshold)
	pipeline := worker.NewPipeline(st, hub, engine, archiver, log)
	refresher := worker.NewRefresher(worker.RefresherConfig{
		Interval:    cfg.RefreshInterval(),
		Workers:     cfg.Jobs.SessionWorkers,
		TaskTimeout: cfg.Jobs.SessionTimeout,
	}, source, st, hub, pipeline, log)

	// 6. HTTP
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	healthHandler := health.NewHealthHandler(st, hub, refresher, cfg.HeartbeatThreshold())
	for name, p := range readiness {
		healthHandler.AddCheck(name, p)
	}
	r := routers.SetupRoutes(
		session.NewSessionHandler(st, pipeline, hub, archive, cfg.Alerts.PrimeProductStatus, log),
		healthHandler,
		realtime.NewRealtimeHandler(st, hub, realtime.Config{
			BufferSize:     cfg.Session.EventBuffer,
			PingInterval:   cfg.Server.WSPingInterval,
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		}, log),
		routers.Options{
			CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
			MetricsEnabled:     cfg.Metrics.Enabled,
			MetricsPath:        cfg.Metrics.Path,
			Logger:             log,
		},
	)

	return &App{
		Engine:    r,
		Store:     st,
		Hub:       hub,
		Refresher: refresher,
		Manager:   worker.NewManagerInstance(log, refresher),
	}, cleanup, nil
}

