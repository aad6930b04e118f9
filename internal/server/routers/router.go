package routers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vendormonitor/internal/server/handlers/health"
	"vendormonitor/internal/server/handlers/realtime"
	"vendormonitor/internal/server/handlers/session"
	"vendormonitor/internal/server/middlewares"
	"vendormonitor/pkg/logger"
)

// Options 路由配置
type Options struct {
	CORSAllowedOrigins []string
	MetricsEnabled     bool
	MetricsPath        string
	Logger             logger.Logger
}

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(
	sessionHandler *session.SessionHandler,
	healthHandler *health.HealthHandler,
	realtimeHandler *realtime.RealtimeHandler,
	opts Options,
) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.CORS(opts.CORSAllowedOrigins))
	r.Use(middlewares.Logger(log))
	r.Use(middlewares.ErrorHandler(log))

	r.GET("/health", healthHandler.Live)
	r.GET("/health/jobs", healthHandler.Jobs)
	r.GET("/ready", healthHandler.Ready)

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/ws", realtimeHandler.Serve)

	api := r.Group("/api")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.POST("/:id/refresh", sessionHandler.Refresh)
			sessions.GET("/:id/status", sessionHandler.Status)
			sessions.POST("/:id/clear", sessionHandler.Clear)
			sessions.GET("/:id/vendors", sessionHandler.Vendors)
			sessions.GET("/:id/alerts/cleared", sessionHandler.ClearedAlerts)
			sessions.GET("/:id/alerts/archive", sessionHandler.Archive)
		}
	}

	return r
}
