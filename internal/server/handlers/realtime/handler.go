package realtime

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/store"
	"vendormonitor/pkg/logger"
)

// 实时通道控制事件
const (
	EventRegister   = "register_session"
	EventRegistered = "session_registered"
	EventError      = "session_error"
)

const (
	defaultPingInterval = 25 * time.Second
	registerTimeout     = 30 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 4096
)

// Config 实时通道配置
type Config struct {
	BufferSize     int
	PingInterval   time.Duration
	AllowedOrigins []string
}

// RealtimeHandler WebSocket 实时通道：一个连接注册到一个会话，只接收该会话的事件
type RealtimeHandler struct {
	store    *store.Store
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	cfg      Config
	logger   logger.Logger
}

// NewRealtimeHandler 创建实时通道处理器
func NewRealtimeHandler(st *store.Store, hub *broadcast.Hub, cfg Config, log logger.Logger) *RealtimeHandler {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = broadcast.DefaultBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if log == nil {
		log = logger.NewNop()
	}

	origins := cfg.AllowedOrigins
	return &RealtimeHandler{
		store: st,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
		cfg:    cfg,
		logger: log,
	}
}
