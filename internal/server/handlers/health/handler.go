package health

import (
	"context"
	"time"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/store"
)

// JobStatus 后台刷新任务的运行状态
type JobStatus interface {
	Heartbeat() time.Time
	Cycles() int64
	Running() bool
}

// Pinger 外部依赖连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// 单个依赖检查的超时
const pingTimeout = 2 * time.Second

// HealthHandler 存活/就绪/后台任务检查
type HealthHandler struct {
	store     *store.Store
	hub       *broadcast.Hub
	jobs      JobStatus
	threshold time.Duration
	checks    map[string]Pinger
	now       func() time.Time
}

// NewHealthHandler 创建检查处理器；threshold 为心跳允许的最大间隔
func NewHealthHandler(st *store.Store, hub *broadcast.Hub, jobs JobStatus, threshold time.Duration) *HealthHandler {
	return &HealthHandler{
		store:     st,
		hub:       hub,
		jobs:      jobs,
		threshold: threshold,
		checks:    make(map[string]Pinger),
		now:       time.Now,
	}
}

// AddCheck 注册就绪检查项（redis、mysql 等可选依赖），任一失败时 /ready 返回 503
func (h *HealthHandler) AddCheck(name string, p Pinger) {
	h.checks[name] = p
}
