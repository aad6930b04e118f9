package worker

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"vendormonitor/pkg/logger"
)

// Worker 后台任务接口
type Worker interface {
	Start()
	Shutdown()
	GetName() string
}

// Manager 接口
type Manager interface {
	Start() error
	Shutdown()
}

// ManagerInstance Manager 实例
type ManagerInstance struct {
	ctx        context.Context
	workers    []Worker
	started    *atomic.Bool
	closing    *atomic.Bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	logger     logger.Logger
}

// NewManagerInstance 创建 Manager
func NewManagerInstance(log logger.Logger, workers ...Worker) *ManagerInstance {
	if log == nil {
		log = logger.NewNop()
	}
	return &ManagerInstance{
		ctx:        context.Background(),
		workers:    workers,
		started:    atomic.NewBool(false),
		closing:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		logger:     log,
	}
}

// Start 启动所有 Worker，阻塞到 Shutdown 完成
func (m *ManagerInstance) Start() error {
	if !m.started.CAS(false, true) {
		return nil
	}
	m.logger.Infof(m.ctx, "[Manager] Starting %d workers...", len(m.workers))

	// 1. 每个 Worker 在独立 goroutine 中运行
	for _, worker := range m.workers {
		w := worker
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Start()
		}()
		m.logger.Infof(m.ctx, "[Manager] Worker started: %s", w.GetName())
	}

	m.logger.Infof(m.ctx, "[Manager] Start success")

	// 2. 阻塞等待退出信号
	<-m.shutdownCh
	return nil
}

// Shutdown 优雅退出
func (m *ManagerInstance) Shutdown() {
	m.logger.Infof(m.ctx, "[Manager] Began to close")

	// 原子操作，保证只关闭一次
	if m.closing.CAS(false, true) {
		// 1. 通知所有 Worker 退出
		for _, worker := range m.workers {
			m.logger.Infof(m.ctx, "[Manager] Shutting down worker: %s", worker.GetName())
			worker.Shutdown()
		}

		// 2. 等待所有 Worker 退出
		m.wg.Wait()

		// 3. 关闭信号通道
		close(m.shutdownCh)

		m.logger.Infof(m.ctx, "[Manager] Shutdown complete")
	}
}
