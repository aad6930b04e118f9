package framework

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"vendormonitor/pkg/logger"
)

// Processor 处理器：从 inputChan 接收任务并发执行，单个任务失败或 panic 不影响其它任务
type Processor struct {
	cfg        *ProcessorConfig
	logger     logger.Logger
	shutdownCh chan struct{} // 专门的退出信号通道
	wg         sync.WaitGroup
	onFailure  func(task *Task, err error)
}

// NewProcessor 创建处理器
func NewProcessor(cfg *ProcessorConfig, log logger.Logger) *Processor {
	return &Processor{
		cfg:        cfg,
		logger:     log,
		shutdownCh: make(chan struct{}),
	}
}

// OnFailure 设置任务失败回调
func (p *Processor) OnFailure(fn func(task *Task, err error)) {
	p.onFailure = fn
}

// Start 启动处理协程
func (p *Processor) Start(ctx context.Context, inputChan <-chan *Task) {
	p.logger.Debugf(ctx, "[Processor] Starting with %d workers", p.cfg.Concurrency)

	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := i
		p.wg.Add(1)
		go p.loop(ctx, workerID, inputChan)
	}
}

// SignalShutdown 通知 Processor 准备退出（进入 Drain 模式）
func (p *Processor) SignalShutdown() {
	p.logger.Debugf(context.Background(), "[Processor] Shutdown signal received")
	close(p.shutdownCh)
}

// Wait 等待所有处理协程退出
func (p *Processor) Wait() {
	p.wg.Wait()
	p.logger.Debugf(context.Background(), "[Processor] All workers exited")
}

// loop 处理循环（单个协程）
func (p *Processor) loop(ctx context.Context, workerID int, inputChan <-chan *Task) {
	defer p.wg.Done()
	p.logger.Debugf(ctx, "[Processor-%d] Started", workerID)

	for {
		select {
		// A. 正常处理
		case task := <-inputChan:
			p.process(ctx, task, workerID)

		// B. Drain 模式：处理完剩余任务再退出
		case <-p.shutdownCh:
			count := 0
			for {
				select {
				case task := <-inputChan:
					p.process(ctx, task, workerID)
					count++
				default:
					p.logger.Debugf(ctx, "[Processor-%d] Drained %d tasks, exiting", workerID, count)
					return
				}
			}
		}
	}
}

// process 处理单个任务
func (p *Processor) process(ctx context.Context, task *Task, workerID int) {
	if task == nil || task.Run == nil {
		return
	}

	startTime := time.Now()

	// 1. 创建超时控制的 Context
	procCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	// 2. 注入元信息
	procCtx = logger.WithWorkerID(procCtx, workerID)

	// 3. 执行任务，panic 转为错误
	err := p.safeRun(procCtx, task)

	// 4. 记录处理结果
	duration := time.Since(startTime)
	if err != nil {
		p.logger.Errorf(procCtx, "[Processor-%d] Task %s failed after %v: %v", workerID, task.ID, duration, err)
		if p.onFailure != nil {
			p.onFailure(task, err)
		}
		return
	}
	p.logger.Debugf(procCtx, "[Processor-%d] Task %s done, duration: %v", workerID, task.ID, duration)
}

func (p *Processor) safeRun(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task.Run(ctx)
}
