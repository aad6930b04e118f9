package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/framework"
	"vendormonitor/internal/store"
	"vendormonitor/pkg/errorutil"
	"vendormonitor/pkg/logger"
	"vendormonitor/pkg/metrics"
)

// RefresherConfig 刷新任务配置
type RefresherConfig struct {
	Interval    time.Duration // 调度间隔
	Workers     int           // 会话处理并发数
	TaskTimeout time.Duration // 单个会话处理超时
}

// Refresher 唯一的后台刷新循环：拉取 -> 分会话处理 -> 清理过期会话
type Refresher struct {
	cfg      RefresherConfig
	source   framework.TabularSource
	store    *store.Store
	hub      *broadcast.Hub
	pipeline *Pipeline
	now      func() time.Time
	logger   logger.Logger

	cycle     *atomic.Int64
	heartbeat *atomic.Int64 // 最近一轮开始时间（UnixNano）
	running   *atomic.Bool

	stopCtx context.Context
	stop    context.CancelFunc
	started *atomic.Bool
	done    chan struct{}
}

// NewRefresher 创建刷新任务
func NewRefresher(
	cfg RefresherConfig,
	source framework.TabularSource,
	st *store.Store,
	hub *broadcast.Hub,
	pipeline *Pipeline,
	log logger.Logger,
) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = 180 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if log == nil {
		log = logger.NewNop()
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Refresher{
		stopCtx:   stopCtx,
		stop:      stop,
		started:   atomic.NewBool(false),
		done:      make(chan struct{}),
		cfg:       cfg,
		source:    source,
		store:     st,
		hub:       hub,
		pipeline:  pipeline,
		now:       time.Now,
		logger:    log,
		cycle:     atomic.NewInt64(0),
		heartbeat: atomic.NewInt64(0),
		running:   atomic.NewBool(false),
	}
}

// GetName 名称
func (r *Refresher) GetName() string {
	return "refresher"
}

// Interval 调度间隔
func (r *Refresher) Interval() time.Duration {
	return r.cfg.Interval
}

// Cycles 已完成的轮次
func (r *Refresher) Cycles() int64 {
	return r.cycle.Load()
}

// Heartbeat 最近一轮开始时间，尚未运行时为零值
func (r *Refresher) Heartbeat() time.Time {
	ns := r.heartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Running 循环是否在运行
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// InitialFetch 同步拉取一次全部数据集后标记就绪。部分数据集失败时仍然就绪，失败原因按数据域记录
func (r *Refresher) InitialFetch(ctx context.Context) error {
	r.logger.Infof(ctx, "[Refresher] Initial fetch started")
	err := r.fetchAll(ctx)
	r.store.MarkReady()
	if err != nil {
		r.logger.Warnf(ctx, "[Refresher] Initial fetch finished with errors: %v", err)
		return err
	}
	r.logger.Infof(ctx, "[Refresher] Initial fetch complete")
	return nil
}

// Start 启动循环，阻塞到 Shutdown。只能调用一次
func (r *Refresher) Start() {
	if !r.started.CAS(false, true) {
		return
	}
	defer close(r.done)
	r.Run(r.stopCtx)
}

// Shutdown 停止循环并等待当前轮次结束
func (r *Refresher) Shutdown() {
	r.stop()
	if r.started.Load() {
		<-r.done
	}
}

// Run 按固定间隔执行刷新，直到 ctx 取消。单轮出错或 panic 不会终止循环
func (r *Refresher) Run(ctx context.Context) {
	if !r.running.CAS(false, true) {
		r.logger.Warnf(ctx, "[Refresher] Already running")
		return
	}
	defer r.running.Store(false)

	r.logger.Infof(ctx, "[Refresher] Started, interval: %v", r.cfg.Interval)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof(context.Background(), "[Refresher] Stopped after %d cycles", r.cycle.Load())
			return
		case <-ticker.C:
			r.safeCycle(ctx)
		}
	}
}

func (r *Refresher) safeCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf(ctx, "[Refresher] Cycle panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	r.RunCycle(ctx)
}

// RunCycle 执行一轮刷新
func (r *Refresher) RunCycle(ctx context.Context) {
	start := r.now()
	n := r.cycle.Inc()
	ctx = logger.WithCycle(ctx, n)

	// 1. 心跳（仅在轮次开始时更新）
	r.heartbeat.Store(start.UnixNano())
	metrics.RefreshHeartbeat.Set(float64(start.Unix()))

	// 2. 拉取三个数据集，互不影响
	if err := r.fetchAll(ctx); err != nil {
		r.logger.Warnf(ctx, "[Refresher] Cycle %d fetch errors: %v", n, err)
	}

	// 3. 处理 active 会话
	processed, failed := r.processSessions(ctx)

	// 4. 清理过期会话
	r.sweep(ctx)

	// 5. 会话数指标
	r.reportSessions(ctx)

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	r.logger.Infof(ctx, "[Refresher] Cycle %d done in %v, sessions processed=%d failed=%d", n, elapsed, processed, failed)
}

// fetchAll 并发拉取所有数据域，返回合并后的错误
func (r *Refresher) fetchAll(ctx context.Context) error {
	errs := make([]error, len(framework.Domains))

	var g errgroup.Group
	for i, d := range framework.Domains {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					errs[i] = fmt.Errorf("%s: %w", d, err)
					r.logger.Errorf(ctx, "[Refresher] Fetch %s panicked: %v\n%s", d, rec, debug.Stack())
					metrics.FetchTotal.WithLabelValues(string(d), "error").Inc()
					if recErr := r.store.RecordFetchError(ctx, d, err); recErr != nil {
						r.logger.Errorf(ctx, "[Refresher] Failed to record fetch error: %v", recErr)
					}
				}
			}()
			errs[i] = r.fetchOne(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// fetchOne 拉取单个数据域：成功则替换缓存，失败则记录错误并保留旧数据
func (r *Refresher) fetchOne(ctx context.Context, domain framework.Domain) error {
	ctx = logger.WithDomain(ctx, string(domain))
	start := time.Now()

	ds, err := r.source.Fetch(ctx, domain)
	metrics.FetchDuration.WithLabelValues(string(domain)).Observe(time.Since(start).Seconds())
	if err == nil && ds == nil {
		err = fmt.Errorf("source returned no dataset")
	}
	if err != nil {
		result := fetchResult(err)
		metrics.FetchTotal.WithLabelValues(string(domain), result).Inc()
		if result == fetchRetryable {
			r.logger.Warnf(ctx, "[Refresher] Fetch %s failed, keeping previous data until next cycle: %v", domain, err)
		} else {
			r.logger.Errorf(ctx, "[Refresher] Fetch %s failed permanently, keeping previous data: %v", domain, err)
		}
		if recErr := r.store.RecordFetchError(ctx, domain, err); recErr != nil {
			r.logger.Errorf(ctx, "[Refresher] Failed to record fetch error: %v", recErr)
		}
		return fmt.Errorf("%s: %w", domain, err)
	}

	ds.Domain = domain
	if ds.FetchedAt.IsZero() {
		ds.FetchedAt = r.now()
	}
	if err := r.store.StoreDataset(ctx, ds); err != nil {
		metrics.FetchTotal.WithLabelValues(string(domain), fetchFatal).Inc()
		r.logger.Errorf(ctx, "[Refresher] Failed to store %s: %v", domain, err)
		return fmt.Errorf("%s: %w", domain, err)
	}

	metrics.FetchTotal.WithLabelValues(string(domain), fetchOK).Inc()
	r.logger.Infof(ctx, "[Refresher] Fetched %s: %d rows in %v", domain, ds.Len(), time.Since(start))
	return nil
}

// fetch_total 的 result 标签
const (
	fetchOK        = "ok"
	fetchRetryable = "retryable"
	fetchFatal     = "fatal"
)

// fetchResult 按错误分类：网络、5xx、429 可在下一轮重试；认证、4xx、配置错误需要人工介入
func fetchResult(err error) string {
	switch {
	case err == nil:
		return fetchOK
	case errorutil.IsRetryable(err):
		return fetchRetryable
	default:
		return fetchFatal
	}
}

// processSessions 每个 active 会话作为一个任务交给处理池，互不阻塞
func (r *Refresher) processSessions(ctx context.Context) (int, int) {
	ids, err := r.store.ActiveSessions(ctx)
	if err != nil {
		r.logger.Errorf(ctx, "[Refresher] Failed to list sessions: %v", err)
		return 0, 0
	}
	if len(ids) == 0 {
		return 0, 0
	}

	failed := atomic.NewInt32(0)
	proc := framework.NewProcessor(&framework.ProcessorConfig{
		Concurrency: min(r.cfg.Workers, len(ids)),
		BufferSize:  len(ids),
		Timeout:     r.cfg.TaskTimeout,
	}, r.logger)
	proc.OnFailure(func(task *framework.Task, err error) {
		failed.Inc()
	})

	// 1. 任务全部入队
	inputChan := make(chan *framework.Task, len(ids))
	for _, id := range ids {
		inputChan <- &framework.Task{
			ID: id,
			Run: func(ctx context.Context) error {
				_, err := r.pipeline.Process(ctx, id, false)
				return err
			},
		}
	}

	// 2. 启动处理池，进入 Drain 模式后处理完剩余任务即退出
	proc.Start(ctx, inputChan)
	proc.SignalShutdown()
	proc.Wait()

	return len(ids), int(failed.Load())
}

// sweep 删除过期会话并断开其订阅
func (r *Refresher) sweep(ctx context.Context) {
	removed, err := r.store.SweepExpired(ctx)
	if err != nil {
		r.logger.Errorf(ctx, "[Refresher] Sweep failed: %v", err)
		return
	}
	for _, id := range removed {
		if n := r.hub.DropSession(id); n > 0 {
			r.logger.Infof(logger.WithSessionID(ctx, id), "[Refresher] Dropped %d subscribers of expired session", n)
		}
	}
}

func (r *Refresher) reportSessions(ctx context.Context) {
	counts, err := r.store.Counts(ctx)
	if err != nil {
		r.logger.Warnf(ctx, "[Refresher] Failed to count sessions: %v", err)
		return
	}
	for status, n := range counts {
		metrics.Sessions.WithLabelValues(string(status)).Set(float64(n))
	}
}
