// Package lockx 提供带超时的作用域锁。
//
// 获取锁最多等待配置的超时时间；超时返回 *TimeoutError，并记录当前持有者的操作名。
// 锁不可重入：持有期间调用的辅助函数以 Locked 结尾，约定调用方已持有锁。
package lockx

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"vendormonitor/pkg/errorx"
	"vendormonitor/pkg/logger"
)

// TimeoutError 获取锁超时
type TimeoutError struct {
	Lock    string
	Op      string
	Holder  string
	HeldFor time.Duration
	Waited  time.Duration
}

// Error 实现 error 接口
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %s: %s waited %v, held by %q for %v",
		e.Lock, e.Op, e.Waited, e.Holder, e.HeldFor)
}

// Unwrap 支持 errors.Is(err, errorx.ErrLockTimeout)
func (e *TimeoutError) Unwrap() error {
	return errorx.ErrLockTimeout
}

// TimeoutHook 超时回调（用于指标统计）
type TimeoutHook func(lock string)

// TimedMutex 带超时的互斥锁
type TimedMutex struct {
	name      string
	timeout   time.Duration
	sem       chan struct{}
	holder    *atomic.String
	since     *atomic.Int64
	logger    logger.Logger
	onTimeout TimeoutHook
}

// New 创建 TimedMutex
func New(name string, timeout time.Duration, log logger.Logger) *TimedMutex {
	if log == nil {
		log = logger.NewNop()
	}
	return &TimedMutex{
		name:    name,
		timeout: timeout,
		sem:     make(chan struct{}, 1),
		holder:  atomic.NewString(""),
		since:   atomic.NewInt64(0),
		logger:  log,
	}
}

// OnTimeout 设置超时回调
func (m *TimedMutex) OnTimeout(hook TimeoutHook) {
	m.onTimeout = hook
}

// Do 在锁内执行 fn，任何退出路径（包括 panic）都会释放锁
func (m *TimedMutex) Do(ctx context.Context, op string, fn func() error) error {
	if err := m.acquire(ctx, op); err != nil {
		return err
	}
	defer m.release()
	return fn()
}

// Holder 当前持有者操作名，空表示未持有
func (m *TimedMutex) Holder() string {
	return m.holder.Load()
}

func (m *TimedMutex) acquire(ctx context.Context, op string) error {
	// 快速路径
	select {
	case m.sem <- struct{}{}:
		m.mark(op)
		return nil
	default:
	}

	start := time.Now()
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case m.sem <- struct{}{}:
		m.mark(op)
		return nil
	case <-timer.C:
		err := &TimeoutError{
			Lock:    m.name,
			Op:      op,
			Holder:  m.holder.Load(),
			HeldFor: time.Since(time.Unix(0, m.since.Load())),
			Waited:  time.Since(start),
		}
		m.logger.Errorf(ctx, "[Lock] %s: acquisition by %s timed out after %v, holder=%s held_for=%v",
			m.name, op, err.Waited, err.Holder, err.HeldFor)
		if m.onTimeout != nil {
			m.onTimeout(m.name)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *TimedMutex) mark(op string) {
	m.holder.Store(op)
	m.since.Store(time.Now().UnixNano())
}

func (m *TimedMutex) release() {
	m.holder.Store("")
	<-m.sem
}
