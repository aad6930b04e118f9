// Package store 进程内唯一的共享状态：数据集缓存、会话注册表以及每个会话的告警簿。
//
// 锁分两层：Store 锁保护缓存引用和会话表，会话锁保护该会话的告警簿。
// 两层锁从不嵌套持有，先在 Store 锁内取出会话再释放，然后才获取会话锁。
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"vendormonitor/internal/business"
	"vendormonitor/internal/framework"
	"vendormonitor/pkg/errorx"
	"vendormonitor/pkg/lockx"
	"vendormonitor/pkg/logger"
)

// DefaultInactivityTimeout 默认会话不活跃超时
const DefaultInactivityTimeout = 5 * time.Minute

// Options Store 配置
type Options struct {
	InactivityTimeout time.Duration
	LockTimeout       time.Duration
	OnLockTimeout     lockx.TimeoutHook
	Now               func() time.Time
}

// Store 共享状态
type Store struct {
	opts     Options
	lock     *lockx.TimedMutex
	cache    *Snapshot
	sessions map[string]*Session
	ready    *atomic.Bool
	logger   logger.Logger
}

// New 创建 Store
func New(opts Options, log logger.Logger) *Store {
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = DefaultInactivityTimeout
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}

	lock := lockx.New("store", opts.LockTimeout, log)
	lock.OnTimeout(opts.OnLockTimeout)

	return &Store{
		opts:     opts,
		lock:     lock,
		cache:    emptySnapshot(),
		sessions: make(map[string]*Session),
		ready:    atomic.NewBool(false),
		logger:   log,
	}
}

// InactivityTimeout 会话不活跃超时
func (s *Store) InactivityTimeout() time.Duration {
	return s.opts.InactivityTimeout
}

// Ready 初始拉取是否已完成
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// MarkReady 标记初始拉取完成
func (s *Store) MarkReady() {
	if s.ready.CAS(false, true) {
		s.logger.Infof(context.Background(), "[Store] Ready to accept sessions")
	}
}

// Snapshot 当前缓存快照（只读）
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := s.lock.Do(ctx, "snapshot", func() error {
		snap = s.cache
		return nil
	})
	return snap, err
}

// StoreDataset 用一次成功拉取的结果替换对应数据域。解码与分类在锁外完成，锁内只交换引用
func (s *Store) StoreDataset(ctx context.Context, ds *framework.Dataset) error {
	if ds == nil || !ds.Domain.Valid() {
		return errorx.ErrUnknownDomain
	}
	d := decode(ds)

	return s.lock.Do(ctx, "store_dataset:"+string(ds.Domain), func() error {
		next := s.cache.clone()
		next.apply(d)
		s.cache = next
		return nil
	})
}

// RecordFetchError 记录拉取失败，保留上一份数据
func (s *Store) RecordFetchError(ctx context.Context, domain framework.Domain, fetchErr error) error {
	if !domain.Valid() {
		return errorx.ErrUnknownDomain
	}
	now := s.opts.Now()

	return s.lock.Do(ctx, "record_error:"+string(domain), func() error {
		next := s.cache.clone()
		st := next.States[domain]
		st.LastError = fetchErr.Error()
		st.ErrorAt = now
		next.States[domain] = st
		s.cache = next
		return nil
	})
}

// Create 新建会话；初始拉取完成前直接返回 ErrNotReady
func (s *Store) Create(ctx context.Context, codes []string) (Info, error) {
	if !s.Ready() {
		return Info{}, errorx.ErrNotReady
	}
	vendors := business.NewVendorSet(codes)
	if len(vendors) == 0 {
		return Info{}, errorx.ErrNoVendorCodes
	}

	now := s.opts.Now()
	sess := &Session{
		id:           uuid.NewString(),
		vendors:      vendors,
		status:       StatusActive,
		createdAt:    now,
		lastAccessed: now,
		lock:         lockx.New("session", s.opts.LockTimeout, s.logger),
		book:         business.NewAlertBook(),
		applied:      make(map[framework.Domain]time.Time),
	}
	sess.lock.OnTimeout(s.opts.OnLockTimeout)

	var info Info
	err := s.lock.Do(ctx, "create_session", func() error {
		s.sessions[sess.id] = sess
		info = sess.infoLocked(now, s.opts.InactivityTimeout)
		return nil
	})
	if err != nil {
		return Info{}, err
	}

	s.logger.Infof(logger.WithSessionID(ctx, sess.id), "[Store] Session created with %d vendor codes", len(vendors))
	return info, nil
}

// Touch 返回会话的商家集合；active 会话刷新 last_accessed，已超时的会话标记为 expired 并返回 ErrSessionExpired
func (s *Store) Touch(ctx context.Context, id string) (business.VendorSet, error) {
	var vendors business.VendorSet
	err := s.lock.Do(ctx, "touch_session", func() error {
		sess, err := s.liveLocked(id)
		if err != nil {
			return err
		}
		if sess.status == StatusActive {
			sess.lastAccessed = s.opts.Now()
		}
		vendors = sess.vendors
		return nil
	})
	return vendors, err
}

// Info 会话状态（不刷新 last_accessed）。已超时的会话以 expired 状态返回
func (s *Store) Info(ctx context.Context, id string) (Info, error) {
	var info Info
	err := s.lock.Do(ctx, "session_info", func() error {
		sess, ok := s.sessions[id]
		if !ok {
			return errorx.ErrSessionNotFound
		}
		now := s.opts.Now()
		if sess.timedOutLocked(now, s.opts.InactivityTimeout) {
			sess.status = StatusExpired
		}
		info = sess.infoLocked(now, s.opts.InactivityTimeout)
		return nil
	})
	return info, err
}

// MarkConnected 实时连接绑定到会话，恢复 active
func (s *Store) MarkConnected(ctx context.Context, id string) error {
	return s.lock.Do(ctx, "mark_connected", func() error {
		sess, err := s.liveLocked(id)
		if err != nil {
			return err
		}
		now := s.opts.Now()
		sess.connections++
		sess.status = StatusActive
		sess.connectedAt = now
		sess.lastAccessed = now
		return nil
	})
}

// MarkDisconnected 实时连接断开；最后一个连接断开后会话进入 disconnected，开始计算过期
func (s *Store) MarkDisconnected(ctx context.Context, id string) error {
	return s.lock.Do(ctx, "mark_disconnected", func() error {
		sess, ok := s.sessions[id]
		if !ok {
			return errorx.ErrSessionNotFound
		}
		if sess.connections > 0 {
			sess.connections--
		}
		if sess.connections == 0 && sess.status == StatusActive {
			now := s.opts.Now()
			sess.status = StatusDisconnected
			sess.disconnectedAt = now
			sess.lastAccessed = now
		}
		return nil
	})
}

// ActiveSessions 当前 active 会话 ID（排序后返回）
func (s *Store) ActiveSessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.lock.Do(ctx, "active_sessions", func() error {
		now := s.opts.Now()
		for id, sess := range s.sessions {
			if sess.status == StatusActive && !sess.timedOutLocked(now, s.opts.InactivityTimeout) {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

// SweepExpired 删除超过不活跃超时的会话（不论连接状态），返回被删除的 ID
func (s *Store) SweepExpired(ctx context.Context) ([]string, error) {
	var removed []string
	err := s.lock.Do(ctx, "sweep_expired", func() error {
		now := s.opts.Now()
		for id, sess := range s.sessions {
			if sess.status == StatusExpired || sess.timedOutLocked(now, s.opts.InactivityTimeout) {
				delete(s.sessions, id)
				removed = append(removed, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		s.logger.Infof(ctx, "[Store] Swept %d expired sessions", len(removed))
	}
	return removed, nil
}

// Remove 主动关闭会话
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.lock.Do(ctx, "remove_session", func() error {
		if _, ok := s.sessions[id]; !ok {
			return errorx.ErrSessionNotFound
		}
		delete(s.sessions, id)
		return nil
	})
}

// Counts 各状态会话数
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	counts := map[Status]int{StatusActive: 0, StatusDisconnected: 0, StatusExpired: 0}
	err := s.lock.Do(ctx, "session_counts", func() error {
		for _, sess := range s.sessions {
			counts[sess.status]++
		}
		return nil
	})
	return counts, err
}

// WithSession 在会话锁内执行 fn。会话在 Store 锁内取出，Store 锁释放后才获取会话锁
func (s *Store) WithSession(ctx context.Context, id, op string, fn func(scope Scope) error) error {
	var sess *Session
	err := s.lock.Do(ctx, "lookup_session", func() error {
		found, ok := s.sessions[id]
		if !ok {
			return errorx.ErrSessionNotFound
		}
		sess = found
		return nil
	})
	if err != nil {
		return err
	}

	return sess.lock.Do(logger.WithSessionID(ctx, id), op, func() error {
		return fn(Scope{ID: sess.id, Vendors: sess.vendors, Book: sess.book, Applied: sess.applied})
	})
}

// ResetAlerts 清空会话的全部告警和历史状态，下一次处理会重新差分当前快照
func (s *Store) ResetAlerts(ctx context.Context, id string) error {
	return s.WithSession(ctx, id, "reset_alerts", func(scope Scope) error {
		scope.Book.Reset()
		for d := range scope.Applied {
			delete(scope.Applied, d)
		}
		return nil
	})
}

// liveLocked 查找未过期的会话；已超时的标记为 expired。调用方持有 Store 锁
func (s *Store) liveLocked(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errorx.ErrSessionNotFound
	}
	if sess.status == StatusExpired || sess.timedOutLocked(s.opts.Now(), s.opts.InactivityTimeout) {
		sess.status = StatusExpired
		return nil, fmt.Errorf("%w: %s", errorx.ErrSessionExpired, id)
	}
	return sess, nil
}
