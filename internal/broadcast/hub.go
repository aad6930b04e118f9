// Package broadcast 会话隔离的事件分发。
//
// 每个实时连接是一个订阅者，归属于一个会话。发往会话 S 的消息只进入 S 名下订阅者的通道；
// 发送不阻塞，通道满时丢弃并计数。
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"vendormonitor/pkg/logger"
)

var (
	ErrHubClosed          = errors.New("hub is closed")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrEmptySession       = errors.New("session id is required")
)

// DefaultBuffer 订阅通道默认缓冲
const DefaultBuffer = 64

// Message 推送给客户端的消息
type Message struct {
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Scope 投递范围：全部会话或单个会话
type Scope struct {
	All       bool
	SessionID string
}

// ToAll 广播到全部订阅者
var ToAll = Scope{All: true}

// ToSession 仅投递到指定会话
func ToSession(id string) Scope {
	return Scope{SessionID: id}
}

// Mirror 本地投递之后的旁路输出（Redis 频道、通知队列等），失败只记日志
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, msg Message, scope Scope) error
}

// Subscription 一个实时连接的订阅
type Subscription struct {
	ID        string
	SessionID string
	C         <-chan Message
}

// Result 单次发布结果
type Result struct {
	Sent    int
	Dropped int
}

// SubscriberStats 单个订阅者计数
type SubscriberStats struct {
	SessionID string `json:"session_id"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
}

// Stats Hub 计数快照
type Stats struct {
	TotalPublished uint64                     `json:"total_published"`
	TotalSent      uint64                     `json:"total_sent"`
	TotalDropped   uint64                     `json:"total_dropped"`
	Subscribers    map[string]SubscriberStats `json:"subscribers"`
}

type subscriber struct {
	id        string
	sessionID string
	ch        chan Message
	sent      *atomic.Uint64
	dropped   *atomic.Uint64
}

// Hub 会话隔离的发布订阅中心
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	bySession map[string]map[string]*subscriber
	closed    bool

	published *atomic.Uint64
	mirrors   []Mirror
	onDrop    func()
	now       func() time.Time
	logger    logger.Logger
}

// NewHub 创建 Hub
func NewHub(log logger.Logger, mirrors ...Mirror) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		subs:      make(map[string]*subscriber),
		bySession: make(map[string]map[string]*subscriber),
		published: atomic.NewUint64(0),
		mirrors:   mirrors,
		now:       time.Now,
		logger:    log,
	}
}

// OnDrop 设置丢弃回调（指标）
func (h *Hub) OnDrop(fn func()) {
	h.onDrop = fn
}

// AddMirror 追加旁路输出
func (h *Hub) AddMirror(m Mirror) {
	h.mu.Lock()
	h.mirrors = append(h.mirrors, m)
	h.mu.Unlock()
}

// Subscribe 为会话注册一个订阅
func (h *Hub) Subscribe(sessionID string, buffer int) (*Subscription, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	sub := &subscriber{
		id:        uuid.NewString(),
		sessionID: sessionID,
		ch:        make(chan Message, buffer),
		sent:      atomic.NewUint64(0),
		dropped:   atomic.NewUint64(0),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.subs[sub.id] = sub
	group, ok := h.bySession[sessionID]
	if !ok {
		group = make(map[string]*subscriber)
		h.bySession[sessionID] = group
	}
	group[sub.id] = sub

	return &Subscription{ID: sub.id, SessionID: sessionID, C: sub.ch}, nil
}

// Unsubscribe 注销订阅并关闭其通道
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	h.removeLocked(sub)
	return nil
}

// DropSession 注销会话的全部订阅（会话删除时调用），返回注销数量
func (h *Hub) DropSession(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.bySession[sessionID]
	n := len(group)
	for _, sub := range group {
		h.removeLocked(sub)
	}
	return n
}

// Publish 非阻塞投递。会话范围的消息只进入该会话的订阅者
func (h *Hub) Publish(ctx context.Context, msg Message, scope Scope) Result {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now()
	}
	if !scope.All {
		msg.SessionID = scope.SessionID
	}

	var res Result
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return res
	}
	h.published.Inc()
	if scope.All {
		for _, sub := range h.subs {
			h.deliver(sub, msg, &res)
		}
	} else {
		for _, sub := range h.bySession[scope.SessionID] {
			h.deliver(sub, msg, &res)
		}
	}
	mirrors := h.mirrors
	h.mu.RUnlock()

	if res.Dropped > 0 {
		h.logger.Warnf(ctx, "[Hub] Dropped %s for %d slow subscribers", msg.Event, res.Dropped)
	}

	for _, m := range mirrors {
		if err := m.Mirror(ctx, msg, scope); err != nil {
			h.logger.Warnf(ctx, "[Hub] Mirror %s failed for %s: %v", m.Name(), msg.Event, err)
		}
	}
	return res
}

func (h *Hub) deliver(sub *subscriber, msg Message, res *Result) {
	select {
	case sub.ch <- msg:
		sub.sent.Inc()
		res.Sent++
	default:
		sub.dropped.Inc()
		res.Dropped++
		if h.onDrop != nil {
			h.onDrop()
		}
	}
}

// Subscribers 会话当前的订阅数
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession[sessionID])
}

// Stats 计数快照
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{
		TotalPublished: h.published.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(h.subs)),
	}
	for id, sub := range h.subs {
		s := SubscriberStats{SessionID: sub.sessionID, Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}
		st.TotalSent += s.Sent
		st.TotalDropped += s.Dropped
		st.Subscribers[id] = s
	}
	return st
}

// Close 关闭 Hub 及全部订阅通道
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		h.removeLocked(sub)
	}
	h.closed = true
}

// removeLocked 调用方持有写锁
func (h *Hub) removeLocked(sub *subscriber) {
	delete(h.subs, sub.id)
	if group, ok := h.bySession[sub.sessionID]; ok {
		delete(group, sub.id)
		if len(group) == 0 {
			delete(h.bySession, sub.sessionID)
		}
	}
	close(sub.ch)
}
