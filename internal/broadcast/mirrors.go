package broadcast

import (
	"context"
	"fmt"
)

// ChannelPublisher 发布到命名频道（Redis PubSub）
type ChannelPublisher interface {
	PublishJSON(ctx context.Context, channel string, v interface{}) error
}

// QueuePublisher 投递到通知队列（lmstfy）
type QueuePublisher interface {
	PublishJSON(ctx context.Context, v interface{}) error
}

// ChannelMirror 将每条消息镜像到 <prefix>:session:<id> 或 <prefix>:all 频道
type ChannelMirror struct {
	pub    ChannelPublisher
	prefix string
}

// NewChannelMirror 创建频道镜像
func NewChannelMirror(pub ChannelPublisher, prefix string) *ChannelMirror {
	return &ChannelMirror{pub: pub, prefix: prefix}
}

// Name 名称
func (m *ChannelMirror) Name() string { return "redis" }

// Channel 消息对应的频道名
func (m *ChannelMirror) Channel(scope Scope) string {
	if scope.All {
		return m.prefix + ":all"
	}
	return fmt.Sprintf("%s:session:%s", m.prefix, scope.SessionID)
}

// Mirror 发布到频道
func (m *ChannelMirror) Mirror(ctx context.Context, msg Message, scope Scope) error {
	return m.pub.PublishJSON(ctx, m.Channel(scope), msg)
}

// QueueMirror 只把告警生命周期事件（新建、清除）投递到通知队列
type QueueMirror struct {
	pub    QueuePublisher
	events map[string]struct{}
}

// NewQueueMirror 创建队列镜像，events 为需要投递的事件名
func NewQueueMirror(pub QueuePublisher, events ...string) *QueueMirror {
	set := make(map[string]struct{}, len(events))
	for _, e := range events {
		set[e] = struct{}{}
	}
	return &QueueMirror{pub: pub, events: set}
}

// Name 名称
func (m *QueueMirror) Name() string { return "lmstfy" }

// Mirror 投递到队列，未关注的事件直接跳过
func (m *QueueMirror) Mirror(ctx context.Context, msg Message, _ Scope) error {
	if _, ok := m.events[msg.Event]; !ok {
		return nil
	}
	return m.pub.PublishJSON(ctx, msg)
}
