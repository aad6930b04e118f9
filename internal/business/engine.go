package business

import "time"

// DefaultNearEndThreshold 折扣库存临近耗尽阈值
const DefaultNearEndThreshold = 3

// Engine 告警差分引擎：对比本轮快照与告警簿中的上一轮状态，产出告警事件
// Engine 本身无状态，调用方负责对 AlertBook 加锁
type Engine struct {
	NearEndThreshold int
	Now              func() time.Time
}

// NewEngine 创建差分引擎
func NewEngine(nearEndThreshold int) *Engine {
	if nearEndThreshold < 1 {
		nearEndThreshold = DefaultNearEndThreshold
	}
	return &Engine{NearEndThreshold: nearEndThreshold, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func upsertEvent(tab Tab, key, vendor string, isNew bool, alert interface{}) Event {
	kind := EventUpdateAlert
	if isNew {
		kind = EventNewAlert
	}
	return Event{Kind: kind, Tab: tab, Key: key, VendorCode: vendor, IsNew: isNew, Alert: alert}
}

func clearedEvent(tab Tab, key, vendor string, alert interface{}) Event {
	return Event{Kind: EventAlertCleared, Tab: tab, Key: key, VendorCode: vendor, Alert: alert}
}

// keepTime 同类型告警重复产出时沿用原时间，保证内容稳定
func keepTime(meta *AlertMeta, existing AlertMeta, found bool) {
	if found && existing.Type == meta.Type {
		meta.Time = existing.Time
	}
}
