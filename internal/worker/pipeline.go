package worker

import (
	"context"
	"time"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/business"
	"vendormonitor/internal/framework"
	"vendormonitor/internal/store"
	"vendormonitor/pkg/logger"
	"vendormonitor/pkg/metrics"
)

// Archiver 已清除告警的归档出口
type Archiver interface {
	Archive(ctx context.Context, sessionID string, events []business.Event) error
}

// Stats 三类统计
type Stats struct {
	Discount business.DiscountStats      `json:"discount_stock"`
	Vendor   business.VendorStatusStats  `json:"vendor_status"`
	Product  business.VendorProductStats `json:"vendor_product"`
}

func (s Stats) of(d framework.Domain) interface{} {
	switch d {
	case framework.DomainDiscountStock:
		return s.Discount
	case framework.DomainVendorStatus:
		return s.Vendor
	default:
		return s.Product
	}
}

// Pass 一次会话处理的结果
type Pass struct {
	SessionID string                                 `json:"session_id"`
	Data      store.View                             `json:"data"`
	Alerts    map[business.Tab]interface{}           `json:"alerts"`
	Stats     Stats                                  `json:"stats"`
	Domains   map[framework.Domain]store.DomainState `json:"domains"`
	Events    []business.Event                       `json:"-"`

	// 按数据域顺序排列的推送内容
	batches []batch
}

type batch struct {
	domain framework.Domain
	events []business.Event
}

// Pipeline 会话处理流水线：过滤 -> 差分 -> 推送
type Pipeline struct {
	store    *store.Store
	hub      *broadcast.Hub
	engine   *business.Engine
	archiver Archiver
	now      func() time.Time
	logger   logger.Logger
}

// NewPipeline 创建流水线，archiver 可为空
func NewPipeline(st *store.Store, hub *broadcast.Hub, engine *business.Engine, archiver Archiver, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		store:    st,
		hub:      hub,
		engine:   engine,
		archiver: archiver,
		now:      time.Now,
		logger:   log,
	}
}

// Process 对会话执行一次完整处理并推送结果。prime 为 true 时先用当前结论预热商品状态历史
func (p *Pipeline) Process(ctx context.Context, sessionID string, prime bool) (*Pass, error) {
	ctx = logger.WithSessionID(ctx, sessionID)

	// 1. 取快照（Store 锁）
	snap, err := p.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	// 2. 过滤与差分（会话锁）
	var pass *Pass
	err = p.store.WithSession(ctx, sessionID, "process", func(scope store.Scope) error {
		pass = p.diffLocked(snap, scope, prime)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. 推送与归档（不持锁）
	p.publish(ctx, pass)
	p.archive(ctx, pass)

	return pass, nil
}

// Read 只读视图：不差分、不推送
func (p *Pipeline) Read(ctx context.Context, sessionID string) (*Pass, error) {
	ctx = logger.WithSessionID(ctx, sessionID)

	snap, err := p.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var pass *Pass
	err = p.store.WithSession(ctx, sessionID, "read", func(scope store.Scope) error {
		pass = p.collectLocked(snap, scope, snap.Filter(scope.Vendors))
		return nil
	})
	return pass, err
}

// ClearAll 清空会话告警并通知该会话
func (p *Pipeline) ClearAll(ctx context.Context, sessionID string) error {
	ctx = logger.WithSessionID(ctx, sessionID)
	if err := p.store.ResetAlerts(ctx, sessionID); err != nil {
		return err
	}

	p.hub.Publish(ctx, broadcast.Message{
		Event:     string(business.EventClearAll),
		SessionID: sessionID,
		Data:      map[string]interface{}{"tabs": business.Tabs},
		Timestamp: p.now(),
	}, broadcast.ToSession(sessionID))
	metrics.AlertEvents.WithLabelValues("all", string(business.EventClearAll)).Inc()

	p.logger.Infof(ctx, "[Pipeline] All alerts cleared")
	return nil
}

// diffLocked 对尚未处理过的快照执行差分，调用方持有会话锁
func (p *Pipeline) diffLocked(snap *store.Snapshot, scope store.Scope, prime bool) *Pass {
	view := snap.Filter(scope.Vendors)
	book := scope.Book

	fresh := func(d framework.Domain) bool {
		if !snap.Fetched(d) {
			return false
		}
		at := snap.State(d).FetchedAt
		if last, ok := scope.Applied[d]; ok && !at.After(last) {
			return false
		}
		scope.Applied[d] = at
		return true
	}

	// 只有本次完成差分的数据域进入推送批次
	batches := make([]batch, 0, len(framework.Domains))

	// 1. 折扣库存
	if fresh(framework.DomainDiscountStock) {
		batches = append(batches, batch{
			domain: framework.DomainDiscountStock,
			events: p.engine.DiffDiscountStock(book, view.Discount),
		})
	}

	// 2. 商家在班状态
	if fresh(framework.DomainVendorStatus) {
		batches = append(batches, batch{
			domain: framework.DomainVendorStatus,
			events: p.engine.DiffVendorStatus(book, view.Vendors),
		})
	}

	// 3. 商家商品状态
	if fresh(framework.DomainVendorProductStatus) {
		if prime {
			p.engine.PrimeProductStatus(book, view.Verdicts)
		}
		batches = append(batches, batch{
			domain: framework.DomainVendorProductStatus,
			events: p.engine.DiffProductStatus(book, view.Verdicts),
		})
	}

	pass := p.collectLocked(snap, scope, view)
	pass.batches = batches
	for _, b := range batches {
		pass.Events = append(pass.Events, b.events...)
	}
	return pass
}

// collectLocked 组装视图、活跃告警和统计，调用方持有会话锁
func (p *Pipeline) collectLocked(snap *store.Snapshot, scope store.Scope, view store.View) *Pass {
	total := len(scope.Vendors)
	domains := make(map[framework.Domain]store.DomainState, len(snap.States))
	for d, st := range snap.States {
		domains[d] = st
	}

	return &Pass{
		SessionID: scope.ID,
		Data:      view,
		Alerts:    scope.Book.ActiveAlerts(),
		Stats: Stats{
			Discount: business.DiscountStockStats(scope.Book, view.Discount),
			Vendor:   business.VendorStatusStatsOf(scope.Book, view.Vendors, total),
			Product:  business.VendorProductStatsOf(scope.Book, view.Verdicts, total),
		},
		Domains: domains,
	}
}

// publish 按数据域顺序推送告警事件，每个数据域之后推送一次统计。
// 已处理过的快照不再推送统计，避免旧快照的统计覆盖客户端上更新的统计
func (p *Pipeline) publish(ctx context.Context, pass *Pass) {
	scope := broadcast.ToSession(pass.SessionID)
	now := p.now()

	var sent, dropped int
	for _, b := range pass.batches {
		for _, ev := range b.events {
			res := p.hub.Publish(ctx, broadcast.Message{
				Event:     string(ev.Kind),
				SessionID: pass.SessionID,
				Data:      ev,
				Timestamp: now,
			}, scope)
			sent += res.Sent
			dropped += res.Dropped
			metrics.AlertEvents.WithLabelValues(string(ev.Tab), string(ev.Kind)).Inc()
		}

		res := p.hub.Publish(ctx, broadcast.Message{
			Event:     string(business.EventStatsUpdate),
			SessionID: pass.SessionID,
			Data:      pass.Stats.of(b.domain),
			Timestamp: now,
		}, scope)
		sent += res.Sent
		dropped += res.Dropped
	}

	if len(pass.Events) > 0 {
		p.logger.Infof(ctx, "[Pipeline] Published %d alert events (delivered=%d dropped=%d)",
			len(pass.Events), sent, dropped)
	}
}

// archive 写入本轮清除的告警，失败只记日志
func (p *Pipeline) archive(ctx context.Context, pass *Pass) {
	if p.archiver == nil {
		return
	}

	cleared := make([]business.Event, 0)
	for _, ev := range pass.Events {
		if ev.Kind == business.EventAlertCleared {
			cleared = append(cleared, ev)
		}
	}
	if len(cleared) == 0 {
		return
	}

	if err := p.archiver.Archive(ctx, pass.SessionID, cleared); err != nil {
		p.logger.Warnf(ctx, "[Pipeline] Failed to archive %d cleared alerts: %v", len(cleared), err)
	}
}
