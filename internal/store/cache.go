package store

import (
	"time"

	"vendormonitor/internal/business"
	"vendormonitor/internal/framework"
)

// DomainState 单个数据域的缓存状态
type DomainState struct {
	Domain    framework.Domain `json:"domain"`
	Rows      int              `json:"rows"`
	FetchedAt time.Time        `json:"fetched_at"`
	LastError string           `json:"last_error,omitempty"`
	ErrorAt   time.Time        `json:"error_at,omitempty"`
}

// Failing 最近一次拉取是否失败（错误信息保留到下一次失败覆盖）
func (st DomainState) Failing() bool {
	return st.LastError != "" && !st.ErrorAt.Before(st.FetchedAt)
}

// Snapshot 缓存快照，发布后只读。刷新时整体替换引用，读者拿到的永远是完整的一份
type Snapshot struct {
	Discount []business.DiscountStockRow
	Vendors  []business.VendorStatusRow
	Verdicts []business.VendorVerdict
	States   map[framework.Domain]DomainState
}

func emptySnapshot() *Snapshot {
	states := make(map[framework.Domain]DomainState, len(framework.Domains))
	for _, d := range framework.Domains {
		states[d] = DomainState{Domain: d}
	}
	return &Snapshot{States: states}
}

// State 数据域状态
func (s *Snapshot) State(d framework.Domain) DomainState {
	return s.States[d]
}

// Fetched 该数据域是否至少成功拉取过一次
func (s *Snapshot) Fetched(d framework.Domain) bool {
	return !s.States[d].FetchedAt.IsZero()
}

// View 按会话商家集合过滤后的视图
type View struct {
	Discount []business.DiscountStockRow `json:"discount_stock"`
	Vendors  []business.VendorStatusRow  `json:"vendor_status"`
	Verdicts []business.VendorVerdict    `json:"vendor_product_status"`
}

// Filter 生成会话视图，不修改快照
func (s *Snapshot) Filter(set business.VendorSet) View {
	return View{
		Discount: business.FilterDiscountStock(s.Discount, set),
		Vendors:  business.FilterVendorStatus(s.Vendors, set),
		Verdicts: business.FilterVerdicts(s.Verdicts, set),
	}
}

// clone 浅拷贝快照，仅复制状态表
func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.States = make(map[framework.Domain]DomainState, len(s.States))
	for d, st := range s.States {
		next.States[d] = st
	}
	return &next
}

// decoded 一次成功拉取解码后的结果，在锁外构建
type decoded struct {
	domain   framework.Domain
	rows     int
	at       time.Time
	discount []business.DiscountStockRow
	vendors  []business.VendorStatusRow
	verdicts []business.VendorVerdict
}

func decode(ds *framework.Dataset) decoded {
	out := decoded{domain: ds.Domain, rows: ds.Len(), at: ds.FetchedAt}
	switch ds.Domain {
	case framework.DomainDiscountStock:
		out.discount = business.DecodeDiscountStock(ds)
	case framework.DomainVendorStatus:
		out.vendors = business.DecodeVendorStatus(ds)
	case framework.DomainVendorProductStatus:
		out.verdicts = business.Classify(business.DecodeVendorProducts(ds))
	}
	return out
}

func (s *Snapshot) apply(d decoded) {
	switch d.domain {
	case framework.DomainDiscountStock:
		s.Discount = d.discount
	case framework.DomainVendorStatus:
		s.Vendors = d.vendors
	case framework.DomainVendorProductStatus:
		s.Verdicts = d.verdicts
	}
	st := s.States[d.domain]
	st.Rows = d.rows
	st.FetchedAt = d.at
	s.States[d.domain] = st
}
