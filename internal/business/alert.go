package business

import (
	"fmt"
	"time"
)

// Severity 告警等级
type Severity string

const (
	SeverityCritical  Severity = "cherry"
	SeverityHigh      Severity = "red"
	SeverityMedium    Severity = "yellow"
	SeverityResolved  Severity = "green"
	SeverityRedHigh   Severity = "red-high"
	SeverityRedMedium Severity = "red-medium"
	SeverityRedLight  Severity = "red-light"
)

// AlertType 告警类型
type AlertType string

const (
	AlertProductStockFinished       AlertType = "Product Stock Finished"
	AlertDiscountStockNearEnd       AlertType = "Discount Stock Near End"
	AlertDiscountedItemFixed        AlertType = "Discounted Item Fixed"
	AlertVendorDeactivated          AlertType = "Vendor_Got_Deactivated"
	AlertVendorNotActive            AlertType = "vendor_Started_With_Not_Active_In_Shift"
	AlertVendorActivated            AlertType = "Vendor Got Activated"
	AlertStockIssuesNew             AlertType = "Vendor Has Stock Issues"
	AlertStockIssuesPersistent      AlertType = "Vendor Had Stock Issues"
	AlertStockIssuesFixed           AlertType = "Fixed Vendor Stock Issue"
	AlertVisibilityIssuesNew        AlertType = "Vendor Has Visibility Issues"
	AlertVisibilityIssuesPersistent AlertType = "Vendor Had Visibility Issues"
	AlertVisibilityIssuesFixed      AlertType = "Fixed Vendor Visibility Issue"
)

// AlertStatus 告警生命周期
type AlertStatus string

const (
	StatusActive  AlertStatus = "active"
	StatusCleared AlertStatus = "cleared"
)

// Tab 告警所属的表（四个独立状态机）
type Tab string

const (
	TabDiscountStock           Tab = "discount_stock"
	TabVendorStatus            Tab = "vendor_status"
	TabVendorProductStock      Tab = "vendor_product_stock"
	TabVendorProductVisibility Tab = "vendor_product_visibility"
)

// Tabs 所有告警表
var Tabs = []Tab{TabDiscountStock, TabVendorStatus, TabVendorProductStock, TabVendorProductVisibility}

// ProductKey 折扣商品身份
type ProductKey struct {
	VendorCode  string
	HeaderName  string
	ProductName string
}

// String 展示用 ID
func (k ProductKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.VendorCode, k.HeaderName, k.ProductName)
}

// VendorCode 商家身份
type VendorCode string

// VendorLineKey 商家+业务线身份
type VendorLineKey struct {
	VendorCode   string
	BusinessLine string
}

// String 展示用 ID
func (k VendorLineKey) String() string {
	return k.VendorCode + "_" + k.BusinessLine
}

// Less 排序
func (k VendorLineKey) Less(o VendorLineKey) bool {
	if k.VendorCode != o.VendorCode {
		return k.VendorCode < o.VendorCode
	}
	return k.BusinessLine < o.BusinessLine
}

// AlertMeta 告警公共字段
type AlertMeta struct {
	Type      AlertType   `json:"alert_type"`
	Severity  Severity    `json:"severity"`
	Status    AlertStatus `json:"status"`
	Time      time.Time   `json:"time"`
	ClearedAt *time.Time  `json:"cleared_at,omitempty"`
}

func (m *AlertMeta) clear(t AlertType, now time.Time) {
	m.Type = t
	m.Status = StatusCleared
	m.Severity = SeverityResolved
	m.ClearedAt = &now
}

// DiscountAlert 折扣库存告警
type DiscountAlert struct {
	AlertMeta
	ProductID     string  `json:"product_id"`
	VendorCode    string  `json:"vendor_code"`
	VendorName    string  `json:"vendor_name"`
	HeaderName    string  `json:"product_header_name"`
	ProductName   string  `json:"product_name"`
	DiscountStock int     `json:"discount_stock"`
	ProductStock  int     `json:"product_stock"`
	DiscountRatio float64 `json:"product_discount_ratio"`
	StartAt       string  `json:"discount_start_at"`
	EndAt         string  `json:"discount_end_at"`
}

// VendorStatusAlert 商家在班状态告警
type VendorStatusAlert struct {
	AlertMeta
	VendorCode   string `json:"vendor_code"`
	VendorName   string `json:"vendor_name"`
	VendorStatus string `json:"vendor_status"`
}

// ProductIssueAlert 商家库存/可见性问题告警
type ProductIssueAlert struct {
	AlertMeta
	VendorCode   string  `json:"vendor_code"`
	VendorName   string  `json:"vendor_name"`
	BusinessLine string  `json:"business_line"`
	TotalHeaders int     `json:"total_p_headers"`
	IssueHeaders int     `json:"issues"`
	IssueRate    float64 `json:"issue_rate"`
	Rate         string  `json:"rate"`
}

// EventKind 推送事件类型
type EventKind string

const (
	EventNewAlert     EventKind = "new_alert"
	EventUpdateAlert  EventKind = "update_alert"
	EventAlertCleared EventKind = "alert_cleared"
	EventStatsUpdate  EventKind = "stats_update"
	EventClearAll     EventKind = "clear_all_alerts"
)

// Event 一次告警生命周期变化
type Event struct {
	Kind       EventKind   `json:"-"`
	Tab        Tab         `json:"tab"`
	Key        string      `json:"key"`
	VendorCode string      `json:"vendor_code"`
	IsNew      bool        `json:"is_new"`
	Alert      interface{} `json:"alert"`
}

// Meta 事件所携带告警的公共字段
func (e Event) Meta() (AlertMeta, bool) {
	switch a := e.Alert.(type) {
	case DiscountAlert:
		return a.AlertMeta, true
	case VendorStatusAlert:
		return a.AlertMeta, true
	case ProductIssueAlert:
		return a.AlertMeta, true
	}
	return AlertMeta{}, false
}

// FormatPercentage 展示格式：0.1234 -> 12.34%
func FormatPercentage(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}
