package response

import (
	"encoding/json"
	"time"

	"vendormonitor/internal/business"
	"vendormonitor/internal/entity"
	"vendormonitor/internal/store"
	"vendormonitor/internal/worker"
)

// SessionResponse 会话数据：会话状态 + 过滤后的数据、活跃告警与统计
type SessionResponse struct {
	Session store.Info `json:"session"`
	*worker.Pass
}

// StatusResponse 会话状态
type StatusResponse struct {
	store.Info
	Subscribers int `json:"subscribers"`
}

// ClearedAlertsResponse 已清除告警
type ClearedAlertsResponse struct {
	Domain string      `json:"domain" example:"discount_stock"`
	Count  int         `json:"count" example:"3"`
	Alerts interface{} `json:"alerts"`
}

// VendorsResponse 按在班状态过滤的商家
type VendorsResponse struct {
	Status  string                     `json:"status" example:"inactive"`
	Count   int                        `json:"count" example:"2"`
	Vendors []business.VendorStatusRow `json:"vendors"`
}

// ArchivedAlert 归档的已清除告警
type ArchivedAlert struct {
	ID         uint64          `json:"id"`
	Domain     string          `json:"domain"`
	Key        string          `json:"key"`
	VendorCode string          `json:"vendor_code"`
	AlertType  string          `json:"alert_type"`
	Alert      json.RawMessage `json:"alert"`
	ClearedAt  time.Time       `json:"cleared_at"`
}

// FromClearedAlertEntities 归档实体 -> 响应
func FromClearedAlertEntities(rows []*entity.ClearedAlert) []ArchivedAlert {
	out := make([]ArchivedAlert, 0, len(rows))
	for _, r := range rows {
		out = append(out, ArchivedAlert{
			ID:         r.ID,
			Domain:     r.Tab,
			Key:        r.AlertKey,
			VendorCode: r.VendorCode,
			AlertType:  r.AlertType,
			Alert:      json.RawMessage(r.Payload),
			ClearedAt:  r.ClearedAt,
		})
	}
	return out
}

// VendorsByStatus 从会话视图中挑出指定在班状态的商家
func VendorsByStatus(rows []business.VendorStatusRow, status string) VendorsResponse {
	want := business.VendorActive
	if status == "inactive" {
		want = business.VendorInactive
	}
	out := make([]business.VendorStatusRow, 0)
	for _, r := range rows {
		if r.Status == want {
			out = append(out, r)
		}
	}
	return VendorsResponse{Status: status, Count: len(out), Vendors: out}
}
