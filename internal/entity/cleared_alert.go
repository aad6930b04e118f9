package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ClearedAlert 已清除告警归档（只写审计记录，不用于恢复内存状态）
type ClearedAlert struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID string `gorm:"column:session_id;type:varchar(64);not null;index:idx_session_tab"`
	Tab       string `gorm:"column:tab;type:varchar(32);not null;index:idx_session_tab"`
	AlertKey  string `gorm:"column:alert_key;type:varchar(512);not null"`

	VendorCode string `gorm:"column:vendor_code;type:varchar(64);not null;index:idx_vendor_code"`
	AlertType  string `gorm:"column:alert_type;type:varchar(64);not null"`

	// 告警完整内容
	Payload datatypes.JSON `gorm:"column:payload;type:json;not null"`

	// 时间戳
	ClearedAt time.Time `gorm:"column:cleared_at;not null;index:idx_cleared_at"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (ClearedAlert) TableName() string {
	return "cleared_alerts"
}
