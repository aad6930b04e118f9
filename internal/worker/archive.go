package worker

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"vendormonitor/internal/business"
	"vendormonitor/internal/entity"
)

// ArchiveWriter 归档存储（MySQL DAO）
type ArchiveWriter interface {
	InsertBatch(ctx context.Context, rows []*entity.ClearedAlert) error
}

// DAOArchiver 将清除事件转换为归档实体并批量写入
type DAOArchiver struct {
	dao ArchiveWriter
}

// NewDAOArchiver 创建归档器
func NewDAOArchiver(dao ArchiveWriter) *DAOArchiver {
	return &DAOArchiver{dao: dao}
}

// Archive 实现 Archiver
func (a *DAOArchiver) Archive(ctx context.Context, sessionID string, events []business.Event) error {
	rows := make([]*entity.ClearedAlert, 0, len(events))
	for _, ev := range events {
		row, err := ToClearedAlert(sessionID, ev)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	return a.dao.InsertBatch(ctx, rows)
}

// ToClearedAlert 清除事件 -> 归档实体
func ToClearedAlert(sessionID string, ev business.Event) (*entity.ClearedAlert, error) {
	payload, err := json.Marshal(ev.Alert)
	if err != nil {
		return nil, err
	}

	row := &entity.ClearedAlert{
		SessionID:  sessionID,
		Tab:        string(ev.Tab),
		AlertKey:   ev.Key,
		VendorCode: ev.VendorCode,
		Payload:    datatypes.JSON(payload),
	}
	if meta, ok := ev.Meta(); ok {
		row.AlertType = string(meta.Type)
		if meta.ClearedAt != nil {
			row.ClearedAt = *meta.ClearedAt
		}
	}
	return row, nil
}
