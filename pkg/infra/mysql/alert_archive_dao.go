package mysql

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vendormonitor/internal/entity"
)

// 单批写入条数
const insertBatchSize = 200

// AlertArchiveDAO 已清除告警归档数据访问对象
type AlertArchiveDAO struct {
	db *gorm.DB
}

// NewAlertArchiveDAO 创建 AlertArchiveDAO 实例
func NewAlertArchiveDAO(dsn string) (*AlertArchiveDAO, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &AlertArchiveDAO{db: db}, nil
}

// Migrate 建表/补齐字段
func (dao *AlertArchiveDAO) Migrate(ctx context.Context) error {
	if err := dao.db.WithContext(ctx).AutoMigrate(&entity.ClearedAlert{}); err != nil {
		return fmt.Errorf("failed to migrate cleared_alerts: %w", err)
	}
	return nil
}

// InsertBatch 批量写入归档记录
func (dao *AlertArchiveDAO) InsertBatch(ctx context.Context, rows []*entity.ClearedAlert) error {
	if len(rows) == 0 {
		return nil
	}

	result := dao.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to insert cleared alerts: %w", result.Error)
	}
	return nil
}

// ListBySession 按会话和表查询归档（最近的在前）
func (dao *AlertArchiveDAO) ListBySession(ctx context.Context, sessionID, tab string, limit int) ([]*entity.ClearedAlert, error) {
	var rows []*entity.ClearedAlert
	q := dao.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("cleared_at DESC")
	if tab != "" {
		q = q.Where("tab = ?", tab)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list cleared alerts: %w", err)
	}
	return rows, nil
}

// Ping 连通性检查（就绪检查）
func (dao *AlertArchiveDAO) Ping(ctx context.Context) error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (dao *AlertArchiveDAO) Close() error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
