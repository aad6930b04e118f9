package session

import (
	"context"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/entity"
	"vendormonitor/internal/store"
	"vendormonitor/internal/worker"
	"vendormonitor/pkg/logger"
)

// ArchiveReader 已清除告警归档查询
type ArchiveReader interface {
	ListBySession(ctx context.Context, sessionID, tab string, limit int) ([]*entity.ClearedAlert, error)
}

// Pipeline 会话处理流水线
type Pipeline interface {
	Process(ctx context.Context, sessionID string, prime bool) (*worker.Pass, error)
	Read(ctx context.Context, sessionID string) (*worker.Pass, error)
	ClearAll(ctx context.Context, sessionID string) error
}

// SessionHandler 会话 HTTP 处理器
type SessionHandler struct {
	store    *store.Store
	pipeline Pipeline
	hub      *broadcast.Hub
	archive  ArchiveReader
	prime    bool
	logger   logger.Logger
}

// NewSessionHandler 创建会话处理器；archive 为空时归档查询返回 404
func NewSessionHandler(
	st *store.Store,
	pipeline Pipeline,
	hub *broadcast.Hub,
	archive ArchiveReader,
	prime bool,
	log logger.Logger,
) *SessionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SessionHandler{
		store:    st,
		pipeline: pipeline,
		hub:      hub,
		archive:  archive,
		prime:    prime,
		logger:   log,
	}
}
