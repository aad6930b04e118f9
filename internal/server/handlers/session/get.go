package session

import (
	"github.com/gin-gonic/gin"

	"vendormonitor/internal/server/apimodel/response"
	"vendormonitor/internal/worker"
	"vendormonitor/pkg/ginx"
)

// Get 会话当前数据（只读，不触发差分）
// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	h.respond(c, func(id string) (*worker.Pass, error) {
		return h.pipeline.Read(c.Request.Context(), id)
	})
}

// Refresh 用当前快照处理会话，新事件同时推送到实时通道
// POST /api/sessions/:id/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	h.respond(c, func(id string) (*worker.Pass, error) {
		return h.pipeline.Process(c.Request.Context(), id, false)
	})
}

// Status 会话状态与剩余时间
// GET /api/sessions/:id/status
func (h *SessionHandler) Status(c *gin.Context) {
	id := c.Param("id")
	info, err := h.store.Info(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ginx.Success(c, response.StatusResponse{Info: info, Subscribers: h.hub.Subscribers(id)})
}

// respond 刷新访问时间后执行 load，返回会话状态 + 结果
func (h *SessionHandler) respond(c *gin.Context, load func(id string) (*worker.Pass, error)) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// 1. 校验会话并刷新 last_accessed
	if _, err := h.store.Touch(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}

	// 2. 生成结果
	pass, err := load(id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	info, err := h.store.Info(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ginx.Success(c, response.SessionResponse{Session: info, Pass: pass})
}
