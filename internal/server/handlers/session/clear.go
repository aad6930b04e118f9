package session

import (
	"github.com/gin-gonic/gin"

	"vendormonitor/pkg/ginx"
	"vendormonitor/pkg/logger"
)

// Clear 清空会话全部告警
// POST /api/sessions/:id/clear
func (h *SessionHandler) Clear(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if _, err := h.store.Touch(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.pipeline.ClearAll(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	ginx.Success(c, gin.H{"session_id": id, "cleared": true})
}

// Delete 关闭会话并断开其实时连接
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := logger.WithSessionID(c.Request.Context(), id)

	if err := h.store.Remove(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}
	dropped := h.hub.DropSession(id)

	h.logger.Infof(ctx, "[Session] Closed, %d realtime connections dropped", dropped)
	ginx.Success(c, gin.H{"session_id": id, "closed": true})
}
