package session

import (
	"github.com/gin-gonic/gin"

	"vendormonitor/internal/server/apimodel/request"
	"vendormonitor/internal/server/apimodel/response"
	"vendormonitor/pkg/ginx"
)

// Vendors 会话内按在班状态过滤的商家列表
// GET /api/sessions/:id/vendors?status=active|inactive
func (h *SessionHandler) Vendors(c *gin.Context) {
	var q request.VendorsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	vendors, err := h.store.Touch(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	snap, err := h.store.Snapshot(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ginx.Success(c, response.VendorsByStatus(snap.Filter(vendors).Vendors, q.Status))
}
