package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vendormonitor/internal/business"
	"vendormonitor/internal/server/apimodel/request"
	"vendormonitor/internal/server/apimodel/response"
	"vendormonitor/internal/store"
	"vendormonitor/pkg/ginx"
)

// 归档查询默认条数
const defaultArchiveLimit = 100

// ClearedAlerts 某张表的已清除告警
// GET /api/sessions/:id/alerts/cleared?domain=discount_stock
func (h *SessionHandler) ClearedAlerts(c *gin.Context) {
	var q request.ClearedAlertsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.store.Touch(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}

	tab := business.Tab(q.Domain)
	var resp response.ClearedAlertsResponse
	err := h.store.WithSession(ctx, id, "cleared_alerts", func(scope store.Scope) error {
		alerts, _ := scope.Book.ClearedAlerts(tab)
		resp = response.ClearedAlertsResponse{
			Domain: q.Domain,
			Count:  scope.Book.ClearedLen(tab),
			Alerts: alerts,
		}
		return nil
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	ginx.Success(c, resp)
}

// Archive 归档库中该会话的已清除告警（需配置 MySQL）
// GET /api/sessions/:id/alerts/archive?domain=&limit=
func (h *SessionHandler) Archive(c *gin.Context) {
	if h.archive == nil {
		ginx.Error(c, http.StatusNotFound, "alert archive is not configured")
		return
	}

	var q request.ArchiveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultArchiveLimit
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.store.Touch(ctx, id); err != nil {
		_ = c.Error(err)
		return
	}

	rows, err := h.archive.ListBySession(ctx, id, q.Domain, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	ginx.Success(c, response.FromClearedAlertEntities(rows))
}
