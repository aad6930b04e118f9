package health

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"vendormonitor/internal/server/apimodel/response"
	"vendormonitor/pkg/ginx"
)

// Live 存活检查：进程在即可
// GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	ginx.Success(c, response.HealthResponse{Status: "healthy", Timestamp: h.now()})
}

// Ready 就绪检查：初始拉取完成、Store 可访问且已配置的外部依赖可连通
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	resp := response.ReadyResponse{
		Status:    "ready",
		Checks:    map[string]bool{"initial_fetch": h.store.Ready(), "store": true},
		Timestamp: h.now(),
	}

	snap, err := h.store.Snapshot(ctx)
	if err != nil {
		resp.Checks["store"] = false
	} else {
		resp.Domains = snap.States
	}
	if counts, err := h.store.Counts(ctx); err == nil {
		resp.Sessions = counts
	}
	for name, p := range h.checks {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		resp.Checks[name] = p.Ping(pingCtx) == nil
		cancel()
	}
	stats := h.hub.Stats()
	resp.Broadcast = &stats

	for _, ok := range resp.Checks {
		if !ok {
			resp.Status = "not_ready"
			c.JSON(http.StatusServiceUnavailable, ginx.Response{
				Meta: ginx.Meta{Code: http.StatusServiceUnavailable, Message: "Service not ready"},
				Data: resp,
			})
			return
		}
	}
	ginx.Success(c, resp)
}

// Jobs 后台任务心跳检查：心跳超过阈值或从未运行视为异常
// GET /health/jobs
func (h *HealthHandler) Jobs(c *gin.Context) {
	now := h.now()
	resp := response.JobsResponse{
		Status:           "healthy",
		Running:          h.jobs.Running(),
		Cycles:           h.jobs.Cycles(),
		ThresholdSeconds: h.threshold.Seconds(),
		Timestamp:        now,
	}

	healthy := false
	if hb := h.jobs.Heartbeat(); !hb.IsZero() {
		resp.LastHeartbeat = &hb
		resp.AgeSeconds = now.Sub(hb).Seconds()
		healthy = now.Sub(hb) <= h.threshold
	}

	if !healthy {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, ginx.Response{
			Meta: ginx.Meta{Code: http.StatusServiceUnavailable, Message: "Background jobs unhealthy"},
			Data: resp,
		})
		return
	}
	ginx.Success(c, resp)
}
