package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vendormonitor/internal/server/apimodel/request"
	"vendormonitor/internal/server/apimodel/response"
	"vendormonitor/pkg/errorx"
	"vendormonitor/pkg/ginx"
	"vendormonitor/pkg/logger"
)

// Create 创建会话并立即返回该会话的数据、告警与统计
// POST /api/sessions  body: {"vendors": [...]} 或 multipart file
func (h *SessionHandler) Create(c *gin.Context) {
	codes, ok := h.bindVendors(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	info, err := h.store.Create(ctx, codes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// 首轮处理：客户端无需等待实时通道即可拿到结果
	pass, err := h.pipeline.Process(ctx, info.ID, h.prime)
	if err != nil {
		// 首轮失败时客户端拿不到会话编号，撤销注册
		if rmErr := h.store.Remove(ctx, info.ID); rmErr != nil {
			h.logger.Warnf(logger.WithSessionID(ctx, info.ID), "[Session] Remove after failed create: %v", rmErr)
		}
		_ = c.Error(err)
		return
	}

	h.logger.Infof(logger.WithSessionID(ctx, info.ID), "[Session] Created with %d vendors, %d initial events", info.VendorCount, len(pass.Events))
	ginx.Created(c, response.SessionResponse{Session: info, Pass: pass})
}

// bindVendors 从 JSON 或上传文件中取商家编码
func (h *SessionHandler) bindVendors(c *gin.Context) ([]string, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			_ = c.Error(errorx.NewBusinessError(http.StatusBadRequest, "Invalid vendor file").WithDetail("file", "file is required"))
			return nil, false
		}
		f, err := fh.Open()
		if err != nil {
			_ = c.Error(errorx.NewBusinessError(http.StatusBadRequest, "Invalid vendor file").WithDetail("file", err.Error()))
			return nil, false
		}
		defer f.Close()

		codes, err := request.ParseVendorFile(f)
		if err != nil {
			_ = c.Error(errorx.NewBusinessError(http.StatusBadRequest, "Invalid vendor file").WithDetail(fh.Filename, err.Error()))
			return nil, false
		}
		return codes, true
	}

	var req request.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return nil, false
	}
	return req.Vendors, true
}
