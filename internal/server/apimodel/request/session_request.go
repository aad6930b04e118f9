package request

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// MaxVendorCodes 单个会话最多的商家编码数
const MaxVendorCodes = 20000

// CreateSessionRequest 创建会话请求（JSON 方式）
type CreateSessionRequest struct {
	Vendors []string `json:"vendors" binding:"required,min=1,max=20000,dive,max=64" example:"V001"`
}

// ClearedAlertsQuery 已清除告警查询
type ClearedAlertsQuery struct {
	Domain string `form:"domain" binding:"required,oneof=discount_stock vendor_status vendor_product_stock vendor_product_visibility"`
}

// VendorsQuery 按在班状态查询商家
type VendorsQuery struct {
	Status string `form:"status" binding:"required,oneof=active inactive"`
}

// ArchiveQuery 归档查询
type ArchiveQuery struct {
	Domain string `form:"domain" binding:"omitempty,oneof=discount_stock vendor_status vendor_product_stock vendor_product_visibility"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// RegisterMessage 实时连接注册消息
type RegisterMessage struct {
	Event string `json:"event"`
	Data  struct {
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// ParseVendorFile 解析上传的商家文件：每行一个编码；CSV 取第一列，跳过 vendor_code 表头
func ParseVendorFile(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	codes := make([]string, 0)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) == 0 {
			continue
		}
		code := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		if code == "" || (len(codes) == 0 && strings.EqualFold(code, "vendor_code")) {
			continue
		}
		codes = append(codes, code)
		if len(codes) > MaxVendorCodes {
			return nil, fmt.Errorf("file contains more than %d vendor codes", MaxVendorCodes)
		}
	}
	return codes, nil
}
