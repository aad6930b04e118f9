package business

import (
	"time"

	"vendormonitor/internal/framework"
)

// 数据集列名
const (
	ColVendorCode      = "vendor_code"
	ColVendorName      = "vendor_name"
	ColHeaderName      = "vendor_product_header_name"
	ColProductName     = "product_name"
	ColProductID       = "vendor_product_id"
	ColDiscountStock   = "discount_stock"
	ColProductStock    = "product_stock"
	ColDiscountRatio   = "product_discount_ratio"
	ColDiscountStartAt = "discount_start_at"
	ColDiscountEndAt   = "discount_end_at"
	ColVendorStatus    = "vendor_status"
	ColBusinessLine    = "business_line"
	ColIsVisible       = "is_visible"
)

// 商家在班状态
const (
	VendorActive   = "vendor_active_in_shift"
	VendorInactive = "vendor_not_active_in_shift"
)

// DiscountStockRow 折扣库存数据行
type DiscountStockRow struct {
	VendorCode      string  `json:"vendor_code"`
	VendorName      string  `json:"vendor_name"`
	HeaderName      string  `json:"vendor_product_header_name"`
	ProductName     string  `json:"product_name"`
	DiscountStock   int     `json:"discount_stock"`
	ProductStock    int     `json:"product_stock"`
	DiscountRatio   float64 `json:"product_discount_ratio"`
	DiscountStartAt string  `json:"discount_start_at"`
	DiscountEndAt   string  `json:"discount_end_at"`
}

// Key 商品身份
func (r DiscountStockRow) Key() ProductKey {
	return ProductKey{VendorCode: r.VendorCode, HeaderName: r.HeaderName, ProductName: r.ProductName}
}

// VendorStatusRow 商家状态数据行
type VendorStatusRow struct {
	VendorCode string `json:"vendor_code"`
	VendorName string `json:"vendor_name"`
	Status     string `json:"vendor_status"`
}

// VendorProductRow 商品库存/可见性数据行（分类前）
type VendorProductRow struct {
	VendorCode   string `json:"vendor_code"`
	VendorName   string `json:"vendor_name"`
	BusinessLine string `json:"business_line"`
	HeaderName   string `json:"vendor_product_header_name"`
	ProductID    string `json:"vendor_product_id"`
	Stock        int    `json:"product_stock"`
	Visible      bool   `json:"is_visible"`
}

// DecodeDiscountStock 解析折扣库存数据集，异常字段按零值处理
func DecodeDiscountStock(ds *framework.Dataset) []DiscountStockRow {
	if ds.Empty() {
		return nil
	}
	out := make([]DiscountStockRow, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		out = append(out, DiscountStockRow{
			VendorCode:      r.String(ColVendorCode),
			VendorName:      r.String(ColVendorName),
			HeaderName:      r.String(ColHeaderName),
			ProductName:     r.String(ColProductName),
			DiscountStock:   r.Int(ColDiscountStock),
			ProductStock:    r.Int(ColProductStock),
			DiscountRatio:   r.Float(ColDiscountRatio),
			DiscountStartAt: FormatDateTime(r.Time(ColDiscountStartAt), r.String(ColDiscountStartAt)),
			DiscountEndAt:   FormatDateTime(r.Time(ColDiscountEndAt), r.String(ColDiscountEndAt)),
		})
	}
	return out
}

// DecodeVendorStatus 解析商家状态数据集
func DecodeVendorStatus(ds *framework.Dataset) []VendorStatusRow {
	if ds.Empty() {
		return nil
	}
	out := make([]VendorStatusRow, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		out = append(out, VendorStatusRow{
			VendorCode: r.String(ColVendorCode),
			VendorName: r.String(ColVendorName),
			Status:     r.String(ColVendorStatus),
		})
	}
	return out
}

// DecodeVendorProducts 解析商品状态数据集
func DecodeVendorProducts(ds *framework.Dataset) []VendorProductRow {
	if ds.Empty() {
		return nil
	}
	out := make([]VendorProductRow, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		out = append(out, VendorProductRow{
			VendorCode:   r.String(ColVendorCode),
			VendorName:   r.String(ColVendorName),
			BusinessLine: r.String(ColBusinessLine),
			HeaderName:   r.String(ColHeaderName),
			ProductID:    r.String(ColProductID),
			Stock:        r.Int(ColProductStock),
			Visible:      r.Bool(ColIsVisible),
		})
	}
	return out
}

// FormatDateTime 展示格式 YYYY-MM-DD - HH:MM，无法解析时原样返回
func FormatDateTime(t time.Time, raw string) string {
	if t.IsZero() {
		return raw
	}
	return t.Format("2006-01-02 - 15:04")
}
