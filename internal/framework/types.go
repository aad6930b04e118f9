package framework

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Domain 数据域标签
type Domain string

const (
	DomainDiscountStock       Domain = "discount_stock"
	DomainVendorStatus        Domain = "vendor_status"
	DomainVendorProductStatus Domain = "vendor_product_status"
)

// Domains 所有数据域（刷新顺序）
var Domains = []Domain{DomainDiscountStock, DomainVendorStatus, DomainVendorProductStatus}

// Valid 是否为已知数据域
func (d Domain) Valid() bool {
	switch d {
	case DomainDiscountStock, DomainVendorStatus, DomainVendorProductStatus:
		return true
	}
	return false
}

// Row 一行数据（列名 -> 值）
type Row map[string]interface{}

// Dataset 一次拉取得到的完整表格，拉取后不再修改
type Dataset struct {
	Domain    Domain
	Columns   []string
	Rows      []Row
	FetchedAt time.Time
}

// Len 行数
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Empty 是否为空
func (d *Dataset) Empty() bool {
	return d.Len() == 0
}

// String 读取字符串列，缺失或 null 返回空串
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Float 读取数值列，无法解析时按 0 处理
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Int 读取整数列（截断小数），无法解析时按 0 处理
func (r Row) Int(col string) int {
	return int(r.Float(col))
}

// Bool 读取布尔列：true/1/"true"/"yes" 视为真，其余为假
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "t":
			return true
		}
		return false
	default:
		return r.Float(col) != 0
	}
}

// Time 读取时间列，支持常见格式，失败返回零值
func (r Row) Time(col string) time.Time {
	s := r.String(col)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}
