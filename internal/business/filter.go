package business

import (
	"sort"
	"strings"
)

// VendorSet 会话的商家过滤集合
type VendorSet map[string]struct{}

// NewVendorSet 去空白、去重
func NewVendorSet(codes []string) VendorSet {
	set := make(VendorSet, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// Contains 是否包含
func (s VendorSet) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes 排序后的商家编码
func (s VendorSet) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Clone 副本
func (s VendorSet) Clone() VendorSet {
	out := make(VendorSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Filter 按商家编码过滤，返回新切片
func Filter[T any](rows []T, set VendorSet, code func(T) string) []T {
	out := make([]T, 0)
	for _, r := range rows {
		if set.Contains(code(r)) {
			out = append(out, r)
		}
	}
	return out
}

// FilterDiscountStock 过滤折扣库存行
func FilterDiscountStock(rows []DiscountStockRow, set VendorSet) []DiscountStockRow {
	return Filter(rows, set, func(r DiscountStockRow) string { return r.VendorCode })
}

// FilterVendorStatus 过滤商家状态行
func FilterVendorStatus(rows []VendorStatusRow, set VendorSet) []VendorStatusRow {
	return Filter(rows, set, func(r VendorStatusRow) string { return r.VendorCode })
}

// FilterVerdicts 过滤商家结论
func FilterVerdicts(verdicts []VendorVerdict, set VendorSet) []VendorVerdict {
	return Filter(verdicts, set, func(v VendorVerdict) string { return v.VendorCode })
}
