package business

// DiscountStats 折扣库存统计
type DiscountStats struct {
	Type          string           `json:"type"`
	TotalProducts int              `json:"total_products"`
	ActiveAlerts  int              `json:"active_alerts"`
	BySeverity    map[Severity]int `json:"by_severity"`
	ClearedAlerts int              `json:"cleared_alerts"`
}

// VendorStatusStats 商家在班统计
type VendorStatusStats struct {
	Type            string `json:"type"`
	TotalVendors    int    `json:"total_vendors"`
	ActiveVendors   int    `json:"active_vendors"`
	InactiveVendors int    `json:"inactive_vendors"`
	ActiveAlerts    int    `json:"active_alerts"`
	ClearedAlerts   int    `json:"cleared_alerts"`
}

// IssueCounts 新问题/持续问题计数
type IssueCounts struct {
	HasIssues int `json:"has_issues"`
	HadIssues int `json:"had_issues"`
}

// VendorProductStats 商家商品统计
type VendorProductStats struct {
	Type                   string         `json:"type"`
	TotalVendors           int            `json:"total_vendors"`
	BusinessLines          map[string]int `json:"business_lines"`
	StockAlertCounts       IssueCounts    `json:"stock_alert_counts"`
	VisibilityAlertCounts  IssueCounts    `json:"visibility_alert_counts"`
	StockClearedCount      int            `json:"stock_cleared_count"`
	VisibilityClearedCount int            `json:"visibility_cleared_count"`
}

// DiscountStockStats 计算折扣库存统计
func DiscountStockStats(book *AlertBook, rows []DiscountStockRow) DiscountStats {
	st := DiscountStats{
		Type:          string(TabDiscountStock),
		TotalProducts: len(rows),
		ActiveAlerts:  book.Discount.ActiveLen(),
		BySeverity:    make(map[Severity]int),
		ClearedAlerts: book.Discount.ClearedLen(),
	}
	for _, a := range book.Discount.ActiveList() {
		st.BySeverity[a.Severity]++
	}
	return st
}

// VendorStatusStatsOf 计算商家在班统计，totalVendors 为会话过滤集合大小
func VendorStatusStatsOf(book *AlertBook, rows []VendorStatusRow, totalVendors int) VendorStatusStats {
	st := VendorStatusStats{
		Type:          string(TabVendorStatus),
		TotalVendors:  totalVendors,
		ActiveAlerts:  book.Vendor.ActiveLen(),
		ClearedAlerts: book.Vendor.ClearedLen(),
	}
	for _, r := range rows {
		switch r.Status {
		case VendorActive:
			st.ActiveVendors++
		case VendorInactive:
			st.InactiveVendors++
		}
	}
	return st
}

// VendorProductStatsOf 计算商家商品统计
func VendorProductStatsOf(book *AlertBook, verdicts []VendorVerdict, totalVendors int) VendorProductStats {
	st := VendorProductStats{
		Type:                   "vendor_product",
		TotalVendors:           totalVendors,
		BusinessLines:          make(map[string]int),
		StockClearedCount:      book.Stock.ClearedLen(),
		VisibilityClearedCount: book.Visibility.ClearedLen(),
	}
	for _, v := range verdicts {
		st.BusinessLines[v.BusinessLine]++
	}
	for _, a := range book.Stock.ActiveList() {
		switch a.Type {
		case AlertStockIssuesNew:
			st.StockAlertCounts.HasIssues++
		case AlertStockIssuesPersistent:
			st.StockAlertCounts.HadIssues++
		}
	}
	for _, a := range book.Visibility.ActiveList() {
		switch a.Type {
		case AlertVisibilityIssuesNew:
			st.VisibilityAlertCounts.HasIssues++
		case AlertVisibilityIssuesPersistent:
			st.VisibilityAlertCounts.HadIssues++
		}
	}
	return st
}
