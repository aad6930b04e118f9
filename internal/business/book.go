package business

// productPrior 上一轮商家商品状态
type productPrior struct {
	stock      string
	visibility string
}

// AlertBook 单个会话的告警状态：四张告警表及状态机的上一轮快照
type AlertBook struct {
	Discount   *Table[ProductKey, DiscountAlert]
	Vendor     *Table[VendorCode, VendorStatusAlert]
	Stock      *Table[VendorLineKey, ProductIssueAlert]
	Visibility *Table[VendorLineKey, ProductIssueAlert]

	// 上一轮观测值，只覆盖不删除
	priorVendor  map[VendorCode]string
	priorProduct map[VendorLineKey]productPrior
}

// NewAlertBook 创建空告警簿
func NewAlertBook() *AlertBook {
	return &AlertBook{
		Discount:     NewTable[ProductKey, DiscountAlert](),
		Vendor:       NewTable[VendorCode, VendorStatusAlert](),
		Stock:        NewTable[VendorLineKey, ProductIssueAlert](),
		Visibility:   NewTable[VendorLineKey, ProductIssueAlert](),
		priorVendor:  make(map[VendorCode]string),
		priorProduct: make(map[VendorLineKey]productPrior),
	}
}

// Reset 清空所有告警与历史
func (b *AlertBook) Reset() {
	b.Discount.Reset()
	b.Vendor.Reset()
	b.Stock.Reset()
	b.Visibility.Reset()
	b.priorVendor = make(map[VendorCode]string)
	b.priorProduct = make(map[VendorLineKey]productPrior)
}

// PriorVendorStatus 上一轮商家状态
func (b *AlertBook) PriorVendorStatus(code string) (string, bool) {
	s, ok := b.priorVendor[VendorCode(code)]
	return s, ok
}

// ActiveAlerts 按表返回活跃告警副本
func (b *AlertBook) ActiveAlerts() map[Tab]interface{} {
	return map[Tab]interface{}{
		TabDiscountStock:           b.Discount.ActiveList(),
		TabVendorStatus:            b.Vendor.ActiveList(),
		TabVendorProductStock:      b.Stock.ActiveList(),
		TabVendorProductVisibility: b.Visibility.ActiveList(),
	}
}

// ClearedAlerts 返回某张表的已清除告警副本
func (b *AlertBook) ClearedAlerts(tab Tab) (interface{}, bool) {
	switch tab {
	case TabDiscountStock:
		return b.Discount.ClearedList(), true
	case TabVendorStatus:
		return b.Vendor.ClearedList(), true
	case TabVendorProductStock:
		return b.Stock.ClearedList(), true
	case TabVendorProductVisibility:
		return b.Visibility.ClearedList(), true
	}
	return nil, false
}

// ClearedLen 某张表的已清除告警数
func (b *AlertBook) ClearedLen(tab Tab) int {
	switch tab {
	case TabDiscountStock:
		return b.Discount.ClearedLen()
	case TabVendorStatus:
		return b.Vendor.ClearedLen()
	case TabVendorProductStock:
		return b.Stock.ClearedLen()
	case TabVendorProductVisibility:
		return b.Visibility.ClearedLen()
	}
	return 0
}
