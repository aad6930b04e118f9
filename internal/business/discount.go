package business

// discountFixedAbove 有库存且剩余折扣库存超过该值即视为已修复，不随临近耗尽阈值变化
const discountFixedAbove = 3

// discountSeverity 按剩余折扣库存分级：1 最高，2 中，3 最低；其余不分级
func discountSeverity(remaining int) (Severity, bool) {
	switch remaining {
	case 1:
		return SeverityRedHigh, true
	case 2:
		return SeverityRedMedium, true
	case 3:
		return SeverityRedLight, true
	default:
		return "", false
	}
}

// DiffDiscountStock 折扣库存状态机
//
//   - 有库存且剩余折扣库存 > 3：清除为 fixed
//   - 剩余折扣库存 > 0 且库存为 0：critical，stock finished
//   - 0 < 剩余折扣库存 <= 阈值且有库存：按剩余数量分级
//   - 本轮不再出现的活跃告警：清除为 fixed
//
// 空快照直接跳过，不做任何清除
func (e *Engine) DiffDiscountStock(book *AlertBook, rows []DiscountStockRow) []Event {
	if len(rows) == 0 {
		return nil
	}

	now := e.now()
	table := book.Discount
	events := make([]Event, 0)
	seen := make(map[ProductKey]struct{}, len(rows))

	for _, r := range rows {
		key := r.Key()
		seen[key] = struct{}{}
		existing, found := table.Active(key)

		var alert *DiscountAlert
		switch {
		case r.ProductStock > 0 && r.DiscountStock > discountFixedAbove:
			if !found {
				continue
			}
			cleared := existing
			cleared.clear(AlertDiscountedItemFixed, now)
			cleared.ProductStock = r.ProductStock
			cleared.DiscountStock = r.DiscountStock
			table.Clear(key, cleared)
			events = append(events, clearedEvent(TabDiscountStock, key.String(), r.VendorCode, cleared))
			continue

		case r.DiscountStock > 0 && r.ProductStock == 0:
			alert = newDiscountAlert(r, AlertProductStockFinished, SeverityCritical)

		case r.DiscountStock > 0 && r.DiscountStock <= e.NearEndThreshold && r.ProductStock > 0:
			if sev, ok := discountSeverity(r.DiscountStock); ok {
				alert = newDiscountAlert(r, AlertDiscountStockNearEnd, sev)
			}
		}

		if alert == nil {
			continue
		}
		alert.Time = now
		keepTime(&alert.AlertMeta, existing.AlertMeta, found)
		isNew := table.Activate(key, *alert)
		events = append(events, upsertEvent(TabDiscountStock, key.String(), r.VendorCode, isNew, *alert))
	}

	// 消失的商品视为已修复
	for _, key := range table.ActiveKeys() {
		if _, ok := seen[key]; ok {
			continue
		}
		existing, _ := table.Active(key)
		cleared := existing
		cleared.clear(AlertDiscountedItemFixed, now)
		table.Clear(key, cleared)
		events = append(events, clearedEvent(TabDiscountStock, key.String(), key.VendorCode, cleared))
	}

	return events
}

func newDiscountAlert(r DiscountStockRow, t AlertType, sev Severity) *DiscountAlert {
	return &DiscountAlert{
		AlertMeta: AlertMeta{
			Type:     t,
			Severity: sev,
			Status:   StatusActive,
		},
		ProductID:     r.Key().String(),
		VendorCode:    r.VendorCode,
		VendorName:    r.VendorName,
		HeaderName:    r.HeaderName,
		ProductName:   r.ProductName,
		DiscountStock: r.DiscountStock,
		ProductStock:  r.ProductStock,
		DiscountRatio: r.DiscountRatio,
		StartAt:       r.DiscountStartAt,
		EndAt:         r.DiscountEndAt,
	}
}
