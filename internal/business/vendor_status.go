package business

// DiffVendorStatus 商家在班状态机
//
//	上一轮 active，本轮 inactive        -> deactivated，high
//	本轮 inactive，且无 high 告警       -> not active，medium（不降级已有 high 告警）
//	本轮 active，且存在活跃告警         -> 清除为 activated
//
// 每个出现的商家都会覆盖上一轮状态
func (e *Engine) DiffVendorStatus(book *AlertBook, rows []VendorStatusRow) []Event {
	if len(rows) == 0 {
		return nil
	}

	now := e.now()
	table := book.Vendor
	events := make([]Event, 0)

	for _, r := range rows {
		code := VendorCode(r.VendorCode)
		prev := book.priorVendor[code]
		existing, found := table.Active(code)

		switch {
		case prev == VendorActive && r.Status == VendorInactive:
			alert := newVendorStatusAlert(r, AlertVendorDeactivated, SeverityHigh)
			alert.Time = now
			keepTime(&alert.AlertMeta, existing.AlertMeta, found)
			isNew := table.Activate(code, alert)
			events = append(events, upsertEvent(TabVendorStatus, r.VendorCode, r.VendorCode, isNew, alert))

		case r.Status == VendorInactive:
			if found && existing.Severity == SeverityHigh {
				// 保留 high 告警，原样重发
				events = append(events, upsertEvent(TabVendorStatus, r.VendorCode, r.VendorCode, false, existing))
				break
			}
			alert := newVendorStatusAlert(r, AlertVendorNotActive, SeverityMedium)
			alert.Time = now
			keepTime(&alert.AlertMeta, existing.AlertMeta, found)
			isNew := table.Activate(code, alert)
			events = append(events, upsertEvent(TabVendorStatus, r.VendorCode, r.VendorCode, isNew, alert))

		case r.Status == VendorActive:
			if !found {
				break
			}
			cleared := existing
			cleared.clear(AlertVendorActivated, now)
			cleared.VendorStatus = r.Status
			table.Clear(code, cleared)
			events = append(events, clearedEvent(TabVendorStatus, r.VendorCode, r.VendorCode, cleared))
		}

		book.priorVendor[code] = r.Status
	}

	return events
}

func newVendorStatusAlert(r VendorStatusRow, t AlertType, sev Severity) VendorStatusAlert {
	return VendorStatusAlert{
		AlertMeta: AlertMeta{
			Type:     t,
			Severity: sev,
			Status:   StatusActive,
		},
		VendorCode:   r.VendorCode,
		VendorName:   r.VendorName,
		VendorStatus: r.Status,
	}
}
