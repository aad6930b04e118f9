package business

import "time"

// issueRule 库存/可见性两个状态机共享的规则描述
type issueRule struct {
	tab        Tab
	good       string
	issue      string
	newType    AlertType
	persistent AlertType
	fixed      AlertType
}

var (
	stockRule = issueRule{
		tab:        TabVendorProductStock,
		good:       StockGood,
		issue:      StockIssue,
		newType:    AlertStockIssuesNew,
		persistent: AlertStockIssuesPersistent,
		fixed:      AlertStockIssuesFixed,
	}
	visibilityRule = issueRule{
		tab:        TabVendorProductVisibility,
		good:       VisibilityGood,
		issue:      VisibilityIssue,
		newType:    AlertVisibilityIssuesNew,
		persistent: AlertVisibilityIssuesPersistent,
		fixed:      AlertVisibilityIssuesFixed,
	}
)

// DiffProductStatus 商家库存与可见性状态机
//
//	good  -> issue  新问题，high
//	issue -> issue  持续问题，medium
//	issue -> good   清除为 fixed
//	未见过 -> issue  仅记录状态，下一轮才产出告警
func (e *Engine) DiffProductStatus(book *AlertBook, verdicts []VendorVerdict) []Event {
	if len(verdicts) == 0 {
		return nil
	}

	now := e.now()
	events := make([]Event, 0)

	for _, v := range verdicts {
		key := v.Key()
		prev := book.priorProduct[key]

		if ev, ok := e.diffIssue(book.Stock, stockRule, key, v, prev.stock, v.StockStatus,
			v.StockIssueHeaders, v.StockIssueRate, now); ok {
			events = append(events, ev)
		}
		if ev, ok := e.diffIssue(book.Visibility, visibilityRule, key, v, prev.visibility, v.VisibilityStatus,
			v.VisibilityIssueHeaders, v.VisibilityIssueRate, now); ok {
			events = append(events, ev)
		}

		book.priorProduct[key] = productPrior{stock: v.StockStatus, visibility: v.VisibilityStatus}
	}

	return events
}

func (e *Engine) diffIssue(
	table *Table[VendorLineKey, ProductIssueAlert],
	rule issueRule,
	key VendorLineKey,
	v VendorVerdict,
	prev, cur string,
	issues int,
	rate float64,
	now time.Time,
) (Event, bool) {
	existing, found := table.Active(key)

	var alert ProductIssueAlert
	switch {
	case prev == rule.good && cur == rule.issue:
		alert = newIssueAlert(v, rule.newType, SeverityHigh, issues, rate)
	case prev == rule.issue && cur == rule.issue:
		alert = newIssueAlert(v, rule.persistent, SeverityMedium, issues, rate)
	case prev == rule.issue && cur == rule.good:
		if !found {
			return Event{}, false
		}
		cleared := existing
		cleared.clear(rule.fixed, now)
		table.Clear(key, cleared)
		return clearedEvent(rule.tab, key.String(), key.VendorCode, cleared), true
	default:
		return Event{}, false
	}

	alert.Time = now
	keepTime(&alert.AlertMeta, existing.AlertMeta, found)
	isNew := table.Activate(key, alert)
	return upsertEvent(rule.tab, key.String(), key.VendorCode, isNew, alert), true
}

func newIssueAlert(v VendorVerdict, t AlertType, sev Severity, issues int, rate float64) ProductIssueAlert {
	return ProductIssueAlert{
		AlertMeta: AlertMeta{
			Type:     t,
			Severity: sev,
			Status:   StatusActive,
		},
		VendorCode:   v.VendorCode,
		VendorName:   v.VendorName,
		BusinessLine: v.BusinessLine,
		TotalHeaders: v.TotalHeaders,
		IssueHeaders: issues,
		IssueRate:    rate,
		Rate:         FormatPercentage(rate),
	}
}

// PrimeProductStatus 只记录本轮状态作为上一轮快照，不产出告警。
// 新会话先预热一次，首轮差分即可对已存在问题的商家产出持续问题告警
func (e *Engine) PrimeProductStatus(book *AlertBook, verdicts []VendorVerdict) {
	for _, v := range verdicts {
		key := v.Key()
		if _, seen := book.priorProduct[key]; seen {
			continue
		}
		book.priorProduct[key] = productPrior{stock: v.StockStatus, visibility: v.VisibilityStatus}
	}
}
