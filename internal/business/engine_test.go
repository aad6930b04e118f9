package business

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine() (*Engine, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC)}
	e := NewEngine(DefaultNearEndThreshold)
	e.Now = clock.Now
	return e, clock
}

func discountRow(vendor, product string, discount, stock int) DiscountStockRow {
	return DiscountStockRow{
		VendorCode:    vendor,
		VendorName:    "name-" + vendor,
		HeaderName:    "header",
		ProductName:   product,
		DiscountStock: discount,
		ProductStock:  stock,
		DiscountRatio: 0.2,
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func assertDisjoint[K comparable, A any](t *testing.T, table *Table[K, A]) {
	t.Helper()
	for k := range table.active {
		_, inCleared := table.cleared[k]
		assert.False(t, inCleared, "identity %v is both active and cleared", k)
	}
}

func TestDiscountNearEndThenFixed(t *testing.T) {
	e, clock := newTestEngine()
	book := NewAlertBook()
	row := discountRow("V1", "burger", 2, 5)

	events := e.DiffDiscountStock(book, []DiscountStockRow{row})
	require.Len(t, events, 1)
	assert.Equal(t, EventNewAlert, events[0].Kind)
	assert.True(t, events[0].IsNew)
	assert.Equal(t, "V1_header_burger", events[0].Key)

	alert, ok := book.Discount.Active(row.Key())
	require.True(t, ok)
	assert.Equal(t, AlertDiscountStockNearEnd, alert.Type)
	assert.Equal(t, SeverityRedMedium, alert.Severity)
	assert.Equal(t, StatusActive, alert.Status)

	clock.Advance(3 * time.Minute)
	events = e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "burger", 5, 5)})
	require.Len(t, events, 1)
	assert.Equal(t, EventAlertCleared, events[0].Kind)

	_, ok = book.Discount.Active(row.Key())
	assert.False(t, ok)
	cleared, ok := book.Discount.Cleared(row.Key())
	require.True(t, ok)
	assert.Equal(t, AlertDiscountedItemFixed, cleared.Type)
	assert.Equal(t, SeverityResolved, cleared.Severity)
	assert.Equal(t, StatusCleared, cleared.Status)
	assert.Equal(t, 5, cleared.DiscountStock)
	require.NotNil(t, cleared.ClearedAt)
	assert.Equal(t, clock.t, *cleared.ClearedAt)
	assertDisjoint(t, book.Discount)
}

func TestDiscountSeverityGrades(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()

	e.DiffDiscountStock(book, []DiscountStockRow{
		discountRow("V1", "one", 1, 9),
		discountRow("V1", "two", 2, 9),
		discountRow("V1", "three", 3, 9),
		discountRow("V1", "finished", 10, 0),
		discountRow("V1", "fine", 10, 9),
		discountRow("V1", "zero", 0, 9),
	})

	sev := func(product string) Severity {
		a, ok := book.Discount.Active(discountRow("V1", product, 0, 0).Key())
		require.True(t, ok, product)
		return a.Severity
	}
	assert.Equal(t, SeverityRedHigh, sev("one"))
	assert.Equal(t, SeverityRedMedium, sev("two"))
	assert.Equal(t, SeverityRedLight, sev("three"))
	assert.Equal(t, SeverityCritical, sev("finished"))

	finished, _ := book.Discount.Active(discountRow("V1", "finished", 0, 0).Key())
	assert.Equal(t, AlertProductStockFinished, finished.Type)
	assert.Equal(t, 4, book.Discount.ActiveLen())
}

func TestDiscountFixedBoundIgnoresNearEndThreshold(t *testing.T) {
	// 阈值调大：4 件剩余且有库存仍按已修复处理
	wide := NewEngine(5)
	book := NewAlertBook()
	row := discountRow("V1", "burger", 2, 5)
	wide.DiffDiscountStock(book, []DiscountStockRow{row})
	require.Equal(t, 1, book.Discount.ActiveLen())

	events := wide.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "burger", 4, 5)})
	require.Len(t, events, 1)
	assert.Equal(t, EventAlertCleared, events[0].Kind)
	assert.Zero(t, book.Discount.ActiveLen())

	events = wide.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "burger", 5, 5)})
	assert.Empty(t, events)

	// 阈值调小：3 件剩余既不告警也不清除已有告警
	narrow := NewEngine(2)
	book = NewAlertBook()
	narrow.DiffDiscountStock(book, []DiscountStockRow{row})
	events = narrow.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "burger", 3, 5)})
	assert.Empty(t, events)
	alert, ok := book.Discount.Active(row.Key())
	require.True(t, ok)
	assert.Equal(t, SeverityRedMedium, alert.Severity)

	events = narrow.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "other", 3, 5)})
	assert.Len(t, events, 1, "vanished burger is cleared, other gets no alert")
	assert.Zero(t, book.Discount.ActiveLen())
}

func TestDiscountVanishedIsCleared(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()

	e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "a", 1, 3), discountRow("V1", "b", 1, 3)})
	events := e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "b", 1, 3)})

	assert.ElementsMatch(t, []EventKind{EventUpdateAlert, EventAlertCleared}, kinds(events))
	cleared, ok := book.Discount.Cleared(discountRow("V1", "a", 0, 0).Key())
	require.True(t, ok)
	assert.Equal(t, AlertDiscountedItemFixed, cleared.Type)
	assert.Equal(t, 1, book.Discount.ActiveLen())
}

func TestDiscountEmptySnapshotSkips(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()
	e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "a", 1, 3)})

	assert.Empty(t, e.DiffDiscountStock(book, nil))
	assert.Equal(t, 1, book.Discount.ActiveLen())
}

func TestDiscountIdempotent(t *testing.T) {
	e, clock := newTestEngine()
	book := NewAlertBook()
	rows := []DiscountStockRow{discountRow("V1", "a", 2, 3), discountRow("V2", "b", 4, 0)}

	e.DiffDiscountStock(book, rows)
	before := book.Discount.ActiveList()

	clock.Advance(time.Minute)
	events := e.DiffDiscountStock(book, rows)

	assert.Equal(t, before, book.Discount.ActiveList())
	for _, ev := range events {
		assert.Equal(t, EventUpdateAlert, ev.Kind)
		assert.False(t, ev.IsNew)
	}
}

func TestDiscountReactivationLeavesClearedMap(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()
	key := discountRow("V1", "a", 0, 0).Key()

	e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "a", 1, 3)})
	e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "a", 10, 3)})
	_, ok := book.Discount.Cleared(key)
	require.True(t, ok)

	events := e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "a", 1, 3)})
	require.Len(t, events, 1)
	assert.True(t, events[0].IsNew)
	_, ok = book.Discount.Cleared(key)
	assert.False(t, ok)
	assertDisjoint(t, book.Discount)
}

func vendorRow(code, status string) VendorStatusRow {
	return VendorStatusRow{VendorCode: code, VendorName: "name-" + code, Status: status}
}

func TestVendorFlipKeepsHighSeverity(t *testing.T) {
	e, clock := newTestEngine()
	book := NewAlertBook()

	assert.Empty(t, e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorActive)}))

	events := e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorInactive)})
	require.Len(t, events, 1)
	assert.Equal(t, EventNewAlert, events[0].Kind)

	alert, ok := book.Vendor.Active("V1")
	require.True(t, ok)
	assert.Equal(t, AlertVendorDeactivated, alert.Type)
	assert.Equal(t, SeverityHigh, alert.Severity)
	assert.Equal(t, StatusActive, alert.Status)

	clock.Advance(3 * time.Minute)
	events = e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorInactive)})
	require.Len(t, events, 1)
	assert.Equal(t, EventUpdateAlert, events[0].Kind)
	assert.False(t, events[0].IsNew)

	again, _ := book.Vendor.Active("V1")
	assert.Equal(t, alert, again)
}

func TestVendorStartsInactive(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()

	e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V2", VendorInactive)})
	alert, ok := book.Vendor.Active("V2")
	require.True(t, ok)
	assert.Equal(t, AlertVendorNotActive, alert.Type)
	assert.Equal(t, SeverityMedium, alert.Severity)

	prior, ok := book.PriorVendorStatus("V2")
	require.True(t, ok)
	assert.Equal(t, VendorInactive, prior)
}

func TestVendorActivatedClears(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()

	e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorActive)})
	e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorInactive)})
	events := e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorActive)})

	require.Len(t, events, 1)
	assert.Equal(t, EventAlertCleared, events[0].Kind)
	cleared, ok := book.Vendor.Cleared("V1")
	require.True(t, ok)
	assert.Equal(t, AlertVendorActivated, cleared.Type)
	assert.Equal(t, SeverityResolved, cleared.Severity)
	assert.Equal(t, VendorActive, cleared.VendorStatus)
	assert.Equal(t, 0, book.Vendor.ActiveLen())
}

func TestVendorIdempotentNotActive(t *testing.T) {
	e, clock := newTestEngine()
	book := NewAlertBook()
	rows := []VendorStatusRow{vendorRow("V1", VendorInactive), vendorRow("V2", VendorActive)}

	e.DiffVendorStatus(book, rows)
	before := book.Vendor.ActiveList()
	clock.Advance(time.Minute)
	events := e.DiffVendorStatus(book, rows)

	assert.Equal(t, before, book.Vendor.ActiveList())
	require.Len(t, events, 1)
	assert.False(t, events[0].IsNew)
}

func verdict(code, stock, visibility string) VendorVerdict {
	return VendorVerdict{
		VendorCode:             code,
		VendorName:             "name-" + code,
		BusinessLine:           "food",
		TotalHeaders:           10,
		StockIssueHeaders:      4,
		VisibilityIssueHeaders: 3,
		StockIssueRate:         0.4,
		VisibilityIssueRate:    0.3,
		StockStatus:            stock,
		VisibilityStatus:       visibility,
	}
}

func TestProductStatusTransitions(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()
	key := VendorLineKey{VendorCode: "V1", BusinessLine: "food"}

	// unseen -> issue records history only
	events := e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockIssue, VisibilityGood)})
	assert.Empty(t, events)

	// issue -> issue
	events = e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockIssue, VisibilityGood)})
	require.Len(t, events, 1)
	assert.Equal(t, TabVendorProductStock, events[0].Tab)
	assert.True(t, events[0].IsNew)
	alert, ok := book.Stock.Active(key)
	require.True(t, ok)
	assert.Equal(t, AlertStockIssuesPersistent, alert.Type)
	assert.Equal(t, SeverityMedium, alert.Severity)
	assert.Equal(t, "40.00%", alert.Rate)

	// issue -> good
	events = e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockGood, VisibilityGood)})
	require.Len(t, events, 1)
	assert.Equal(t, EventAlertCleared, events[0].Kind)
	cleared, ok := book.Stock.Cleared(key)
	require.True(t, ok)
	assert.Equal(t, AlertStockIssuesFixed, cleared.Type)

	// good -> issue
	events = e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockIssue, VisibilityGood)})
	require.Len(t, events, 1)
	alert, _ = book.Stock.Active(key)
	assert.Equal(t, AlertStockIssuesNew, alert.Type)
	assert.Equal(t, SeverityHigh, alert.Severity)
	assertDisjoint(t, book.Stock)
}

func TestVisibilityIndependentOfStock(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()
	key := VendorLineKey{VendorCode: "V1", BusinessLine: "food"}

	e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockGood, VisibilityGood)})
	events := e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockGood, VisibilityIssue)})

	require.Len(t, events, 1)
	assert.Equal(t, TabVendorProductVisibility, events[0].Tab)
	alert, ok := book.Visibility.Active(key)
	require.True(t, ok)
	assert.Equal(t, AlertVisibilityIssuesNew, alert.Type)
	assert.Equal(t, 3, alert.IssueHeaders)
	assert.Equal(t, 0, book.Stock.ActiveLen())
}

func TestProductSteadyStateIsStable(t *testing.T) {
	e, clock := newTestEngine()
	book := NewAlertBook()
	snapshot := []VendorVerdict{verdict("V1", StockIssue, VisibilityIssue)}

	e.DiffProductStatus(book, snapshot)
	e.DiffProductStatus(book, snapshot)
	before := book.Stock.ActiveList()

	clock.Advance(time.Minute)
	events := e.DiffProductStatus(book, snapshot)
	assert.Equal(t, before, book.Stock.ActiveList())
	for _, ev := range events {
		assert.False(t, ev.IsNew)
	}
}

func TestPrimeSurfacesExistingIssuesOnFirstPass(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()
	snapshot := []VendorVerdict{
		verdict("V1", StockIssue, VisibilityGood),
		verdict("V2", StockGood, VisibilityGood),
	}

	e.PrimeProductStatus(book, snapshot)
	assert.Equal(t, 0, book.Stock.ActiveLen())

	events := e.DiffProductStatus(book, snapshot)
	require.Len(t, events, 1)
	assert.Equal(t, "V1", events[0].VendorCode)
	alert, ok := book.Stock.Active(VendorLineKey{VendorCode: "V1", BusinessLine: "food"})
	require.True(t, ok)
	assert.Equal(t, AlertStockIssuesPersistent, alert.Type)

	// priming never overwrites observed history
	e.PrimeProductStatus(book, []VendorVerdict{verdict("V1", StockGood, VisibilityGood)})
	events = e.DiffProductStatus(book, []VendorVerdict{verdict("V1", StockGood, VisibilityGood)})
	require.Len(t, events, 1)
	assert.Equal(t, EventAlertCleared, events[0].Kind)
}

func TestAlertIdentityStableUnderRandomCycles(t *testing.T) {
	e, clock := newTestEngine()
	book := NewAlertBook()
	rng := rand.New(rand.NewSource(99))

	statuses := []string{VendorActive, VendorInactive, "unknown"}
	stock := []string{StockGood, StockIssue}
	vis := []string{VisibilityGood, VisibilityIssue}

	for cycle := 0; cycle < 200; cycle++ {
		clock.Advance(time.Minute)

		var drows []DiscountStockRow
		var vrows []VendorStatusRow
		var verdicts []VendorVerdict
		for v := 0; v < 8; v++ {
			code := fmt.Sprintf("V%d", v)
			if rng.Intn(4) > 0 {
				drows = append(drows, discountRow(code, "p", rng.Intn(6), rng.Intn(3)))
			}
			vrows = append(vrows, vendorRow(code, statuses[rng.Intn(len(statuses))]))
			verdicts = append(verdicts, verdict(code, stock[rng.Intn(2)], vis[rng.Intn(2)]))
		}

		e.DiffDiscountStock(book, drows)
		e.DiffVendorStatus(book, vrows)
		e.DiffProductStatus(book, verdicts)

		assertDisjoint(t, book.Discount)
		assertDisjoint(t, book.Vendor)
		assertDisjoint(t, book.Stock)
		assertDisjoint(t, book.Visibility)
	}
}

func TestResetClearsEverything(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()
	e.DiffVendorStatus(book, []VendorStatusRow{vendorRow("V1", VendorInactive)})
	e.DiffDiscountStock(book, []DiscountStockRow{discountRow("V1", "a", 1, 1)})

	book.Reset()

	assert.Equal(t, 0, book.Vendor.ActiveLen())
	assert.Equal(t, 0, book.Discount.ActiveLen())
	_, ok := book.PriorVendorStatus("V1")
	assert.False(t, ok)
}
