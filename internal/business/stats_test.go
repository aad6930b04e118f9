package business

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendormonitor/internal/framework"
)

func TestVendorSetAndFilter(t *testing.T) {
	set := NewVendorSet([]string{" V1 ", "V2", "", "V1"})
	assert.Equal(t, []string{"V1", "V2"}, set.Codes())

	rows := []VendorStatusRow{vendorRow("V1", VendorActive), vendorRow("V3", VendorInactive), vendorRow("V2", VendorInactive)}
	filtered := FilterVendorStatus(rows, set)
	require.Len(t, filtered, 2)
	assert.Equal(t, "V1", filtered[0].VendorCode)
	assert.Equal(t, "V2", filtered[1].VendorCode)

	assert.Empty(t, FilterDiscountStock([]DiscountStockRow{discountRow("V9", "x", 1, 1)}, set))
}

func TestStats(t *testing.T) {
	e, _ := newTestEngine()
	book := NewAlertBook()

	vrows := []VendorStatusRow{vendorRow("V1", VendorActive), vendorRow("V2", VendorInactive)}
	e.DiffVendorStatus(book, vrows)
	vs := VendorStatusStatsOf(book, vrows, 3)
	assert.Equal(t, VendorStatusStats{
		Type: "vendor_status", TotalVendors: 3, ActiveVendors: 1, InactiveVendors: 1, ActiveAlerts: 1,
	}, vs)

	drows := []DiscountStockRow{discountRow("V1", "a", 1, 2), discountRow("V1", "b", 2, 0)}
	e.DiffDiscountStock(book, drows)
	ds := DiscountStockStats(book, drows)
	assert.Equal(t, 2, ds.TotalProducts)
	assert.Equal(t, 1, ds.BySeverity[SeverityRedHigh])
	assert.Equal(t, 1, ds.BySeverity[SeverityCritical])

	verdicts := []VendorVerdict{verdict("V1", StockIssue, VisibilityIssue), verdict("V2", StockGood, VisibilityGood)}
	verdicts[1].BusinessLine = "mart"
	e.DiffProductStatus(book, verdicts)
	e.DiffProductStatus(book, verdicts)
	ps := VendorProductStatsOf(book, verdicts, 2)
	assert.Equal(t, map[string]int{"food": 1, "mart": 1}, ps.BusinessLines)
	assert.Equal(t, IssueCounts{HadIssues: 1}, ps.StockAlertCounts)
	assert.Equal(t, IssueCounts{HadIssues: 1}, ps.VisibilityAlertCounts)
}

func TestDecodeDatasets(t *testing.T) {
	ds := &framework.Dataset{
		Domain: framework.DomainDiscountStock,
		Rows: []framework.Row{{
			ColVendorCode:      "V1",
			ColVendorName:      "Burger",
			ColHeaderName:      "Combo",
			ColProductName:     "Double",
			ColDiscountStock:   float64(2),
			ColProductStock:    "n/a",
			ColDiscountRatio:   0.15,
			ColDiscountStartAt: "2025-11-02T00:00:00+03:30",
		}},
	}
	rows := DecodeDiscountStock(ds)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].DiscountStock)
	assert.Equal(t, 0, rows[0].ProductStock)
	assert.Equal(t, "2025-11-02 - 00:00", rows[0].DiscountStartAt)
	assert.Equal(t, "", rows[0].DiscountEndAt)
	assert.Equal(t, "V1_Combo_Double", rows[0].Key().String())

	products := DecodeVendorProducts(&framework.Dataset{Rows: []framework.Row{{
		ColVendorCode: "V1", ColBusinessLine: "food", ColHeaderName: "h", ColProductStock: float64(0), ColIsVisible: float64(1),
	}}})
	require.Len(t, products, 1)
	assert.True(t, products[0].Visible)
	assert.Equal(t, 0, products[0].Stock)

	assert.Nil(t, DecodeVendorStatus(nil))
}
