package business

import (
	"math"
	"sort"
)

// SizeBucket 商家规模分桶
type SizeBucket string

const (
	BucketQ1 SizeBucket = "Q1"
	BucketQ2 SizeBucket = "Q2"
	BucketQ3 SizeBucket = "Q3"
	BucketQ4 SizeBucket = "Q4"
	BucketQ5 SizeBucket = "Q5"
)

// ThresholdFraction 分桶对应的问题占比阈值，小商家阈值更高
func (b SizeBucket) ThresholdFraction() float64 {
	switch b {
	case BucketQ1:
		return 0.35
	case BucketQ2:
		return 0.25
	case BucketQ3:
		return 0.20
	case BucketQ4:
		return 0.15
	default:
		return 0.10
	}
}

// 商家商品状态
const (
	StockGood       = "stock_good"
	StockIssue      = "vendor_stock_issue"
	VisibilityGood  = "visibility_good"
	VisibilityIssue = "vendor_product_visibility_issue"
)

// VendorVerdict 商家（按业务线）库存/可见性结论
type VendorVerdict struct {
	VendorCode             string     `json:"vendor_code"`
	VendorName             string     `json:"vendor_name"`
	BusinessLine           string     `json:"business_line"`
	TotalHeaders           int        `json:"total_headers"`
	StockIssueHeaders      int        `json:"stock_issue_headers"`
	VisibilityIssueHeaders int        `json:"visibility_issue_headers"`
	StockIssueRate         float64    `json:"stock_issue_rate"`
	VisibilityIssueRate    float64    `json:"visibility_issue_rate"`
	SizeQuantile           SizeBucket `json:"size_quantile"`
	StockStatus            string     `json:"vendor_stock_status"`
	VisibilityStatus       string     `json:"vendor_visibility_status"`
}

// Key 告警身份
func (v VendorVerdict) Key() VendorLineKey {
	return VendorLineKey{VendorCode: v.VendorCode, BusinessLine: v.BusinessLine}
}

// Quantiles 本轮 P20/P40/P60/P80 边界
type Quantiles struct {
	P20, P40, P60, P80 float64
}

// Bucket 按边界分桶
func (q Quantiles) Bucket(totalHeaders int) SizeBucket {
	t := float64(totalHeaders)
	switch {
	case t <= q.P20:
		return BucketQ1
	case t <= q.P40:
		return BucketQ2
	case t <= q.P60:
		return BucketQ3
	case t <= q.P80:
		return BucketQ4
	default:
		return BucketQ5
	}
}

type headerKey struct {
	vendor VendorLineKey
	header string
}

type headerFlags struct {
	visibility bool
	pureStock  bool
}

type vendorAgg struct {
	name       string
	headers    int
	visibility int
	pureStock  int
}

// Classify 将商品行汇总为商家结论
//
// 1. 逐行计算问题标记
// 2. 按商品头 OR 聚合
// 3. 按商家+业务线计数
// 4. 按商品头数量分位数分桶，按分桶阈值判定
func Classify(rows []VendorProductRow) []VendorVerdict {
	if len(rows) == 0 {
		return nil
	}

	// 1-2. 行 -> 商品头
	headers := make(map[headerKey]*headerFlags)
	headerOrder := make([]headerKey, 0)
	names := make(map[VendorLineKey]string)
	for _, r := range rows {
		vk := VendorLineKey{VendorCode: r.VendorCode, BusinessLine: r.BusinessLine}
		if _, ok := names[vk]; !ok {
			names[vk] = r.VendorName
		}
		hk := headerKey{vendor: vk, header: r.HeaderName}
		f, ok := headers[hk]
		if !ok {
			f = &headerFlags{}
			headers[hk] = f
			headerOrder = append(headerOrder, hk)
		}
		stockIssue := r.Stock == 0
		f.visibility = f.visibility || !r.Visible
		f.pureStock = f.pureStock || (r.Visible && stockIssue)
	}

	// 3. 商品头 -> 商家
	vendors := make(map[VendorLineKey]*vendorAgg)
	for _, hk := range headerOrder {
		f := headers[hk]
		agg, ok := vendors[hk.vendor]
		if !ok {
			agg = &vendorAgg{name: names[hk.vendor]}
			vendors[hk.vendor] = agg
		}
		agg.headers++
		if f.visibility {
			agg.visibility++
		}
		if f.pureStock {
			agg.pureStock++
		}
	}

	keys := make([]VendorLineKey, 0, len(vendors))
	totals := make([]float64, 0, len(vendors))
	for k, agg := range vendors {
		keys = append(keys, k)
		totals = append(totals, float64(agg.headers))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	// 4. 分位数
	sort.Float64s(totals)
	q := Quantiles{
		P20: quantileSorted(totals, 0.2),
		P40: quantileSorted(totals, 0.4),
		P60: quantileSorted(totals, 0.6),
		P80: quantileSorted(totals, 0.8),
	}

	out := make([]VendorVerdict, 0, len(keys))
	for _, k := range keys {
		agg := vendors[k]
		bucket := q.Bucket(agg.headers)
		threshold := int(math.Ceil(float64(agg.headers) * bucket.ThresholdFraction()))

		v := VendorVerdict{
			VendorCode:             k.VendorCode,
			VendorName:             agg.name,
			BusinessLine:           k.BusinessLine,
			TotalHeaders:           agg.headers,
			StockIssueHeaders:      agg.pureStock,
			VisibilityIssueHeaders: agg.visibility,
			SizeQuantile:           bucket,
			StockStatus:            StockGood,
			VisibilityStatus:       VisibilityGood,
		}
		if agg.headers > 0 {
			v.StockIssueRate = round4(float64(agg.pureStock) / float64(agg.headers))
			v.VisibilityIssueRate = round4(float64(agg.visibility) / float64(agg.headers))
		}
		if agg.pureStock >= threshold {
			v.StockStatus = StockIssue
		}
		if agg.visibility >= threshold {
			v.VisibilityStatus = VisibilityIssue
		}
		out = append(out, v)
	}
	return out
}
