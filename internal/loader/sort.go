package loader

import (
	"sort"

	"github.com/wyhuang/marketdash/pkg/models"
)

// Sort transform names, matching the dashboard's sort selector values.
const (
	SortSymbolAsc   = "symbolAsc"
	SortPriceDesc   = "priceDesc"
	SortPriceAsc    = "priceAsc"
	SortPercentDesc = "percentDesc"
	SortPercentAsc  = "percentAsc"
	SortVolumeDesc  = "volumeDesc"
)

// SortRecords flattens a section payload into a deterministically ordered
// slice using the named transform. Unknown transforms fall back to symbol
// order; ties always break by symbol so repeated renders are stable.
func SortRecords(payload models.SectionPayload, transform string) []models.QuoteRecord {
	records := make([]models.QuoteRecord, 0, len(payload))
	for _, q := range payload {
		records = append(records, q)
	}

	less := func(a, b models.QuoteRecord) bool { return a.Symbol < b.Symbol }
	switch transform {
	case SortPriceDesc:
		less = func(a, b models.QuoteRecord) bool { return a.CurrentPrice > b.CurrentPrice }
	case SortPriceAsc:
		less = func(a, b models.QuoteRecord) bool { return a.CurrentPrice < b.CurrentPrice }
	case SortPercentDesc:
		less = func(a, b models.QuoteRecord) bool { return a.ChangePercent > b.ChangePercent }
	case SortPercentAsc:
		less = func(a, b models.QuoteRecord) bool { return a.ChangePercent < b.ChangePercent }
	case SortVolumeDesc:
		less = func(a, b models.QuoteRecord) bool { return a.Volume > b.Volume }
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.Symbol < b.Symbol
	})
	return records
}
