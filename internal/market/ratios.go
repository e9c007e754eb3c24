package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/pkg/models"
)

// ratioSeries is a close series keyed by YYYY-MM-DD date strings.
type ratioSeries map[string]float64

// GetRatioSummary computes the current value and period range for every
// configured cross-asset ratio. A ratio whose inputs cannot be fetched is
// reported with its error set instead of dropping the whole summary.
func (f *Fetcher) GetRatioSummary(ctx context.Context, refresh bool) (*models.RatioSummary, error) {
	if refresh {
		f.cache.Invalidate("ratios:summary")
	} else if cached, ok := f.cache.Get("ratios:summary"); ok {
		return cached.(*models.RatioSummary), nil
	}

	summary := &models.RatioSummary{Timestamp: time.Now().UTC()}
	for _, def := range f.cfg.Markets.Ratios {
		rec := models.RatioRecord{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Unit:        def.Unit,
			PeriodLabel: periodLabel(def.Period),
		}
		_, values, err := f.computeRatio(ctx, def)
		if err != nil {
			f.log.WithError(err).WithField("ratio", def.ID).Warn("ratio failed")
			rec.Error = err.Error()
		} else {
			rec.Current = values[len(values)-1]
			rec.RangeHigh, rec.RangeLow = seriesRange(values)
		}
		summary.Ratios = append(summary.Ratios, rec)
	}
	if len(summary.Ratios) == 0 {
		return nil, fmt.Errorf("no ratios configured")
	}

	f.cache.SetWithTTL("ratios:summary", summary, 30*time.Minute)
	return summary, nil
}

// GetRatioHistory returns the monthly-resampled series for one ratio.
func (f *Fetcher) GetRatioHistory(ctx context.Context, id string, refresh bool) (*models.RatioHistory, error) {
	def, ok := f.ratioDef(id)
	if !ok {
		return nil, fmt.Errorf("unknown ratio %q", id)
	}

	cacheKey := "ratios:history:" + id
	if refresh {
		f.cache.Invalidate(cacheKey)
	} else if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.(*models.RatioHistory), nil
	}

	dates, values, err := f.computeRatio(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("ratio history %s: %w", id, err)
	}
	mDates, mValues := resampleMonthly(dates, values)

	hist := &models.RatioHistory{
		ID:          def.ID,
		Name:        def.Name,
		PeriodLabel: periodLabel(def.Period),
		Dates:       mDates,
		Values:      mValues,
	}
	f.cache.SetWithTTL(cacheKey, hist, 6*time.Hour)
	return hist, nil
}

// RatioDefinitions exposes the configured ratio metadata.
func (f *Fetcher) RatioDefinitions() []models.RatioRecord {
	var out []models.RatioRecord
	for _, def := range f.cfg.Markets.Ratios {
		out = append(out, models.RatioRecord{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Unit:        def.Unit,
			PeriodLabel: periodLabel(def.Period),
		})
	}
	return out
}

func (f *Fetcher) ratioDef(id string) (config.RatioDefinition, bool) {
	for _, def := range f.cfg.Markets.Ratios {
		if def.ID == id {
			return def, true
		}
	}
	return config.RatioDefinition{}, false
}

// computeRatio downloads both legs, aligns them on the union of their
// dates with forward then backward fill, and divides.
func (f *Fetcher) computeRatio(ctx context.Context, def config.RatioDefinition) ([]string, []float64, error) {
	numDates, numValues, err := f.history.GetHistory(ctx, def.Numerator, def.Period)
	if err != nil {
		return nil, nil, fmt.Errorf("numerator %s: %w", def.Numerator, err)
	}
	denDates, denValues, err := f.history.GetHistory(ctx, def.Denominator, def.Period)
	if err != nil {
		return nil, nil, fmt.Errorf("denominator %s: %w", def.Denominator, err)
	}

	num := toSeries(numDates, numValues)
	den := toSeries(denDates, denValues)

	dates := unionDates(numDates, denDates)
	numAligned := fillSeries(num, dates)
	denAligned := fillSeries(den, dates)

	var outDates []string
	var outValues []float64
	for i, d := range dates {
		n, dv := numAligned[i], denAligned[i]
		if dv == 0 || math.IsNaN(n) || math.IsNaN(dv) {
			continue
		}
		outDates = append(outDates, d)
		outValues = append(outValues, round4(n/dv))
	}
	if len(outValues) == 0 {
		return nil, nil, fmt.Errorf("ratio %s: no overlapping data", def.ID)
	}
	return outDates, outValues, nil
}

func toSeries(dates []string, values []float64) ratioSeries {
	s := make(ratioSeries, len(dates))
	for i, d := range dates {
		s[d] = values[i]
	}
	return s
}

func unionDates(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, d := range a {
		set[d] = true
	}
	for _, d := range b {
		set[d] = true
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// fillSeries samples s on the sorted date grid, carrying the last seen
// value forward and filling the leading gap backward from the first
// observation. Dates before any observation yield NaN only when the
// series is empty.
func fillSeries(s ratioSeries, dates []string) []float64 {
	out := make([]float64, len(dates))
	last := math.NaN()
	for i, d := range dates {
		if v, ok := s[d]; ok {
			last = v
		}
		out[i] = last
	}
	// backward fill the leading NaNs
	firstValid := math.NaN()
	for _, v := range out {
		if !math.IsNaN(v) {
			firstValid = v
			break
		}
	}
	for i := range out {
		if math.IsNaN(out[i]) {
			out[i] = firstValid
		} else {
			break
		}
	}
	return out
}

// resampleMonthly keeps the last observation of each calendar month.
func resampleMonthly(dates []string, values []float64) ([]string, []float64) {
	var outDates []string
	var outValues []float64
	for i, d := range dates {
		if len(d) < 7 {
			continue
		}
		month := d[:7]
		if len(outDates) > 0 && outDates[len(outDates)-1][:7] == month {
			outDates[len(outDates)-1] = d
			outValues[len(outValues)-1] = values[i]
			continue
		}
		outDates = append(outDates, d)
		outValues = append(outValues, values[i])
	}
	return outDates, outValues
}

func seriesRange(values []float64) (high, low float64) {
	high, low = values[0], values[0]
	for _, v := range values[1:] {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return high, low
}

func periodLabel(period string) string {
	switch period {
	case "max":
		return "All"
	case "20y":
		return "20Y"
	default:
		return period
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
