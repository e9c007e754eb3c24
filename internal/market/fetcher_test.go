package market

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

type fakeSource struct {
	name   string
	quotes map[string]*models.QuoteRecord
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	f.calls++
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, datasource.ErrSymbolNotFound)
	}
	cp := *q
	return &cp, nil
}

type fakeHistory struct {
	series map[string]struct {
		dates  []string
		values []float64
	}
}

func (f *fakeHistory) GetHistory(ctx context.Context, symbol, rng string) ([]string, []float64, error) {
	s, ok := f.series[symbol]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", symbol, datasource.ErrSymbolNotFound)
	}
	return s.dates, s.values, nil
}

type fakeEarnings struct {
	dates map[string]time.Time
}

func (f *fakeEarnings) GetNextEarningsDate(ctx context.Context, symbol string, daysAhead int, loc *time.Location) (time.Time, bool, error) {
	d, ok := f.dates[symbol]
	return d, ok, nil
}

func quote(symbol string, price float64) *models.QuoteRecord {
	return &models.QuoteRecord{
		Symbol:        symbol,
		Name:          symbol,
		CurrentPrice:  price,
		PreviousClose: price - 1,
		Change:        1,
		ChangePercent: 0.5,
		Timestamp:     time.Now().UTC(),
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestNormalizeSections(t *testing.T) {
	got := normalizeSections([]string{"us_indices", "metals", "bogus", "us_indices"})
	want := []string{"us_indices", "metals_futures"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
	if all := normalizeSections(nil); len(all) != 7 {
		t.Errorf("nil selects all sections, got %d", len(all))
	}
}

func TestFetchSectionFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markets.USIndices = map[string]string{"^GSPC": "S&P 500", "^DJI": "Dow Jones"}

	primary := &fakeSource{name: "p", quotes: map[string]*models.QuoteRecord{
		"^GSPC": quote("^GSPC", 5200),
	}}
	fallback := &fakeSource{name: "f", quotes: map[string]*models.QuoteRecord{
		"^DJI": quote("^DJI", 39000),
	}}
	f := newFetcherForTest(cfg, []quoteFetcher{primary, fallback}, nil, nil, nil)

	payload, skipped := f.fetchSection(context.Background(), models.SectionUSIndices)
	if len(payload) != 2 {
		t.Fatalf("got %d quotes, want 2 (skipped: %v)", len(payload), skipped)
	}
	if payload["^DJI"].CurrentPrice != 39000 {
		t.Errorf("fallback quote missing")
	}
	if payload["^GSPC"].DisplayName != "S&P 500" {
		t.Errorf("display name = %q", payload["^GSPC"].DisplayName)
	}
	if len(skipped) != 0 {
		t.Errorf("unexpected skips: %v", skipped)
	}
}

func TestFetchSectionSkipsUnresolvable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markets.USStocks = map[string]string{"AAPL": "Apple", "GONE": "Delisted Co"}

	src := &fakeSource{name: "p", quotes: map[string]*models.QuoteRecord{
		"AAPL": quote("AAPL", 230),
	}}
	f := newFetcherForTest(cfg, []quoteFetcher{src}, nil, nil, nil)

	payload, skipped := f.fetchSection(context.Background(), models.SectionUSStocks)
	if len(payload) != 1 {
		t.Fatalf("got %d quotes, want 1", len(payload))
	}
	if len(skipped) != 1 || skipped[0].Symbol != "GONE" {
		t.Fatalf("skipped = %v, want GONE", skipped)
	}
	if skipped[0].Name != "Delisted Co" {
		t.Errorf("skip keeps configured name, got %q", skipped[0].Name)
	}
}

func TestGetMarketSummarySectionFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markets.USIndices = map[string]string{"^GSPC": "S&P 500"}
	cfg.Markets.Crypto = map[string]string{"BTC-USD": "Bitcoin"}

	equity := &fakeSource{name: "e", quotes: map[string]*models.QuoteRecord{
		"^GSPC": quote("^GSPC", 5200),
	}}
	crypto := &fakeSource{name: "c", quotes: map[string]*models.QuoteRecord{
		"BTC-USD": quote("BTC-USD", 64000),
	}}
	f := newFetcherForTest(cfg, []quoteFetcher{equity}, []quoteFetcher{crypto}, nil, nil)

	sum, err := f.GetMarketSummary(context.Background(), []string{"us_indices", "crypto"}, false)
	if err != nil {
		t.Fatalf("GetMarketSummary: %v", err)
	}
	if sum.USIndices == nil || sum.Crypto == nil {
		t.Fatal("requested sections missing")
	}
	if sum.USStocks != nil || sum.MetalsFutures != nil {
		t.Error("unrequested sections present")
	}
	if sum.Crypto["BTC-USD"].CurrentPrice != 64000 {
		t.Errorf("crypto quote wrong")
	}
}

func TestGetMarketSummaryCachesAndRefreshes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markets.USIndices = map[string]string{"^GSPC": "S&P 500"}

	src := &fakeSource{name: "e", quotes: map[string]*models.QuoteRecord{
		"^GSPC": quote("^GSPC", 5200),
	}}
	f := newFetcherForTest(cfg, []quoteFetcher{src}, nil, nil, nil)
	ctx := context.Background()

	if _, err := f.GetMarketSummary(ctx, []string{"us_indices"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := f.GetMarketSummary(ctx, []string{"us_indices"}, false); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("second call must hit the cache, got %d fetches", src.calls)
	}
	if _, err := f.GetMarketSummary(ctx, []string{"us_indices"}, true); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("refresh must bypass cache, got %d fetches", src.calls)
	}
}

func TestEarningsDecoration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markets.USStocks = map[string]string{"AAPL": "Apple", "MSFT": "Microsoft"}

	src := &fakeSource{name: "e", quotes: map[string]*models.QuoteRecord{
		"AAPL": quote("AAPL", 230),
		"MSFT": quote("MSFT", 420),
	}}
	soon := time.Now().In(utils.Eastern).AddDate(0, 0, 3)
	earn := &fakeEarnings{dates: map[string]time.Time{"AAPL": soon}}
	f := newFetcherForTest(cfg, []quoteFetcher{src}, nil, nil, earn)

	sum, err := f.GetMarketSummary(context.Background(), []string{"us_stocks"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.EarningsUpcoming) != 1 {
		t.Fatalf("earnings entries = %d, want 1", len(sum.EarningsUpcoming))
	}
	e := sum.EarningsUpcoming[0]
	if e.Symbol != "AAPL" || e.DaysUntil != 3 {
		t.Errorf("entry = %+v", e)
	}
	if sum.USStocks["AAPL"].EarningsDate == "" {
		t.Error("quote not decorated with earnings date")
	}
	if sum.USStocks["MSFT"].EarningsDate != "" {
		t.Error("quote without earnings must stay undecorated")
	}
}

func TestComputeRatioAlignment(t *testing.T) {
	cfg := testConfig(t)
	hist := &fakeHistory{series: map[string]struct {
		dates  []string
		values []float64
	}{
		// GC trades a day SI does not; SI's value must carry forward.
		"GC=F": {dates: []string{"2024-01-02", "2024-01-03", "2024-01-04"}, values: []float64{2000, 2010, 2020}},
		"SI=F": {dates: []string{"2024-01-02", "2024-01-04"}, values: []float64{25, 25.25}},
	}}
	f := newFetcherForTest(cfg, nil, nil, hist, nil)

	def := config.RatioDefinition{ID: "gold_silver", Numerator: "GC=F", Denominator: "SI=F", Period: "20y"}
	dates, values, err := f.computeRatio(context.Background(), def)
	if err != nil {
		t.Fatalf("computeRatio: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("got %d points, want 3", len(values))
	}
	if values[0] != 80 {
		t.Errorf("values[0] = %v, want 80", values[0])
	}
	// 2010 / 25 (forward-filled)
	if values[1] != 80.4 {
		t.Errorf("values[1] = %v, want 80.4", values[1])
	}
	if dates[2] != "2024-01-04" {
		t.Errorf("dates[2] = %q", dates[2])
	}
}

func TestResampleMonthly(t *testing.T) {
	dates := []string{"2024-01-02", "2024-01-31", "2024-02-01", "2024-02-29", "2024-03-05"}
	values := []float64{1, 2, 3, 4, 5}
	d, v := resampleMonthly(dates, values)
	if len(d) != 3 {
		t.Fatalf("got %d months, want 3", len(d))
	}
	if d[0] != "2024-01-31" || v[0] != 2 {
		t.Errorf("january = %s/%v, want last observation", d[0], v[0])
	}
	if d[1] != "2024-02-29" || v[1] != 4 {
		t.Errorf("february = %s/%v", d[1], v[1])
	}
}

func TestGetRatioHistoryUnknown(t *testing.T) {
	f := newFetcherForTest(testConfig(t), nil, nil, &fakeHistory{}, nil)
	if _, err := f.GetRatioHistory(context.Background(), "nope", false); err == nil {
		t.Error("expected error for unknown ratio id")
	}
}

type countingHistory struct {
	fakeHistory
	calls int
}

func (c *countingHistory) GetHistory(ctx context.Context, symbol, rng string) ([]string, []float64, error) {
	c.calls++
	return c.fakeHistory.GetHistory(ctx, symbol, rng)
}

func TestGetRatioHistoryRefreshBypassesCache(t *testing.T) {
	cfg := testConfig(t)
	hist := &countingHistory{fakeHistory: fakeHistory{series: map[string]struct {
		dates  []string
		values []float64
	}{
		"GC=F": {dates: []string{"2024-01-02", "2024-01-03"}, values: []float64{2000, 2010}},
		"SI=F": {dates: []string{"2024-01-02", "2024-01-03"}, values: []float64{25, 25.25}},
	}}}
	f := newFetcherForTest(cfg, nil, nil, hist, nil)
	ctx := context.Background()

	id := cfg.Markets.Ratios[0].ID
	if _, err := f.GetRatioHistory(ctx, id, false); err != nil {
		t.Fatal(err)
	}
	first := hist.calls
	if _, err := f.GetRatioHistory(ctx, id, false); err != nil {
		t.Fatal(err)
	}
	if hist.calls != first {
		t.Errorf("second call must hit the cache, got %d fetches", hist.calls)
	}
	if _, err := f.GetRatioHistory(ctx, id, true); err != nil {
		t.Fatal(err)
	}
	if hist.calls != 2*first {
		t.Errorf("refresh must recompute, got %d fetches after refresh", hist.calls)
	}
}
