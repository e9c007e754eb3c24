package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wyhuang/marketdash/pkg/models"
)

// Yahoo implements quote, history, and earnings-date fetching from the
// Yahoo Finance public API. It is the primary source for every section;
// equities, indices, futures, and FX-style symbols all resolve here.
type Yahoo struct {
	baseURL string
	cache   *Cache
	limiter *RateLimiter
}

// NewYahoo creates a new Yahoo Finance data source.
func NewYahoo() *Yahoo {
	return &Yahoo{
		baseURL: "https://query1.finance.yahoo.com",
		cache:   NewCache(2 * time.Minute),
		limiter: NewRateLimiter(5, time.Second), // 5 req/s
	}
}

// NewYahooWithBaseURL creates a Yahoo source against a custom endpoint.
// Used by tests to point at an httptest server.
func NewYahooWithBaseURL(base string) *Yahoo {
	y := NewYahoo()
	y.baseURL = strings.TrimRight(base, "/")
	return y
}

// Name returns the data source name.
func (y *Yahoo) Name() string { return "Yahoo Finance" }

// --- Yahoo Finance API types ---

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuoteResult `json:"result"`
		Error  *yahooError        `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuoteResult struct {
	Symbol                     string  `json:"symbol"`
	ShortName                  string  `json:"shortName"`
	LongName                   string  `json:"longName"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketChange        float64 `json:"regularMarketChange"`
	RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
	RegularMarketOpen          float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	RegularMarketTime          int64   `json:"regularMarketTime"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *yahooError        `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type yahooSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			CalendarEvents struct {
				Earnings struct {
					EarningsDate []struct {
						Raw int64 `json:"raw"`
					} `json:"earningsDate"`
				} `json:"earnings"`
			} `json:"calendarEvents"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteSummary"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// --- Public methods ---

// GetQuote returns a near-real-time quote from Yahoo Finance.
func (y *Yahoo) GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	cacheKey := "quote:" + symbol
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.(*models.QuoteRecord), nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", y.baseURL, url.QueryEscape(symbol))
	var resp yahooQuoteResponse
	if err := y.fetchJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo API error: %s", resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("yahoo quote %s: %w", symbol, ErrSymbolNotFound)
	}

	r := resp.QuoteResponse.Result[0]
	if r.RegularMarketPrice == 0 {
		return nil, fmt.Errorf("yahoo quote %s: %w", symbol, ErrSymbolNotFound)
	}

	quote := &models.QuoteRecord{
		Symbol:        symbol,
		Name:          coalesce(r.LongName, r.ShortName, symbol),
		CurrentPrice:  round2(r.RegularMarketPrice),
		PreviousClose: round2(r.RegularMarketPreviousClose),
		Change:        round2(r.RegularMarketChange),
		ChangePercent: round2(r.RegularMarketChangePercent),
		Open:          round2(r.RegularMarketOpen),
		High:          round2(r.RegularMarketDayHigh),
		Low:           round2(r.RegularMarketDayLow),
		Volume:        r.RegularMarketVolume,
		Timestamp:     time.Now().UTC(),
	}

	// Some responses omit the precomputed change fields.
	if quote.Change == 0 && quote.PreviousClose > 0 && quote.CurrentPrice != quote.PreviousClose {
		quote.Change = round2(quote.CurrentPrice - quote.PreviousClose)
		quote.ChangePercent = round2(quote.Change / quote.PreviousClose * 100)
	}

	y.cache.Set(cacheKey, quote)
	return quote, nil
}

// GetHistory returns the daily close-price series for symbol over the given
// Yahoo range string (e.g. "1y", "6mo", "20y", "max").
func (y *Yahoo) GetHistory(ctx context.Context, symbol, rng string) ([]string, []float64, error) {
	cacheKey := "hist:" + symbol + ":" + rng
	if cached, ok := y.cache.Get(cacheKey); ok {
		h := cached.(*models.StockHistory)
		return h.Dates, h.Values, nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d",
		y.baseURL, url.PathEscape(symbol), url.QueryEscape(rng))
	var resp yahooChartResponse
	if err := y.fetchJSON(ctx, u, &resp); err != nil {
		return nil, nil, fmt.Errorf("yahoo history %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, nil, fmt.Errorf("yahoo API error: %s", resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil, fmt.Errorf("yahoo history %s: %w", symbol, ErrSymbolNotFound)
	}

	result := resp.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close

	var dates []string
	var values []float64
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		// Date-only keys so series from different time zones align.
		dates = append(dates, time.Unix(ts, 0).UTC().Format("2006-01-02"))
		values = append(values, round2(*closes[i]))
	}
	if len(dates) == 0 {
		return nil, nil, fmt.Errorf("yahoo history %s: no close data", symbol)
	}

	// Long-range series are immutable enough for a longer TTL.
	hist := &models.StockHistory{Symbol: symbol, Period: rng, Dates: dates, Values: values}
	y.cache.SetWithTTL(cacheKey, hist, 30*time.Minute)
	return dates, values, nil
}

// GetName returns the display name Yahoo reports for a symbol.
func (y *Yahoo) GetName(ctx context.Context, symbol string) (string, error) {
	q, err := y.GetQuote(ctx, symbol)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

// GetNextEarningsDate returns the next scheduled earnings date for the
// symbol inside the window [today, today+daysAhead], or ok=false when none.
func (y *Yahoo) GetNextEarningsDate(ctx context.Context, symbol string, daysAhead int, loc *time.Location) (time.Time, bool, error) {
	cacheKey := "earnings:" + symbol
	if cached, ok := y.cache.Get(cacheKey); ok {
		d := cached.(time.Time)
		if d.IsZero() {
			return time.Time{}, false, nil
		}
		return d, true, nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return time.Time{}, false, err
	}

	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=calendarEvents",
		y.baseURL, url.PathEscape(symbol))
	var resp yahooSummaryResponse
	if err := y.fetchJSON(ctx, u, &resp); err != nil {
		return time.Time{}, false, fmt.Errorf("yahoo earnings %s: %w", symbol, err)
	}
	if resp.QuoteSummary.Error != nil || len(resp.QuoteSummary.Result) == 0 {
		y.cache.SetWithTTL(cacheKey, time.Time{}, 6*time.Hour)
		return time.Time{}, false, nil
	}

	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := today.AddDate(0, 0, daysAhead)

	var next time.Time
	for _, ed := range resp.QuoteSummary.Result[0].CalendarEvents.Earnings.EarningsDate {
		d := time.Unix(ed.Raw, 0).In(loc)
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		if day.Before(today) || day.After(end) {
			continue
		}
		if next.IsZero() || day.Before(next) {
			next = day
		}
	}
	y.cache.SetWithTTL(cacheKey, next, 6*time.Hour)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// fetchJSON GETs a URL and decodes the JSON body into v.
func (y *Yahoo) fetchJSON(ctx context.Context, url string, v any) error {
	body, _, err := doGet(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// coalesce returns the first non-empty string.
func coalesce(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// round2 rounds to two decimal places.
func round2(f float64) float64 {
	if f < 0 {
		return float64(int64(f*100-0.5)) / 100
	}
	return float64(int64(f*100+0.5)) / 100
}
