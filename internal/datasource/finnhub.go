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

// finnhubSymbols maps Yahoo-style tickers to Finnhub's notation. Symbols
// missing from the map pass through unchanged.
var finnhubSymbols = map[string]string{
	"^GSPC": ".SPX",
	"^DJI":  ".DJI",
	"^IXIC": ".IXIC",
	"^SOX":  ".SOX",
	"BRK.B": "BRK-B",
}

// Finnhub is a fallback quote source used when Yahoo returns nothing for a
// symbol. It needs an API token and covers US equities and major indices.
type Finnhub struct {
	baseURL string
	token   string
	cache   *Cache
	limiter *RateLimiter
}

// NewFinnhub creates a Finnhub data source. An empty token disables it;
// GetQuote then always reports the symbol as unavailable.
func NewFinnhub(token string) *Finnhub {
	return &Finnhub{
		baseURL: "https://finnhub.io/api/v1",
		token:   token,
		cache:   NewCache(2 * time.Minute),
		limiter: NewRateLimiter(1, time.Second), // free tier: 60 req/min
	}
}

// NewFinnhubWithBaseURL creates a Finnhub source against a custom endpoint.
func NewFinnhubWithBaseURL(base, token string) *Finnhub {
	f := NewFinnhub(token)
	f.baseURL = strings.TrimRight(base, "/")
	return f
}

// Name returns the data source name.
func (f *Finnhub) Name() string { return "Finnhub" }

// Enabled reports whether a token was configured.
func (f *Finnhub) Enabled() bool { return f.token != "" }

type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// GetQuote fetches a real-time quote from Finnhub.
func (f *Finnhub) GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	if !f.Enabled() {
		return nil, fmt.Errorf("finnhub: no token: %w", ErrSymbolNotFound)
	}

	cacheKey := "quote:" + symbol
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.(*models.QuoteRecord), nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	mapped := symbol
	if m, ok := finnhubSymbols[symbol]; ok {
		mapped = m
	}

	u := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		f.baseURL, url.QueryEscape(mapped), url.QueryEscape(f.token))
	body, _, err := doGet(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	defer body.Close()

	var q finnhubQuote
	if err := json.NewDecoder(body).Decode(&q); err != nil {
		return nil, fmt.Errorf("finnhub quote %s: decode: %w", symbol, err)
	}
	// Finnhub returns an all-zero body for unknown symbols.
	if q.Current == 0 && q.PreviousClose == 0 {
		return nil, fmt.Errorf("finnhub quote %s: %w", symbol, ErrSymbolNotFound)
	}

	quote := &models.QuoteRecord{
		Symbol:        symbol,
		Name:          symbol,
		CurrentPrice:  round2(q.Current),
		PreviousClose: round2(q.PreviousClose),
		Change:        round2(q.Change),
		ChangePercent: round2(q.ChangePercent),
		Open:          round2(q.Open),
		High:          round2(q.High),
		Low:           round2(q.Low),
		Timestamp:     time.Now().UTC(),
	}
	f.cache.Set(cacheKey, quote)
	return quote, nil
}
