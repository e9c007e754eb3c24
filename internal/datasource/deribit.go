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

// Deribit is a fallback crypto source reading public perpetual-future
// tickers. Only the currencies Deribit lists perpetuals for resolve here.
type Deribit struct {
	baseURL string
	cache   *Cache
}

// NewDeribit creates a Deribit data source.
func NewDeribit() *Deribit {
	return &Deribit{
		baseURL: "https://www.deribit.com/api/v2",
		cache:   NewCache(1 * time.Minute),
	}
}

// NewDeribitWithBaseURL creates a Deribit source against a custom endpoint.
func NewDeribitWithBaseURL(base string) *Deribit {
	d := NewDeribit()
	d.baseURL = strings.TrimRight(base, "/")
	return d
}

// Name returns the data source name.
func (d *Deribit) Name() string { return "Deribit" }

type deribitTicker struct {
	Result struct {
		InstrumentName string  `json:"instrument_name"`
		LastPrice      float64 `json:"last_price"`
		MarkPrice      float64 `json:"mark_price"`
		Stats          struct {
			High        float64 `json:"high"`
			Low         float64 `json:"low"`
			PriceChange float64 `json:"price_change"` // percent over 24h
			Volume      float64 `json:"volume"`
		} `json:"stats"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// instrumentFor converts "BTC-USD" to the perpetual name "BTC-PERPETUAL".
func instrumentFor(symbol string) string {
	base := symbol
	if i := strings.Index(symbol, "-"); i > 0 {
		base = symbol[:i]
	}
	return strings.ToUpper(base) + "-PERPETUAL"
}

// GetQuote fetches the public ticker for a currency's perpetual future.
func (d *Deribit) GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	cacheKey := "quote:" + symbol
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached.(*models.QuoteRecord), nil
	}

	u := fmt.Sprintf("%s/public/ticker?instrument_name=%s",
		d.baseURL, url.QueryEscape(instrumentFor(symbol)))
	body, _, err := doGet(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, fmt.Errorf("deribit ticker %s: %w", symbol, err)
	}
	defer body.Close()

	var t deribitTicker
	if err := json.NewDecoder(body).Decode(&t); err != nil {
		return nil, fmt.Errorf("deribit ticker %s: decode: %w", symbol, err)
	}
	if t.Error != nil {
		return nil, fmt.Errorf("deribit ticker %s: %s: %w", symbol, t.Error.Message, ErrSymbolNotFound)
	}

	last := t.Result.LastPrice
	if last == 0 {
		last = t.Result.MarkPrice
	}
	if last == 0 {
		return nil, fmt.Errorf("deribit ticker %s: %w", symbol, ErrSymbolNotFound)
	}

	pct := t.Result.Stats.PriceChange
	prev := last
	if pct != 0 {
		prev = last / (1 + pct/100)
	}
	name := symbol
	if n, ok := cryptoNames[symbol]; ok {
		name = n
	}
	quote := &models.QuoteRecord{
		Symbol:        symbol,
		Name:          name,
		CurrentPrice:  round2(last),
		PreviousClose: round2(prev),
		Change:        round2(last - prev),
		ChangePercent: round2(pct),
		High:          round2(t.Result.Stats.High),
		Low:           round2(t.Result.Stats.Low),
		Volume:        int64(t.Result.Stats.Volume),
		Timestamp:     time.Now().UTC(),
	}
	d.cache.Set(cacheKey, quote)
	return quote, nil
}
