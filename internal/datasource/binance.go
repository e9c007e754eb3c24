package datasource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/wyhuang/marketdash/pkg/models"
)

// cryptoNames gives spot pairs a human label; Binance stats carry none.
var cryptoNames = map[string]string{
	"BTC-USD": "Bitcoin",
	"ETH-USD": "Ethereum",
	"SOL-USD": "Solana",
	"BNB-USD": "BNB",
	"XRP-USD": "XRP",
}

// Binance serves crypto quotes from the Binance 24h ticker statistics.
// Symbols use the dashboard's "BTC-USD" form and are mapped to Binance
// USDT spot pairs.
type Binance struct {
	client *binance.Client
	cache  *Cache
}

// NewBinance creates a Binance data source. Public market data needs no
// credentials, so empty keys are fine.
func NewBinance(apiKey, secretKey string) *Binance {
	return &Binance{
		client: binance.NewClient(apiKey, secretKey),
		cache:  NewCache(1 * time.Minute),
	}
}

// Name returns the data source name.
func (b *Binance) Name() string { return "Binance" }

// pairFor converts "BTC-USD" to the Binance spot pair "BTCUSDT".
func pairFor(symbol string) string {
	base := symbol
	if i := strings.Index(symbol, "-"); i > 0 {
		base = symbol[:i]
	}
	return strings.ToUpper(base) + "USDT"
}

// GetQuote fetches 24h rolling statistics for a crypto symbol.
func (b *Binance) GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	cacheKey := "quote:" + symbol
	if cached, ok := b.cache.Get(cacheKey); ok {
		return cached.(*models.QuoteRecord), nil
	}

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(pairFor(symbol)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance stats %s: %w", symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance stats %s: %w", symbol, ErrSymbolNotFound)
	}

	s := stats[0]
	last := parseFloat(s.LastPrice)
	if last == 0 {
		return nil, fmt.Errorf("binance stats %s: %w", symbol, ErrSymbolNotFound)
	}

	name := symbol
	if n, ok := cryptoNames[symbol]; ok {
		name = n
	}
	quote := &models.QuoteRecord{
		Symbol:        symbol,
		Name:          name,
		CurrentPrice:  round2(last),
		PreviousClose: round2(parseFloat(s.PrevClosePrice)),
		Change:        round2(parseFloat(s.PriceChange)),
		ChangePercent: round2(parseFloat(s.PriceChangePercent)),
		Open:          round2(parseFloat(s.OpenPrice)),
		High:          round2(parseFloat(s.HighPrice)),
		Low:           round2(parseFloat(s.LowPrice)),
		Volume:        int64(parseFloat(s.Volume)),
		Timestamp:     time.Now().UTC(),
	}
	b.cache.Set(cacheKey, quote)
	return quote, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
