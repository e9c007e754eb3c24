// Package market assembles the dashboard market summary. It fans out to the
// quote sources per section, applies source fallback, decorates US and
// Taiwan stocks with upcoming earnings dates, and caches assembled
// summaries per section set.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

// earningsWindowDays bounds how far ahead earnings decoration looks.
const earningsWindowDays = 14

// sectionConcurrency caps in-flight symbol fetches per section.
const sectionConcurrency = 4

// quoteFetcher is the subset of a source the fetcher needs. Sources that
// cannot serve a symbol return datasource.ErrSymbolNotFound.
type quoteFetcher interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error)
}

// historyFetcher serves daily close series. Only Yahoo implements it.
type historyFetcher interface {
	GetHistory(ctx context.Context, symbol, rng string) ([]string, []float64, error)
}

// earningsFetcher resolves the next scheduled earnings date for a symbol.
type earningsFetcher interface {
	GetNextEarningsDate(ctx context.Context, symbol string, daysAhead int, loc *time.Location) (time.Time, bool, error)
}

// Fetcher builds market summaries from the configured sources.
type Fetcher struct {
	cfg *config.Config
	log *logrus.Entry

	history  historyFetcher
	earnings earningsFetcher

	// sources tried in order per section; first hit wins.
	equitySources []quoteFetcher
	cryptoSources []quoteFetcher

	cache *datasource.Cache
}

// NewFetcher wires the quote sources from configuration.
func NewFetcher(cfg *config.Config) *Fetcher {
	yahoo := datasource.NewYahoo()

	equity := []quoteFetcher{yahoo}
	if cfg.Sources.FinnhubKey != "" {
		equity = append(equity, datasource.NewFinnhub(cfg.Sources.FinnhubKey))
	}

	var crypto []quoteFetcher
	if cfg.Sources.UseBinance {
		crypto = append(crypto, datasource.NewBinance("", ""))
	}
	if cfg.Sources.UseDeribit {
		crypto = append(crypto, datasource.NewDeribit())
	}
	crypto = append(crypto, yahoo)

	ttl := time.Duration(cfg.Markets.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &Fetcher{
		cfg:           cfg,
		log:           logger.Component("market"),
		history:       yahoo,
		earnings:      yahoo,
		equitySources: equity,
		cryptoSources: crypto,
		cache:         datasource.NewCache(ttl),
	}
}

// newFetcherForTest builds a fetcher around injected sources.
func newFetcherForTest(cfg *config.Config, equity, crypto []quoteFetcher, hist historyFetcher, earn earningsFetcher) *Fetcher {
	return &Fetcher{
		cfg:           cfg,
		log:           logger.Component("market"),
		history:       hist,
		earnings:      earn,
		equitySources: equity,
		cryptoSources: crypto,
		cache:         datasource.NewCache(2 * time.Minute),
	}
}

// normalizeSections resolves aliases and drops unknown names. An empty or
// nil input selects every section.
func normalizeSections(sections []string) []string {
	all := []string{
		models.SectionUSIndices, models.SectionUSStocks, models.SectionTWMarkets,
		models.SectionInternational, models.SectionMetalsFutures,
		models.SectionCrypto, models.SectionRatios,
	}
	if len(sections) == 0 {
		return all
	}
	known := make(map[string]bool, len(all))
	for _, s := range all {
		known[s] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range sections {
		s = strings.TrimSpace(s)
		if s == "metals" {
			s = models.SectionMetalsFutures
		}
		if known[s] && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// GetMarketSummary assembles quotes for the requested sections. Sections
// that fail entirely are simply absent from the result; individual symbols
// that fail every source are listed under skipped_symbols instead of
// aborting their section. refresh bypasses and replaces the cached summary.
func (f *Fetcher) GetMarketSummary(ctx context.Context, sections []string, refresh bool) (*models.MarketSummary, error) {
	wanted := normalizeSections(sections)
	cacheKey := "summary:" + strings.Join(wanted, ",")

	if refresh {
		f.cache.Invalidate(cacheKey)
	} else if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.(*models.MarketSummary), nil
	}

	summary := &models.MarketSummary{
		SkippedSymbols: []models.SkippedSymbol{},
		Timestamp:      time.Now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan sectionResult, len(wanted))

	for _, section := range wanted {
		section := section
		g.Go(func() error {
			switch section {
			case models.SectionRatios:
				rs, err := f.GetRatioSummary(gctx, refresh)
				if err != nil {
					f.log.WithError(err).WithField("section", section).Warn("section failed")
					return nil
				}
				results <- sectionResult{section: section, ratios: rs}
			default:
				payload, skipped := f.fetchSection(gctx, section)
				results <- sectionResult{section: section, payload: payload, skipped: skipped}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for r := range results {
		summary.SkippedSymbols = append(summary.SkippedSymbols, r.skipped...)
		switch r.section {
		case models.SectionUSIndices:
			summary.USIndices = r.payload
		case models.SectionUSStocks:
			summary.USStocks = r.payload
		case models.SectionTWMarkets:
			summary.TWMarkets = r.payload
		case models.SectionInternational:
			summary.International = r.payload
		case models.SectionMetalsFutures:
			summary.MetalsFutures = r.payload
		case models.SectionCrypto:
			summary.Crypto = r.payload
		case models.SectionRatios:
			summary.Ratios = r.ratios
		}
	}

	if summary.MetalsFutures != nil {
		now := utils.NowET()
		summary.MetalsSession = utils.ComexSession(now)
		summary.MetalsSessionET = now.Format("2006-01-02 15:04:05 MST")
	}
	if summary.USStocks != nil {
		summary.EarningsUpcoming = f.decorateEarnings(ctx, summary.USStocks, utils.Eastern)
	}
	if summary.TWMarkets != nil {
		summary.EarningsUpcomingTW = f.decorateEarnings(ctx, summary.TWMarkets, utils.Taipei)
	}

	sort.Slice(summary.SkippedSymbols, func(i, j int) bool {
		a, b := summary.SkippedSymbols[i], summary.SkippedSymbols[j]
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.Symbol < b.Symbol
	})

	f.cache.Set(cacheKey, summary)
	return summary, nil
}

type sectionResult struct {
	section string
	payload models.SectionPayload
	skipped []models.SkippedSymbol
	ratios  *models.RatioSummary
}

// fetchSection fetches every configured symbol of one section concurrently.
func (f *Fetcher) fetchSection(ctx context.Context, section string) (models.SectionPayload, []models.SkippedSymbol) {
	symbols := f.cfg.Markets.SectionSymbols(section)
	if len(symbols) == 0 {
		return nil, nil
	}

	sources := f.equitySources
	if section == models.SectionCrypto {
		sources = f.cryptoSources
	}

	type symResult struct {
		symbol string
		quote  *models.QuoteRecord
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sectionConcurrency)
	out := make(chan symResult, len(symbols))

	for symbol, name := range symbols {
		symbol, name := symbol, name
		g.Go(func() error {
			quote, err := f.fetchQuote(gctx, sources, symbol)
			if err != nil {
				f.log.WithError(err).WithFields(logrus.Fields{
					"symbol": symbol, "section": section,
				}).Warn("symbol skipped")
				out <- symResult{symbol: symbol}
				return nil
			}
			quote.DisplayName = name
			if section == models.SectionMetalsFutures {
				quote.Session = utils.ComexSession(utils.NowET())
			}
			out <- symResult{symbol: symbol, quote: quote}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	close(out)

	payload := make(models.SectionPayload)
	var skipped []models.SkippedSymbol
	for r := range out {
		if r.quote == nil {
			skipped = append(skipped, models.SkippedSymbol{
				Symbol:  r.symbol,
				Section: section,
				Name:    symbols[r.symbol],
			})
			continue
		}
		payload[r.symbol] = *r.quote
	}
	if len(payload) == 0 {
		return nil, skipped
	}
	return payload, skipped
}

// GetQuote resolves one symbol through the source chains, equities first
// with crypto sources as the tail so BTC-USD style symbols still resolve.
func (f *Fetcher) GetQuote(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	sources := make([]quoteFetcher, 0, len(f.equitySources)+len(f.cryptoSources))
	sources = append(sources, f.equitySources...)
	sources = append(sources, f.cryptoSources...)
	return f.fetchQuote(ctx, sources, symbol)
}

// fetchQuote tries each source in order until one resolves the symbol.
func (f *Fetcher) fetchQuote(ctx context.Context, sources []quoteFetcher, symbol string) (*models.QuoteRecord, error) {
	var lastErr error
	for _, src := range sources {
		quote, err := src.GetQuote(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = datasource.ErrSymbolNotFound
	}
	return nil, lastErr
}

// decorateEarnings stamps earnings dates onto the payload's quotes and
// returns a date-sorted list of the entries found. Lookup failures are
// ignored; decoration is best effort.
func (f *Fetcher) decorateEarnings(ctx context.Context, payload models.SectionPayload, loc *time.Location) []models.EarningsEntry {
	if f.earnings == nil {
		return nil
	}
	var entries []models.EarningsEntry
	for symbol, quote := range payload {
		date, ok, err := f.earnings.GetNextEarningsDate(ctx, symbol, earningsWindowDays, loc)
		if err != nil || !ok {
			continue
		}
		ds := utils.FormatDate(date)
		days, err := utils.DaysUntil(ds, loc)
		if err != nil {
			continue
		}
		quote.EarningsDate = ds
		quote.EarningsDaysUntil = days
		payload[symbol] = quote
		entries = append(entries, models.EarningsEntry{
			Symbol:    symbol,
			Name:      quote.Label(),
			Date:      ds,
			DaysUntil: days,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries
}

// GetStockHistory returns the daily close series for one symbol.
func (f *Fetcher) GetStockHistory(ctx context.Context, symbol, period string) (*models.StockHistory, error) {
	if period == "" {
		period = "1y"
	}
	dates, values, err := f.history.GetHistory(ctx, symbol, period)
	if err != nil {
		return nil, fmt.Errorf("stock history %s: %w", symbol, err)
	}
	return &models.StockHistory{
		Symbol: symbol,
		Period: period,
		Dates:  dates,
		Values: values,
	}, nil
}
