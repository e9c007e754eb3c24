package news

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
)

// englishKeywords broadens the volume scan to US coverage.
var englishKeywords = []string{"stock", "semiconductor", "technology", "earnings", "market"}

// Analyzer ranks tracked companies by how often recent headlines mention
// them.
type Analyzer struct {
	cfg    *config.Config
	source FeedSource
	cache  *datasource.Cache
	log    *logrus.Entry
}

// NewAnalyzer creates a volume analyzer over the given feed source.
func NewAnalyzer(cfg *config.Config, source FeedSource) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		source: source,
		cache:  datasource.NewCache(10 * time.Minute),
		log:    logger.Component("news.volume"),
	}
}

// companyUniverse merges every symbol table the dashboard tracks.
func (a *Analyzer) companyUniverse() map[string]string {
	m := a.cfg.Markets
	out := make(map[string]string)
	for _, table := range []map[string]string{m.USIndices, m.USStocks, m.TWMarkets, m.International} {
		for sym, name := range table {
			out[sym] = name
		}
	}
	return out
}

// GetVolumeSummary counts company mentions in the configured lookback
// window and returns the top N with their headlines attached. Feed errors
// degrade to fewer sources rather than failing the summary.
func (a *Analyzer) GetVolumeSummary(ctx context.Context, refresh bool) (*models.NewsVolumeSummary, error) {
	const cacheKey = "volume"
	if refresh {
		a.cache.Invalidate(cacheKey)
	} else if cached, ok := a.cache.Get(cacheKey); ok {
		return cached.(*models.NewsVolumeSummary), nil
	}

	window := time.Duration(a.cfg.News.WindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}

	var items []models.NewsItem
	for _, kw := range a.cfg.News.Keywords {
		got, err := a.source.Search(ctx, []string{kw}, "zh-TW", "TW", window)
		if err != nil {
			a.log.WithError(err).WithField("keyword", kw).Warn("keyword search failed")
			continue
		}
		items = append(items, got...)
	}
	for _, kw := range englishKeywords {
		got, err := a.source.Search(ctx, []string{kw}, "en", "US", window)
		if err != nil {
			a.log.WithError(err).WithField("keyword", kw).Warn("keyword search failed")
			continue
		}
		items = append(items, got...)
	}
	items = dedupeItems(items)

	universe := a.companyUniverse()
	counts := make(map[string]int)
	newsBySymbol := make(map[string][]models.NewsItem)
	seenLinks := make(map[string]map[string]bool)

	maxPer := a.cfg.News.MaxPerCompany
	if maxPer <= 0 {
		maxPer = 50
	}

	for _, n := range items {
		for _, symbol := range extractCompanies(n.Title, universe) {
			counts[symbol]++
			if seenLinks[symbol] == nil {
				seenLinks[symbol] = make(map[string]bool)
			}
			if n.Link != "" && seenLinks[symbol][n.Link] {
				continue
			}
			if len(newsBySymbol[symbol]) < maxPer {
				newsBySymbol[symbol] = append(newsBySymbol[symbol], n)
				if n.Link != "" {
					seenLinks[symbol][n.Link] = true
				}
			}
		}
	}

	type ranked struct {
		symbol string
		count  int
	}
	order := make([]ranked, 0, len(counts))
	for sym, c := range counts {
		order = append(order, ranked{sym, c})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].symbol < order[j].symbol
	})

	topN := a.cfg.News.TopCompanies
	if topN <= 0 {
		topN = 20
	}
	if len(order) > topN {
		order = order[:topN]
	}

	summary := &models.NewsVolumeSummary{
		TopCompanies: []models.CompanyVolume{},
		Period:       window.String(),
		Timestamp:    time.Now().UTC(),
	}
	for i, r := range order {
		name := universe[r.symbol]
		if name == "" {
			name = r.symbol
		}
		summary.TopCompanies = append(summary.TopCompanies, models.CompanyVolume{
			Symbol: r.symbol,
			Name:   name,
			Count:  r.count,
			Rank:   i + 1,
			News:   newsBySymbol[r.symbol],
		})
	}
	summary.TotalCompanies = len(summary.TopCompanies)

	a.cache.Set(cacheKey, summary)
	return summary, nil
}

// extractCompanies lists the tracked symbols a headline mentions, by
// configured name or by bare ticker (exchange suffix stripped).
func extractCompanies(text string, universe map[string]string) []string {
	lower := strings.ToLower(text)
	var found []string
	for symbol, name := range universe {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			found = append(found, symbol)
			continue
		}
		base := symbol
		if i := strings.Index(symbol, "."); i > 0 {
			base = symbol[:i]
		}
		// Bare one or two letter tickers match too much prose.
		if len(base) >= 3 && strings.Contains(lower, strings.ToLower(base)) {
			found = append(found, symbol)
		}
	}
	sort.Strings(found)
	return found
}

// dedupeItems drops repeated headlines by link, falling back to title.
func dedupeItems(items []models.NewsItem) []models.NewsItem {
	seen := make(map[string]bool, len(items))
	var out []models.NewsItem
	for _, n := range items {
		key := n.Link
		if key == "" {
			key = n.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
