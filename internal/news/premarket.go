package news

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/scmhub/calendar"
	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

// Premarket market identifiers.
const (
	MarketTaiwan = "taiwan"
	MarketUS     = "us"
)

// premarketWindow is how far before the open the brief looks.
const premarketWindow = 12 * time.Hour

var taiwanKeywords = []string{"台股", "盤前", "美股"}
var usKeywords = []string{"premarket", "stocks", "earnings"}

// Premarket assembles the pre-open news briefs. The reference time is the
// session's opening bell on the most recent trading day, resolved against
// the exchange calendar.
type Premarket struct {
	source FeedSource
	cache  *datasource.Cache
	log    *logrus.Entry
	now    func() time.Time

	calTW *calendar.Calendar
	calUS *calendar.Calendar
}

// NewPremarket creates a premarket brief builder.
func NewPremarket(source FeedSource) *Premarket {
	return &Premarket{
		source: source,
		cache:  datasource.NewCache(1 * time.Hour),
		log:    logger.Component("news.premarket"),
		now:    func() time.Time { return time.Now() },
		calTW:  calendar.GetCalendar("xtai"),
		calUS:  calendar.GetCalendar("xnys"),
	}
}

// isTradingDay consults the exchange calendar, degrading to a weekday
// check when the MIC is unknown to the library.
func (p *Premarket) isTradingDay(market string, t time.Time) bool {
	var cal *calendar.Calendar
	if market == MarketTaiwan {
		cal = p.calTW
	} else {
		cal = p.calUS
	}
	if cal != nil {
		return cal.IsBusinessDay(t)
	}
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

// referenceTime returns the opening bell of the most recent trading day:
// 08:30 Taipei for Taiwan, 09:30 ET for the US.
func (p *Premarket) referenceTime(market string) time.Time {
	var loc *time.Location
	var hour, minute int
	if market == MarketTaiwan {
		loc, hour, minute = utils.Taipei, 8, 30
	} else {
		loc, hour, minute = utils.Eastern, 9, 30
	}

	day := p.now().In(loc)
	for !p.isTradingDay(market, day) {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}

// GetBrief returns the premarket brief for one market. The news window is
// the 12 hours ending at the reference open.
func (p *Premarket) GetBrief(ctx context.Context, market string, refresh bool) (*models.PremarketBrief, error) {
	market = strings.ToLower(market)
	if market != MarketTaiwan && market != MarketUS {
		return nil, fmt.Errorf("unknown market %q", market)
	}

	cacheKey := "premarket:" + market
	if refresh {
		p.cache.Invalidate(cacheKey)
	} else if cached, ok := p.cache.Get(cacheKey); ok {
		return cached.(*models.PremarketBrief), nil
	}

	ref := p.referenceTime(market)
	start := ref.Add(-premarketWindow)

	var items []models.NewsItem
	var keywords []string
	lang, region := "zh-TW", "TW"
	if market == MarketUS {
		keywords = usKeywords
		lang, region = "en", "US"
	} else {
		keywords = taiwanKeywords
	}

	// Search back far enough to cover the whole window even when the open
	// was earlier today.
	lookback := time.Since(start)
	for _, kw := range keywords {
		got, err := p.source.Search(ctx, []string{kw}, lang, region, lookback)
		if err != nil {
			p.log.WithError(err).WithField("keyword", kw).Warn("premarket search failed")
			continue
		}
		items = append(items, got...)
	}
	items = dedupeItems(items)

	var filtered []models.NewsItem
	for _, n := range items {
		if !n.PublishedAt.Before(start) && !n.PublishedAt.After(ref) {
			filtered = append(filtered, n)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return strings.ToLower(filtered[i].Title) < strings.ToLower(filtered[j].Title)
	})

	brief := &models.PremarketBrief{
		Market:     market,
		Type:       "premarket",
		TradingDay: p.isTradingDay(market, p.now()),
		NewsCount:  len(filtered),
		News:       filtered,
		FetchedAt:  time.Now().UTC(),
	}
	p.cache.Set(cacheKey, brief)
	return brief, nil
}

// GetSummary returns both markets' briefs. A failed market comes back nil
// rather than failing the other.
func (p *Premarket) GetSummary(ctx context.Context, refresh bool) *models.PremarketSummary {
	summary := &models.PremarketSummary{Timestamp: time.Now().UTC()}
	if tw, err := p.GetBrief(ctx, MarketTaiwan, refresh); err == nil {
		summary.Taiwan = tw
	} else {
		p.log.WithError(err).Warn("taiwan brief failed")
	}
	if us, err := p.GetBrief(ctx, MarketUS, refresh); err == nil {
		summary.US = us
	} else {
		p.log.WithError(err).Warn("us brief failed")
	}
	return summary
}
