// Package econcal builds the US economic-release calendar. Release dates
// come from the published BLS schedule pages when reachable, with a
// typical-schedule estimate as fallback for the indicators BLS does not
// publish.
package econcal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

// typicalDay values describe when in the month an indicator usually prints.
const (
	dayFirstFriday   = "first_friday"
	dayMidMonth      = "mid_month"
	dayEndMonth      = "end_month"
	dayFirstBusiness = "first_business_day"

	// No fixed monthly slot. Listed for scraped entries only, never
	// estimated.
	dayVaries     = "varies"
	dayEndQuarter = "end_quarter"
)

type indicator struct {
	Key        string
	Name       string
	Source     string
	TypicalDay string
	TimeET     string
	High       bool
}

// indicators lists the releases the dashboard tracks, in display order.
var indicators = []indicator{
	{"CPI", "Consumer Price Index", "BLS", dayMidMonth, "08:30 ET", true},
	{"PPI", "Producer Price Index", "BLS", dayMidMonth, "08:30 ET", true},
	{"PCE", "Personal Consumption Expenditures", "BEA", dayEndMonth, "08:30 ET", true},
	{"NFP", "Non-Farm Payrolls", "BLS", dayFirstFriday, "08:30 ET", true},
	{"FOMC", "FOMC Rate Decision", "Fed", dayVaries, "14:00 ET", true},
	{"GDP", "GDP Preliminary", "BEA", dayEndQuarter, "08:30 ET", true},
	{"UNEMPLOYMENT", "Unemployment Rate", "BLS", dayFirstFriday, "08:30 ET", true},
	{"RETAIL_SALES", "Retail Sales", "Census", dayMidMonth, "08:30 ET", false},
	{"ISM_MANUFACTURING", "ISM Manufacturing PMI", "ISM", dayFirstBusiness, "10:00 ET", false},
	{"ISM_SERVICES", "ISM Services PMI", "ISM", dayFirstBusiness, "10:00 ET", false},
}

// blsIndicator maps a BLS schedule entry title to an indicator key.
func blsIndicator(title string) (string, bool) {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "consumer price index"):
		return "CPI", true
	case strings.Contains(t, "producer price index"):
		return "PPI", true
	case strings.Contains(t, "employment situation"):
		return "NFP", true
	case strings.Contains(t, "real earnings"):
		return "", false
	case strings.Contains(t, "retail sales"):
		return "RETAIL_SALES", true
	}
	return "", false
}

// Calendar fetches and caches the economic release schedule.
type Calendar struct {
	baseURL string
	fredURL string
	fredKey string
	cache   *datasource.Cache
	log     *logrus.Entry
	now     func() time.Time
}

// New creates a calendar reading the public BLS schedule. fredKey enables
// CPI context enrichment from FRED; pass "" to skip it.
func New(fredKey string) *Calendar {
	return &Calendar{
		baseURL: "https://www.bls.gov",
		fredURL: "https://api.stlouisfed.org",
		fredKey: fredKey,
		cache:   datasource.NewCache(1 * time.Hour),
		log:     logger.Component("econcal"),
		now:     utils.NowET,
	}
}

// NewWithBaseURL creates a calendar against a custom endpoint, for tests.
func NewWithBaseURL(base string) *Calendar {
	c := New("")
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// GetCalendar returns the release calendar for the current and next month,
// split into upcoming and past events. refresh drops the hourly cache first.
func (c *Calendar) GetCalendar(ctx context.Context, refresh bool) (*models.EconCalendar, error) {
	const cacheKey = "calendar"
	if refresh {
		c.cache.Invalidate(cacheKey)
	} else if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*models.EconCalendar), nil
	}

	now := c.now()
	events := c.fetchBLSMonths(ctx, now, 2)
	scraped := make(map[string]bool, len(events))
	for _, e := range events {
		scraped[e.Indicator] = true
	}
	// Estimate the indicators BLS does not publish, and everything when
	// the scrape came back empty.
	for _, est := range estimateEvents(now, 2) {
		if !scraped[est.Indicator] {
			events = append(events, est)
		}
	}

	events = dedupe(events)
	for i := range events {
		if days, err := utils.DaysUntil(events[i].Date, utils.Eastern); err == nil {
			events[i].DaysUntil = days
		}
	}

	if cpi, ok := c.fetchCPIContext(ctx, refresh); ok {
		for i := range events {
			if events[i].Indicator != "CPI" {
				continue
			}
			events[i].PrevMonthValue = cpi.prevMonth
			events[i].PrevYearValue = cpi.prevYear
			events[i].ForecastHint = cpiForecastHint
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].Indicator < events[j].Indicator
	})

	cal := &models.EconCalendar{
		Upcoming:  []models.EconEvent{},
		Past:      []models.EconEvent{},
		Timestamp: time.Now().UTC(),
	}
	for _, e := range events {
		if e.DaysUntil >= 0 {
			cal.Upcoming = append(cal.Upcoming, e)
		} else {
			cal.Past = append(cal.Past, e)
		}
	}

	c.cache.Set(cacheKey, cal)
	return cal, nil
}

// fetchBLSMonths scrapes the BLS schedule for n months starting at now.
// Scrape failures degrade to an empty slice; the caller falls back to
// estimates.
func (c *Calendar) fetchBLSMonths(ctx context.Context, now time.Time, n int) []models.EconEvent {
	var events []models.EconEvent
	for offset := 0; offset < n; offset++ {
		month := now.AddDate(0, offset, 0)
		got, err := c.fetchBLSSchedule(ctx, month.Year(), int(month.Month()))
		if err != nil {
			c.log.WithError(err).WithField("month", month.Format("2006-01")).Warn("BLS schedule unavailable")
			continue
		}
		events = append(events, got...)
	}
	return events
}

// fetchBLSSchedule parses one monthly schedule page. The page is a calendar
// table whose cells hold a day number followed by release titles and times.
func (c *Calendar) fetchBLSSchedule(ctx context.Context, year, month int) ([]models.EconEvent, error) {
	url := fmt.Sprintf("%s/schedule/%d/%02d_sched.htm", c.baseURL, year, month)
	doc, err := c.fetchDoc(ctx, url)
	if err != nil {
		return nil, err
	}

	var events []models.EconEvent
	doc.Find("table td, table th").Each(func(_ int, cell *goquery.Selection) {
		lines := cellLines(cell)
		day := 0
		for _, line := range lines {
			if d, err := strconv.Atoi(line); err == nil && d >= 1 && d <= 31 {
				day = d
				break
			}
		}
		if day == 0 {
			return
		}

		var title, timeStr string
		for _, line := range lines {
			lower := strings.ToLower(line)
			if _, err := strconv.Atoi(line); err == nil {
				continue
			}
			if strings.Contains(lower, ":") && (strings.Contains(lower, "am") || strings.Contains(lower, "pm")) {
				timeStr = line
				continue
			}
			if len(line) > 10 && len(line) > len(title) {
				title = line
			}
		}
		if title == "" {
			return
		}
		key, ok := blsIndicator(title)
		if !ok {
			return
		}
		ind, ok := indicatorByKey(key)
		if !ok {
			return
		}

		events = append(events, models.EconEvent{
			Indicator: key,
			Name:      ind.Name,
			Source:    ind.Source,
			Date:      fmt.Sprintf("%04d-%02d-%02d", year, month, day),
			TimeET:    parseBLSTime(timeStr),
		})
	})
	return events, nil
}

func (c *Calendar) fetchDoc(ctx context.Context, url string) (*goquery.Document, error) {
	body, _, err := datasource.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return goquery.NewDocumentFromReader(body)
}

// cellLines splits a table cell into trimmed non-empty text lines, treating
// each child node as its own line since BLS separates entries with markup
// rather than newlines.
func cellLines(cell *goquery.Selection) []string {
	var lines []string
	add := func(text string) {
		for _, raw := range strings.Split(text, "\n") {
			if s := strings.TrimSpace(raw); s != "" {
				lines = append(lines, s)
			}
		}
	}
	cell.Contents().Each(func(_ int, node *goquery.Selection) {
		add(node.Text())
	})
	if len(lines) == 0 {
		add(cell.Text())
	}
	return lines
}

// parseBLSTime normalizes "08:30 AM"-style strings to "08:30 ET".
func parseBLSTime(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "08:30 ET"
	}
	pm := strings.Contains(s, "PM")
	s = strings.TrimSpace(strings.NewReplacer("AM", "", "PM", "").Replace(s))
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "08:30 ET"
	}
	hour, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	minute, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return "08:30 ET"
	}
	if pm && hour != 12 {
		hour += 12
	}
	if !pm && hour == 12 {
		hour = 0
	}
	return fmt.Sprintf("%02d:%02d ET", hour, minute)
}

// estimateEvents derives release dates from each indicator's typical
// monthly slot for n months starting at now.
func estimateEvents(now time.Time, n int) []models.EconEvent {
	var events []models.EconEvent
	for offset := 0; offset < n; offset++ {
		month := now.AddDate(0, offset, 0)
		year, m := month.Year(), month.Month()
		for _, ind := range indicators {
			day, ok := typicalDate(ind.TypicalDay, year, m)
			if !ok {
				continue
			}
			events = append(events, models.EconEvent{
				Indicator:   ind.Key,
				Name:        ind.Name,
				Source:      ind.Source,
				Date:        utils.FormatDate(day),
				TimeET:      ind.TimeET,
				IsEstimated: true,
			})
		}
	}
	return events
}

func typicalDate(typical string, year int, month time.Month) (time.Time, bool) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, utils.Eastern)
	switch typical {
	case dayFirstFriday:
		d := first
		for d.Weekday() != time.Friday {
			d = d.AddDate(0, 0, 1)
		}
		return d, true
	case dayMidMonth:
		return time.Date(year, month, 15, 0, 0, 0, 0, utils.Eastern), true
	case dayEndMonth:
		return first.AddDate(0, 1, -1), true
	case dayFirstBusiness:
		d := first
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		return d, true
	}
	return time.Time{}, false
}

func indicatorByKey(key string) (indicator, bool) {
	for _, ind := range indicators {
		if ind.Key == key {
			return ind, true
		}
	}
	return indicator{}, false
}

// dedupe keeps one event per indicator and date; scraped entries win over
// estimates because they sort first in insertion order.
func dedupe(events []models.EconEvent) []models.EconEvent {
	seen := make(map[string]bool, len(events))
	var out []models.EconEvent
	for _, e := range events {
		k := e.Indicator + "|" + e.Date
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
