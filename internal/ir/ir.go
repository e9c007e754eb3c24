// Package ir reads investor-relations briefing schedules from locally
// dropped TWSE CSV exports and builds a date-grouped timeline. The files
// are Big5 encoded and use Minguo (ROC) calendar dates.
package ir

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

// Fetcher loads briefing schedules from a CSV drop directory.
type Fetcher struct {
	dir         string
	monthsAhead int
	cache       *datasource.Cache
	log         *logrus.Entry
	now         func() time.Time
}

// New creates an IR fetcher over the configured CSV directory.
func New(cfg *config.Config) *Fetcher {
	months := cfg.IR.MonthsAhead
	if months <= 0 {
		months = 3
	}
	return &Fetcher{
		dir:         cfg.IR.CSVDir,
		monthsAhead: months,
		cache:       datasource.NewCache(1 * time.Hour),
		log:         logger.Component("ir"),
		now:         utils.NowTaipei,
	}
}

// ParseROCDate resolves a Minguo-calendar date string like "115/01/28" to
// YYYY-MM-DD. Ranges ("115/01/13 至 115/01/20") resolve to their first
// date. Years above 200 are treated as Gregorian already.
func ParseROCDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	for _, sep := range []string{"至", "~", " "} {
		if i := strings.Index(s, sep); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	year, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	day, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	if year <= 200 {
		year += 1911
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", fmt.Errorf("date out of range %q", s)
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}

// loadFile reads one Big5 CSV export. Preamble lines before the header row
// are skipped; rows that fail date parsing are dropped.
func (f *Fetcher) loadFile(path string) ([]models.IRMeeting, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoded, err := io.ReadAll(transform.NewReader(file, traditionalchinese.Big5.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("decode big5: %w", err)
	}

	content := string(decoded)
	// TWSE exports carry title lines above the real header.
	if i := strings.Index(content, "公司代號"); i > 0 {
		if j := strings.LastIndex(content[:i], "\n"); j >= 0 {
			content = content[j+1:]
		}
	}

	// TWSE wraps codes as ="2330" to keep leading zeros; lazy quoting
	// lets those rows through.
	reader := csv.NewReader(strings.NewReader(content))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows []models.IRMeeting
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	var meetings []models.IRMeeting
	for _, row := range rows {
		row.Symbol = cleanCell(row.Symbol)
		row.Name = cleanCell(row.Name)
		if row.Symbol == "" || row.Name == "" {
			continue
		}
		date, err := ParseROCDate(row.DateRaw)
		if err != nil {
			continue
		}
		row.Date = date
		meetings = append(meetings, row)
	}
	return meetings, nil
}

// loadAll reads every CSV in the drop directory.
func (f *Fetcher) loadAll() []models.IRMeeting {
	paths, err := filepath.Glob(filepath.Join(f.dir, "*.csv"))
	if err != nil || len(paths) == 0 {
		return nil
	}
	sort.Strings(paths)

	var all []models.IRMeeting
	for _, path := range paths {
		meetings, err := f.loadFile(path)
		if err != nil {
			f.log.WithError(err).WithField("file", filepath.Base(path)).Warn("csv skipped")
			continue
		}
		all = append(all, meetings...)
	}
	return all
}

// Timeline groups the upcoming meetings by date. Meetings dated before
// today or past the configured horizon are excluded.
func (f *Fetcher) Timeline(refresh bool) (*models.IRTimeline, error) {
	const cacheKey = "timeline"
	if refresh {
		f.cache.Invalidate(cacheKey)
	} else if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.(*models.IRTimeline), nil
	}

	now := f.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, utils.Taipei)
	today := utils.FormatDate(now)
	horizon := utils.FormatDate(now.AddDate(0, f.monthsAhead, 0))

	byDate := make(map[string][]models.IRMeeting)
	total := 0
	for _, m := range f.loadAll() {
		if m.Date < today || m.Date > horizon {
			continue
		}
		byDate[m.Date] = append(byDate[m.Date], m)
		total++
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	timeline := &models.IRTimeline{
		Timeline:      []models.IRDay{},
		TotalMeetings: total,
		Timestamp:     time.Now().UTC(),
	}
	for _, d := range dates {
		meetings := byDate[d]
		sort.Slice(meetings, func(i, j int) bool {
			return meetings[i].Symbol < meetings[j].Symbol
		})
		day := models.IRDay{Date: d, Meetings: meetings}
		if dd, err := time.ParseInLocation("2006-01-02", d, utils.Taipei); err == nil {
			day.DaysUntil = int(dd.Sub(midnight).Hours() / 24)
		}
		timeline.Timeline = append(timeline.Timeline, day)
	}
	if len(dates) > 0 {
		timeline.DateRange = models.IRDateRange{Start: dates[0], End: dates[len(dates)-1]}
	}

	f.cache.Set(cacheKey, timeline)
	return timeline, nil
}

// cleanCell strips the ="..." wrapper TWSE uses to keep leading zeros.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	return strings.Trim(s, `"`)
}
