// Package institutional tracks the TWSE "three institutional investors"
// daily net buy/sell totals (the BFI82U report). Days come from the TWSE
// CSV endpoint, with locally uploaded CSV files taking precedence so the
// series keeps working when the exchange blocks automated pulls.
package institutional

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
	"github.com/wyhuang/marketdash/pkg/utils"
)

var fileDateRe = regexp.MustCompile(`(\d{8})`)
var rocDateRe = regexp.MustCompile(`(\d{3})[/年](\d{1,2})[/月](\d{1,2})`)
var isoDateRe = regexp.MustCompile(`(\d{4})[/\-]?(\d{2})[/\-]?(\d{2})`)

// Tracker fetches and accumulates the daily BFI82U series.
type Tracker struct {
	baseURL   string
	uploadDir string
	cache     *datasource.Cache
	log       *logrus.Entry
	now       func() time.Time
}

// New creates a tracker over the configured upload directory.
func New(cfg *config.Config) *Tracker {
	return &Tracker{
		baseURL:   "https://www.twse.com.tw",
		uploadDir: cfg.Institutional.UploadDir,
		cache:     datasource.NewCache(24 * time.Hour),
		log:       logger.Component("institutional"),
		now:       utils.NowTaipei,
	}
}

// NewWithBaseURL points the TWSE requests at a custom host, for tests.
func NewWithBaseURL(cfg *config.Config, base string) *Tracker {
	t := New(cfg)
	t.baseURL = strings.TrimRight(base, "/")
	return t
}

// YearToDate builds the daily and cumulative net series from January 1st
// through today. Days with no report (holidays, fetch failures) are
// skipped; the cumulative totals run over the days that resolved.
func (t *Tracker) YearToDate(ctx context.Context, refresh bool) (*models.InstitutionalSeries, error) {
	cacheKey := "ytd:" + utils.FormatDate(t.now())
	if refresh {
		t.cache.Flush()
	} else if cached, ok := t.cache.Get(cacheKey); ok {
		return cached.(*models.InstitutionalSeries), nil
	}

	now := t.now()
	series := &models.InstitutionalSeries{
		Days:              []models.InstitutionalDay{},
		CumulativeTotal:   []int64{},
		CumulativeForeign: []int64{},
		Year:              now.Year(),
		UploadedDates:     t.UploadedDates(),
		Timestamp:         time.Now().UTC(),
	}

	var cumTotal, cumForeign int64
	var lastErr string
	for d := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, utils.Taipei); !d.After(now); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		dateStr := d.Format("20060102")

		day, uploaded := t.loadUploaded(dateStr)
		if day == nil {
			fetched, err := t.fetchDay(ctx, dateStr)
			if err != nil {
				lastErr = err.Error()
				continue
			}
			day = fetched
		}
		day.Uploaded = uploaded
		cumTotal += day.TotalNet
		cumForeign += day.ForeignNet
		series.Days = append(series.Days, *day)
		series.CumulativeTotal = append(series.CumulativeTotal, cumTotal)
		series.CumulativeForeign = append(series.CumulativeForeign, cumForeign)
	}

	if len(series.Days) == 0 {
		series.LastError = lastErr
	}
	t.cache.Set(cacheKey, series)
	return series, nil
}

// fetchDay pulls one day's report from the TWSE CSV endpoint.
func (t *Tracker) fetchDay(ctx context.Context, dateStr string) (*models.InstitutionalDay, error) {
	u := fmt.Sprintf("%s/exchangeReport/BFI82U?response=csv&date=%s", t.baseURL, url.QueryEscape(dateStr))
	body, _, err := datasource.Get(ctx, u, map[string]string{
		"Referer": "https://www.twse.com.tw/zh/trading/foreign/bfi82u.html",
	})
	if err != nil {
		return nil, fmt.Errorf("twse %s: %w", dateStr, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return nil, err
	}
	text := decodeTWSE(raw)
	day, err := ParseBFI82U(text, dateStr)
	if err != nil {
		return nil, fmt.Errorf("twse %s: %w", dateStr, err)
	}
	return day, nil
}

// loadUploaded reads a manually dropped CSV for the date if one exists.
func (t *Tracker) loadUploaded(dateStr string) (*models.InstitutionalDay, bool) {
	for _, name := range []string{dateStr + ".csv", "BFI82U_" + dateStr + ".csv"} {
		raw, err := os.ReadFile(filepath.Join(t.uploadDir, name))
		if err != nil {
			continue
		}
		day, err := ParseBFI82U(decodeTWSE(raw), dateStr)
		if err != nil {
			t.log.WithError(err).WithField("file", name).Warn("uploaded csv unparsable")
			continue
		}
		return day, true
	}
	return nil, false
}

// UploadedDates lists the dates covered by dropped CSV files, sorted.
func (t *Tracker) UploadedDates() []string {
	entries, err := os.ReadDir(t.uploadDir)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		base = strings.TrimPrefix(base, "BFI82U_")
		if len(base) == 8 && fileDateRe.MatchString(base) && !seen[base] {
			seen[base] = true
			dates = append(dates, base)
		}
	}
	sort.Strings(dates)
	return dates
}

// SaveUpload stores an uploaded CSV under YYYYMMDD.csv and drops the
// cached series. The date is resolved from the explicit form value, the
// filename, then the file content, in that order.
func (t *Tracker) SaveUpload(formDate, filename string, content []byte) (string, error) {
	date := strings.TrimSpace(formDate)
	if date == "" {
		date = DateFromFilename(filename)
	}
	if date == "" {
		date = DateFromContent(decodeTWSE(content))
	}
	if date == "" {
		return "", fmt.Errorf("cannot determine report date from upload")
	}
	if _, err := time.Parse("20060102", date); err != nil {
		return "", fmt.Errorf("bad report date %q", date)
	}

	if err := os.MkdirAll(t.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(t.uploadDir, date+".csv")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	t.cache.Flush()
	return date, nil
}

// DateFromFilename extracts a YYYYMMDD date from an upload filename.
func DateFromFilename(name string) string {
	m := fileDateRe.FindString(name)
	if m == "" {
		return ""
	}
	if _, err := time.Parse("20060102", m); err != nil {
		return ""
	}
	return m
}

// DateFromContent extracts the report date from the first lines of a
// BFI82U CSV, accepting both Gregorian and Minguo forms.
func DateFromContent(text string) string {
	lines := strings.SplitN(text, "\n", 11)
	for _, line := range lines {
		if m := isoDateRe.FindStringSubmatch(line); m != nil {
			return m[1] + m[2] + m[3]
		}
		if m := rocDateRe.FindStringSubmatch(line); m != nil {
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			return fmt.Sprintf("%04d%02d%02d", year+1911, month, day)
		}
	}
	return ""
}

// ParseBFI82U extracts the per-category net amounts from a BFI82U CSV.
// The report has a preamble title row, a header row with a 買賣超 column,
// and one row per investor category.
func ParseBFI82U(text, dateStr string) (*models.InstitutionalDay, error) {
	text = strings.TrimPrefix(text, "\uFEFF")
	if text == "" || strings.Contains(strings.ToLower(text[:min(len(text), 200)]), "<html") {
		return nil, fmt.Errorf("not a CSV report")
	}

	lines := splitNonEmpty(text)
	headerIdx := -1
	for i, line := range lines {
		if strings.Contains(line, "買賣差額") || strings.Contains(line, "買賣超") || strings.Contains(line, "單位名稱") {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("header row not found")
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[headerIdx:], "\n")))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	netCol := -1
	for j, h := range header {
		h = strings.TrimSpace(h)
		if strings.Contains(h, "買賣差額") || strings.Contains(h, "買賣超") {
			netCol = j
		}
	}
	if netCol < 0 {
		return nil, fmt.Errorf("net column not found")
	}

	day := &models.InstitutionalDay{Date: dateStr}
	var haveTotal bool
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if len(row) <= netCol {
			continue
		}
		label := strings.ReplaceAll(strings.TrimSpace(row[0]), " ", "")
		value := parseAmount(row[netCol])
		switch {
		// "外資及陸資(不含外資自營商)" is the foreign row; the bare
		// "外資自營商" row counts as a dealer.
		case strings.Contains(label, "外資") &&
			(strings.Contains(label, "陸資") || strings.Contains(label, "及") || strings.Contains(label, "與")):
			day.ForeignNet += value
		case strings.Contains(label, "投信") && !strings.Contains(label, "自營"):
			day.TrustNet += value
		case strings.Contains(label, "自營"):
			day.DealerNet += value
		case strings.Contains(label, "合計") || strings.Contains(label, "總計"):
			day.TotalNet = value
			haveTotal = true
		}
	}
	if !haveTotal {
		day.TotalNet = day.ForeignNet + day.TrustNet + day.DealerNet
	}
	if day.TotalNet == 0 && day.ForeignNet == 0 && day.TrustNet == 0 && day.DealerNet == 0 {
		return nil, fmt.Errorf("no institutional rows found")
	}
	return day, nil
}

// decodeTWSE converts TWSE Big5 bytes to UTF-8, passing UTF-8 through.
func decodeTWSE(raw []byte) string {
	if isUTF8(raw) {
		return string(raw)
	}
	decoded, _, err := transform.Bytes(traditionalchinese.Big5.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func isUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// parseAmount converts "1,234" or ="−123" style cells to an integer.
func parseAmount(s string) int64 {
	s = strings.NewReplacer(",", "", `"`, "", "=", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func splitNonEmpty(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

