// Package sec fetches quarterly filings from SEC EDGAR. EDGAR requires a
// descriptive User-Agent and caps anonymous clients at 10 requests per
// second, so every request goes through a shared rate limiter.
package sec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
)

const (
	tickersURL     = "https://www.sec.gov/files/company_tickers.json"
	submissionsURL = "https://data.sec.gov/submissions/CIK%s.json"
	archivesURL    = "https://www.sec.gov/Archives/edgar/data/%s/%s/%s"
)

// Client talks to EDGAR's public JSON endpoints.
type Client struct {
	userAgent      string
	tickersBase    string
	submissionsFmt string
	limiter        *rate.Limiter
	cache          *datasource.Cache
	log            *logrus.Entry
}

// NewClient creates an EDGAR client. userAgent must identify the operator
// per SEC access rules, e.g. "marketdash admin@example.com".
func NewClient(userAgent string) *Client {
	return &Client{
		userAgent:      userAgent,
		tickersBase:    tickersURL,
		submissionsFmt: submissionsURL,
		limiter:        rate.NewLimiter(rate.Limit(8), 8),
		cache:          datasource.NewCache(time.Hour),
		log:            logger.Component("sec"),
	}
}

// NewClientWithBaseURL points the client at an alternate host for tests.
func NewClientWithBaseURL(userAgent, baseURL string) *Client {
	c := NewClient(userAgent)
	base := strings.TrimRight(baseURL, "/")
	c.tickersBase = base + "/files/company_tickers.json"
	c.submissionsFmt = base + "/submissions/CIK%s.json"
	return c
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, status, err := datasource.Get(ctx, url, map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "application/json",
	})
	if err != nil {
		return err
	}
	defer body.Close()
	if status != 200 {
		io.Copy(io.Discard, body)
		return fmt.Errorf("fetch %s: %w", url, &datasource.ErrHTTP{
			StatusCode: status,
			Status:     http.StatusText(status),
		})
	}
	return json.NewDecoder(body).Decode(out)
}

// tickerEntry is one row of company_tickers.json, which is keyed by
// arbitrary string indices rather than tickers.
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// ResolveCIK maps a ticker to its zero-padded ten-digit CIK. The full
// ticker table is cached for a day since it changes rarely.
func (c *Client) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("empty ticker")
	}

	var table map[string]tickerEntry
	if cached, ok := c.cache.Get("tickers"); ok {
		table = cached.(map[string]tickerEntry)
	} else {
		if err := c.get(ctx, c.tickersBase, &table); err != nil {
			return "", fmt.Errorf("load ticker table: %w", err)
		}
		c.cache.SetWithTTL("tickers", table, 24*time.Hour)
	}

	// EDGAR lists class shares with dashes where quote feeds use dots.
	normalized := strings.ReplaceAll(ticker, ".", "-")
	for _, entry := range table {
		if strings.EqualFold(entry.Ticker, ticker) || strings.EqualFold(entry.Ticker, normalized) {
			return fmt.Sprintf("%010d", entry.CIK), nil
		}
	}
	return "", fmt.Errorf("%w: %s", datasource.ErrSymbolNotFound, ticker)
}

// Recent10Q returns the most recent 10-Q filings for a ticker, newest
// first, up to limit entries.
func (c *Client) Recent10Q(ctx context.Context, ticker string, limit int) ([]models.Filing10Q, error) {
	if limit <= 0 {
		limit = 4
	}
	cacheKey := fmt.Sprintf("10q:%s:%d", strings.ToUpper(ticker), limit)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]models.Filing10Q), nil
	}

	cik, err := c.ResolveCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var subs submissionsDoc
	if err := c.get(ctx, fmt.Sprintf(c.submissionsFmt, cik), &subs); err != nil {
		return nil, fmt.Errorf("load submissions for %s: %w", ticker, err)
	}

	recent := subs.Filings.Recent
	var out []models.Filing10Q
	for i, form := range recent.Form {
		if form != "10-Q" && form != "10-Q/A" {
			continue
		}
		accession := at(recent.AccessionNumber, i)
		doc := at(recent.PrimaryDocument, i)
		f := models.Filing10Q{
			Ticker:      strings.ToUpper(ticker),
			CIK:         cik,
			AccessionNo: accession,
			FilingDate:  at(recent.FilingDate, i),
			ReportDate:  at(recent.ReportDate, i),
			PrimaryDoc:  doc,
		}
		if accession != "" && doc != "" {
			f.DocumentURL = fmt.Sprintf(archivesURL,
				strings.TrimLeft(cik, "0"),
				strings.ReplaceAll(accession, "-", ""),
				doc)
		}
		f.FiscalPeriod = fiscalPeriod(f.ReportDate)
		out = append(out, f)
		if len(out) >= limit {
			break
		}
	}

	c.cache.SetWithTTL(cacheKey, out, 6*time.Hour)
	c.log.WithFields(logrus.Fields{"ticker": ticker, "count": len(out)}).Debug("fetched 10-Q filings")
	return out, nil
}

// submissionsDoc mirrors the column-oriented recent-filings block of
// data.sec.gov/submissions/CIK##########.json.
type submissionsDoc struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// fiscalPeriod labels a report date like "Q2 2026". Calendar quarters
// only; companies with offset fiscal years still get the calendar label.
func fiscalPeriod(reportDate string) string {
	t, err := time.Parse("2006-01-02", reportDate)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Q%d %d", (int(t.Month())-1)/3+1, t.Year())
}
