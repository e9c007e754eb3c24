package sec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/wyhuang/marketdash/internal/datasource"
)

const tickersBody = `{
	"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
	"1": {"cik_str": 1067983, "ticker": "BRK-B", "title": "Berkshire Hathaway Inc"}
}`

const submissionsBody = `{
	"cik": "320193",
	"name": "Apple Inc.",
	"filings": {
		"recent": {
			"accessionNumber": ["0000320193-26-000055", "0000320193-26-000011", "0000320193-25-000073"],
			"filingDate": ["2026-08-01", "2026-01-31", "2025-08-02"],
			"reportDate": ["2026-06-27", "2025-12-27", "2025-06-28"],
			"form": ["10-Q", "10-K", "10-Q"],
			"primaryDocument": ["aapl-20260627.htm", "aapl-20251227.htm", "aapl-20250628.htm"]
		}
	}
}`

func testServer(t *testing.T, tickerCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "marketdash test@example.com" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "company_tickers.json"):
			if tickerCalls != nil {
				atomic.AddInt32(tickerCalls, 1)
			}
			w.Write([]byte(tickersBody))
		case strings.HasSuffix(r.URL.Path, "CIK0000320193.json"):
			w.Write([]byte(submissionsBody))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestResolveCIK(t *testing.T) {
	var calls int32
	srv := testServer(t, &calls)
	defer srv.Close()
	c := NewClientWithBaseURL("marketdash test@example.com", srv.URL)

	cik, err := c.ResolveCIK(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("ResolveCIK: %v", err)
	}
	if cik != "0000320193" {
		t.Fatalf("cik = %q, want 0000320193", cik)
	}

	// Dot class notation maps onto EDGAR's dash form.
	if cik, err = c.ResolveCIK(context.Background(), "BRK.B"); err != nil || cik != "0001067983" {
		t.Fatalf("BRK.B cik = %q, %v", cik, err)
	}

	// Second lookup hits the cached table.
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("ticker table fetched %d times, want 1", calls)
	}
}

func TestResolveCIKUnknown(t *testing.T) {
	srv := testServer(t, nil)
	defer srv.Close()
	c := NewClientWithBaseURL("marketdash test@example.com", srv.URL)

	_, err := c.ResolveCIK(context.Background(), "NOPE")
	if err == nil || !strings.Contains(err.Error(), datasource.ErrSymbolNotFound.Error()) {
		t.Fatalf("err = %v, want symbol not found", err)
	}
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewClientWithBaseURL("marketdash test@example.com", srv.URL)

	_, err := c.ResolveCIK(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error from 503 response")
	}
	var httpErr *datasource.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want wrapped *datasource.ErrHTTP", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", httpErr.StatusCode)
	}
}

func TestRecent10Q(t *testing.T) {
	srv := testServer(t, nil)
	defer srv.Close()
	c := NewClientWithBaseURL("marketdash test@example.com", srv.URL)

	filings, err := c.Recent10Q(context.Background(), "AAPL", 4)
	if err != nil {
		t.Fatalf("Recent10Q: %v", err)
	}
	if len(filings) != 2 {
		t.Fatalf("got %d filings, want 2 (10-K filtered out)", len(filings))
	}

	f := filings[0]
	if f.FilingDate != "2026-08-01" || f.ReportDate != "2026-06-27" {
		t.Fatalf("unexpected first filing %+v", f)
	}
	if f.FiscalPeriod != "Q2 2026" {
		t.Fatalf("fiscal period = %q, want Q2 2026", f.FiscalPeriod)
	}
	wantURL := "https://www.sec.gov/Archives/edgar/data/320193/000032019326000055/aapl-20260627.htm"
	if f.DocumentURL != wantURL {
		t.Fatalf("document url = %q, want %q", f.DocumentURL, wantURL)
	}
}

func TestRecent10QLimit(t *testing.T) {
	srv := testServer(t, nil)
	defer srv.Close()
	c := NewClientWithBaseURL("marketdash test@example.com", srv.URL)

	filings, err := c.Recent10Q(context.Background(), "AAPL", 1)
	if err != nil {
		t.Fatalf("Recent10Q: %v", err)
	}
	if len(filings) != 1 {
		t.Fatalf("got %d filings, want 1", len(filings))
	}
}

func TestFiscalPeriod(t *testing.T) {
	cases := map[string]string{
		"2026-01-15": "Q1 2026",
		"2026-06-27": "Q2 2026",
		"2025-12-27": "Q4 2025",
		"":           "",
		"bogus":      "",
	}
	for in, want := range cases {
		if got := fiscalPeriod(in); got != want {
			t.Errorf("fiscalPeriod(%q) = %q, want %q", in, got, want)
		}
	}
}
