package econcal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTypicalDateFirstFriday(t *testing.T) {
	// August 2026: the 1st is a Saturday, first Friday is the 7th.
	d, ok := typicalDate(dayFirstFriday, 2026, time.August)
	if !ok {
		t.Fatal("expected a date")
	}
	if d.Day() != 7 || d.Weekday() != time.Friday {
		t.Errorf("got %v", d)
	}
}

func TestTypicalDateFirstBusinessDay(t *testing.T) {
	// March 2026: the 1st is a Sunday, first business day is Monday the 2nd.
	d, _ := typicalDate(dayFirstBusiness, 2026, time.March)
	if d.Day() != 2 {
		t.Errorf("got day %d, want 2", d.Day())
	}
}

func TestTypicalDateEndMonth(t *testing.T) {
	d, _ := typicalDate(dayEndMonth, 2024, time.February)
	if d.Day() != 29 {
		t.Errorf("got day %d, want 29 (leap year)", d.Day())
	}
}

func TestParseBLSTime(t *testing.T) {
	cases := map[string]string{
		"08:30 AM": "08:30 ET",
		"10:00 AM": "10:00 ET",
		"02:00 PM": "14:00 ET",
		"12:15 PM": "12:15 ET",
		"":         "08:30 ET",
		"garbage":  "08:30 ET",
	}
	for in, want := range cases {
		if got := parseBLSTime(in); got != want {
			t.Errorf("parseBLSTime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBlsIndicatorMapping(t *testing.T) {
	if k, ok := blsIndicator("Consumer Price Index for July 2026"); !ok || k != "CPI" {
		t.Errorf("got %q %v", k, ok)
	}
	if k, ok := blsIndicator("Employment Situation"); !ok || k != "NFP" {
		t.Errorf("got %q %v", k, ok)
	}
	if _, ok := blsIndicator("Some Unrelated Release"); ok {
		t.Error("unexpected mapping")
	}
}

func TestGetCalendarScrapesAndSplits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table><tr><td>
			<p>12</p>
			<p>Consumer Price Index for the month</p>
			<p>08:30 AM</p>
		</td></tr></table></body></html>`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	cal, err := c.GetCalendar(context.Background(), false)
	if err != nil {
		t.Fatalf("GetCalendar: %v", err)
	}

	found := false
	for _, e := range append(cal.Upcoming, cal.Past...) {
		if e.Indicator == "CPI" && !e.IsEstimated && e.TimeET == "08:30 ET" {
			found = true
		}
	}
	if !found {
		t.Error("scraped CPI event missing")
	}

	// Indicators BLS does not publish must come from the estimate path.
	foundEst := false
	for _, e := range append(cal.Upcoming, cal.Past...) {
		if e.Indicator == "ISM_MANUFACTURING" && e.IsEstimated {
			foundEst = true
		}
	}
	if !foundEst {
		t.Error("estimated ISM event missing")
	}
}

func TestGetCalendarAttachesCPIContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/fred/series/observations") {
			if r.URL.Query().Get("api_key") != "testkey" {
				t.Errorf("missing api key in %s", r.URL.RawQuery)
			}
			// Latest period not yet published, second observation holds
			// the last print.
			value := "0.2"
			if r.URL.Query().Get("units") == "pc1" {
				value = "3.2"
			}
			fmt.Fprintf(w, `{"observations":[{"value":"."},{"value":"%s"}]}`, value)
			return
		}
		w.Write([]byte(`<html><body><table><tr><td>
			<p>12</p>
			<p>Consumer Price Index for the month</p>
			<p>08:30 AM</p>
		</td></tr></table></body></html>`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	c.fredURL = srv.URL
	c.fredKey = "testkey"

	cal, err := c.GetCalendar(context.Background(), false)
	if err != nil {
		t.Fatalf("GetCalendar: %v", err)
	}
	found := false
	for _, e := range append(cal.Upcoming, cal.Past...) {
		if e.Indicator != "CPI" {
			if e.PrevMonthValue != "" || e.ForecastHint != "" {
				t.Errorf("%s must not carry CPI context", e.Indicator)
			}
			continue
		}
		found = true
		if e.PrevMonthValue != "0.20%" {
			t.Errorf("prev month = %q, want 0.20%%", e.PrevMonthValue)
		}
		if e.PrevYearValue != "3.20%" {
			t.Errorf("prev year = %q, want 3.20%%", e.PrevYearValue)
		}
		if e.ForecastValue != "" || e.ForecastHint == "" {
			t.Errorf("forecast = %q hint = %q", e.ForecastValue, e.ForecastHint)
		}
	}
	if !found {
		t.Fatal("no CPI event in calendar")
	}
}

func TestGetCalendarNoFREDKeySkipsContext(t *testing.T) {
	var fredCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/fred/") {
			fredCalls++
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	c.fredURL = srv.URL

	cal, err := c.GetCalendar(context.Background(), false)
	if err != nil {
		t.Fatalf("GetCalendar: %v", err)
	}
	if fredCalls != 0 {
		t.Errorf("FRED queried without a key: %d calls", fredCalls)
	}
	for _, e := range append(cal.Upcoming, cal.Past...) {
		if e.PrevMonthValue != "" || e.ForecastHint != "" {
			t.Errorf("%s carries CPI context without a key", e.Indicator)
		}
	}
}

func TestGetCalendarFallsBackToEstimates(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	cal, err := c.GetCalendar(context.Background(), false)
	if err != nil {
		t.Fatalf("GetCalendar: %v", err)
	}
	total := len(cal.Upcoming) + len(cal.Past)
	if total == 0 {
		t.Fatal("expected estimated events when scrape fails")
	}
	for _, e := range append(cal.Upcoming, cal.Past...) {
		if !e.IsEstimated {
			t.Errorf("event %s/%s should be estimated", e.Indicator, e.Date)
		}
	}
}

func TestGetCalendarUpcomingNeverNegative(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewWithBaseURL(srv.URL)
	cal, _ := c.GetCalendar(context.Background(), false)
	for _, e := range cal.Upcoming {
		if e.DaysUntil < 0 {
			t.Errorf("upcoming event %s has days_until %d", e.Indicator, e.DaysUntil)
		}
	}
	for _, e := range cal.Past {
		if e.DaysUntil >= 0 {
			t.Errorf("past event %s has days_until %d", e.Indicator, e.DaysUntil)
		}
	}
}
