package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(1 * time.Minute)
	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if v.(int) != 42 {
		t.Errorf("got %v, want 42", v)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCacheInvalidateAndFlush(t *testing.T) {
	c := NewCache(1 * time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("invalidated key still present")
	}
	c.Flush()
	if _, ok := c.Get("b"); ok {
		t.Error("flushed key still present")
	}
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded when bucket drained, got %v", err)
	}
}

func TestYahooGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v7/finance/quote" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quoteResponse":{"result":[{
			"symbol":"AAPL","shortName":"Apple Inc.",
			"regularMarketPrice":231.5,"regularMarketPreviousClose":229.0,
			"regularMarketChange":2.5,"regularMarketChangePercent":1.09,
			"regularMarketOpen":230.0,"regularMarketDayHigh":232.0,
			"regularMarketDayLow":228.5,"regularMarketVolume":51000000}],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahooWithBaseURL(srv.URL)
	q, err := y.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.CurrentPrice != 231.5 {
		t.Errorf("price = %v, want 231.5", q.CurrentPrice)
	}
	if q.Name != "Apple Inc." {
		t.Errorf("name = %q", q.Name)
	}
	if q.ChangePercent != 1.09 {
		t.Errorf("change percent = %v, want 1.09", q.ChangePercent)
	}
}

func TestYahooGetQuoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quoteResponse":{"result":[],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahooWithBaseURL(srv.URL)
	_, err := y.GetQuote(context.Background(), "NOPE")
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestYahooGetHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Second close is null and must be skipped.
		w.Write([]byte(`{"chart":{"result":[{
			"meta":{"symbol":"GC=F","currency":"USD"},
			"timestamp":[1704153600,1704240000,1704326400],
			"indicators":{"quote":[{"close":[2050.25,null,2061.0]}]}}],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahooWithBaseURL(srv.URL)
	dates, values, err := y.GetHistory(context.Background(), "GC=F", "1y")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(dates) != 2 || len(values) != 2 {
		t.Fatalf("got %d dates %d values, want 2 each", len(dates), len(values))
	}
	if dates[0] != "2024-01-02" {
		t.Errorf("dates[0] = %q, want 2024-01-02", dates[0])
	}
	if values[1] != 2061.0 {
		t.Errorf("values[1] = %v, want 2061.0", values[1])
	}
}

func TestFinnhubGetQuote(t *testing.T) {
	var gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"c":5234.18,"d":12.4,"dp":0.24,"h":5245.0,"l":5201.3,"o":5210.0,"pc":5221.78,"t":1718000000}`))
	}))
	defer srv.Close()

	f := NewFinnhubWithBaseURL(srv.URL, "test-token")
	q, err := f.GetQuote(context.Background(), "^GSPC")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if gotSymbol != ".SPX" {
		t.Errorf("mapped symbol = %q, want .SPX", gotSymbol)
	}
	if q.Symbol != "^GSPC" {
		t.Errorf("record keeps original symbol, got %q", q.Symbol)
	}
	if q.CurrentPrice != 5234.18 {
		t.Errorf("price = %v", q.CurrentPrice)
	}
}

func TestFinnhubDisabledWithoutToken(t *testing.T) {
	f := NewFinnhub("")
	_, err := f.GetQuote(context.Background(), "AAPL")
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound without token, got %v", err)
	}
}

func TestDeribitGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instrument_name"); got != "BTC-PERPETUAL" {
			t.Errorf("instrument = %q, want BTC-PERPETUAL", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"instrument_name":"BTC-PERPETUAL","last_price":64000,
			"stats":{"high":65000,"low":63000,"price_change":2.0,"volume":1234.5}}}`))
	}))
	defer srv.Close()

	d := NewDeribitWithBaseURL(srv.URL)
	q, err := d.GetQuote(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.CurrentPrice != 64000 {
		t.Errorf("price = %v", q.CurrentPrice)
	}
	// prev = 64000 / 1.02
	if q.PreviousClose < 62744 || q.PreviousClose > 62746 {
		t.Errorf("previous close = %v, want ~62745", q.PreviousClose)
	}
	if q.Name != "Bitcoin" {
		t.Errorf("name = %q, want Bitcoin", q.Name)
	}
}

func TestPairMapping(t *testing.T) {
	if got := pairFor("ETH-USD"); got != "ETHUSDT" {
		t.Errorf("pairFor = %q", got)
	}
	if got := instrumentFor("SOL-USD"); got != "SOL-PERPETUAL" {
		t.Errorf("instrumentFor = %q", got)
	}
}
