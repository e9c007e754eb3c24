package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wyhuang/marketdash/pkg/models"
)

// TimeoutMessage is the fixed user-facing prefix for timed-out requests.
// The raw network error is wrapped behind it so callers can still inspect
// the cause, but the displayed text always leads with this.
const TimeoutMessage = "request timed out, the server may be starting up or busy, retry later"

// Client is the typed HTTP client for the dashboard API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// envelope is the API's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// classify maps context expiry onto the fixed timeout message; other
// errors pass through untouched.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", TimeoutMessage, err)
	}
	return err
}

// getJSON fetches path and decodes the envelope's data into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return classify(fmt.Errorf("decode %s: %w", path, err))
	}
	if !env.Success {
		if env.Error != "" {
			return errors.New(env.Error)
		}
		return fmt.Errorf("%s reported failure", path)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

func refreshQuery(refresh bool) url.Values {
	q := url.Values{}
	if refresh {
		q.Set("refresh", "true")
	}
	return q
}

// FetchMarketData requests the given sections, forwarding the forced
// refresh flag.
func (c *Client) FetchMarketData(ctx context.Context, sections []string, refresh bool) (*models.MarketSummary, error) {
	q := refreshQuery(refresh)
	if len(sections) > 0 {
		q.Set("sections", strings.Join(sections, ","))
	}
	var out models.MarketSummary
	if err := c.getJSON(ctx, "/api/market-data", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchEconCalendar retrieves the economic-calendar payload.
func (c *Client) FetchEconCalendar(ctx context.Context, refresh bool) (*models.EconCalendar, error) {
	var out models.EconCalendar
	if err := c.getJSON(ctx, "/api/economic-calendar", refreshQuery(refresh), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchNewsVolume retrieves the news-volume ranking.
func (c *Client) FetchNewsVolume(ctx context.Context, refresh bool) (*models.NewsVolumeSummary, error) {
	var out models.NewsVolumeSummary
	if err := c.getJSON(ctx, "/api/news-volume", refreshQuery(refresh), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchPremarket retrieves both markets' premarket briefs.
func (c *Client) FetchPremarket(ctx context.Context, refresh bool) (*models.PremarketSummary, error) {
	var out models.PremarketSummary
	if err := c.getJSON(ctx, "/api/premarket-data", refreshQuery(refresh), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchIRMeetings retrieves the IR briefing timeline.
func (c *Client) FetchIRMeetings(ctx context.Context, refresh bool) (*models.IRTimeline, error) {
	var out models.IRTimeline
	if err := c.getJSON(ctx, "/api/ir-meetings", refreshQuery(refresh), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchInstitutionalNet retrieves the year-to-date institutional series.
func (c *Client) FetchInstitutionalNet(ctx context.Context, refresh bool) (*models.InstitutionalSeries, error) {
	var out models.InstitutionalSeries
	if err := c.getJSON(ctx, "/api/institutional-net", refreshQuery(refresh), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchStockHistory retrieves one symbol's close series.
func (c *Client) FetchStockHistory(ctx context.Context, symbol, period string) (*models.StockHistory, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	var out models.StockHistory
	if err := c.getJSON(ctx, "/api/stock-history/"+url.PathEscape(symbol), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchRatioHistory retrieves a ratio's monthly series.
func (c *Client) FetchRatioHistory(ctx context.Context, id string) (*models.RatioHistory, error) {
	var out models.RatioHistory
	if err := c.getJSON(ctx, "/api/ratios/"+url.PathEscape(id)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
