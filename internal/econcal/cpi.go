package econcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/wyhuang/marketdash/internal/datasource"
)

// fredCPISeries is the seasonally adjusted all-items CPI index. FRED's
// units parameter converts the level series: pch is the month-over-month
// percent change, pc1 the change from a year ago.
const fredCPISeries = "CPIAUCSL"

// cpiForecastHint is shown when no consensus forecast source is wired.
const cpiForecastHint = "check Investing.com or Trading Economics for the consensus forecast"

// cpiContext holds the previous CPI prints attached to calendar events.
type cpiContext struct {
	prevMonth string
	prevYear  string
}

// fetchCPIContext pulls the latest published MoM and YoY CPI changes from
// FRED. Either leg may come back empty; callers attach what resolved.
// Returns false when no FRED key is configured.
func (c *Calendar) fetchCPIContext(ctx context.Context, refresh bool) (cpiContext, bool) {
	if c.fredKey == "" {
		return cpiContext{}, false
	}

	const cacheKey = "cpi:context"
	if refresh {
		c.cache.Invalidate(cacheKey)
	} else if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(cpiContext), true
	}

	var cpi cpiContext
	if v, err := c.fredLatest(ctx, "pch"); err != nil {
		c.log.WithError(err).Warn("FRED MoM CPI unavailable")
	} else {
		cpi.prevMonth = v
	}
	if v, err := c.fredLatest(ctx, "pc1"); err != nil {
		c.log.WithError(err).Warn("FRED YoY CPI unavailable")
	} else {
		cpi.prevYear = v
	}

	c.cache.Set(cacheKey, cpi)
	return cpi, true
}

// fredLatest returns the most recent published observation of the CPI
// series under the given units transform, formatted as "0.20%". FRED
// reports not-yet-published periods as ".", which are skipped.
func (c *Calendar) fredLatest(ctx context.Context, units string) (string, error) {
	u := fmt.Sprintf("%s/fred/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=2&units=%s",
		c.fredURL, fredCPISeries, url.QueryEscape(c.fredKey), units)
	body, _, err := datasource.Get(ctx, u, nil)
	if err != nil {
		return "", fmt.Errorf("fred %s: %w", units, err)
	}
	defer body.Close()

	var doc struct {
		Observations []struct {
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return "", fmt.Errorf("fred %s: %w", units, err)
	}
	for _, obs := range doc.Observations {
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		f, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%.2f%%", f), nil
	}
	return "", fmt.Errorf("fred %s: no published observation", units)
}
