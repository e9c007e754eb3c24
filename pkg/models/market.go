// Package models defines the core data structures used throughout marketdash.
package models

import "time"

// QuoteRecord is one instrument's quote snapshot. Records are immutable:
// a fresh fetch supersedes the whole record, fields are never patched in place.
type QuoteRecord struct {
	Symbol            string    `json:"symbol"`
	Name              string    `json:"name"`
	DisplayName       string    `json:"display_name,omitempty"`
	CurrentPrice      float64   `json:"current_price"`
	PreviousClose     float64   `json:"previous_close"`
	Change            float64   `json:"change"`
	ChangePercent     float64   `json:"change_percent"`
	Open              float64   `json:"open"`
	High              float64   `json:"high"`
	Low               float64   `json:"low"`
	Volume            int64     `json:"volume"`
	Session           string    `json:"session,omitempty"` // COMEX day/night label, metals only
	EarningsDate      string    `json:"earnings_date,omitempty"`
	EarningsDaysUntil int       `json:"earnings_days_until,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Label returns the preferred display name for the record.
func (q QuoteRecord) Label() string {
	if q.DisplayName != "" {
		return q.DisplayName
	}
	if q.Name != "" {
		return q.Name
	}
	return q.Symbol
}

// SectionPayload maps symbol to quote for one market section.
// A nil payload means "not fetched", an empty one means "fetched, no data".
type SectionPayload map[string]QuoteRecord

// Section keys served by the market-data endpoint.
const (
	SectionUSIndices     = "us_indices"
	SectionUSStocks      = "us_stocks"
	SectionTWMarkets     = "tw_markets"
	SectionInternational = "international_markets"
	SectionMetalsFutures = "metals_futures"
	SectionCrypto        = "crypto"
	SectionRatios        = "ratios"
)

// EarningsEntry is one upcoming earnings date, attached to the market summary.
type EarningsEntry struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Date      string `json:"date"` // YYYY-MM-DD
	DaysUntil int    `json:"days_until"`
}

// SkippedSymbol reports a symbol that was requested but returned no data,
// so config typos and environment differences are visible to the client.
type SkippedSymbol struct {
	Symbol  string `json:"symbol"`
	Section string `json:"section"`
	Name    string `json:"name"`
}

// MarketSummary is the market-data endpoint payload. Section fields are nil
// when the section was not requested; the client merges only non-nil sections.
type MarketSummary struct {
	USIndices          SectionPayload  `json:"us_indices,omitempty"`
	USStocks           SectionPayload  `json:"us_stocks,omitempty"`
	TWMarkets          SectionPayload  `json:"tw_markets,omitempty"`
	International      SectionPayload  `json:"international_markets,omitempty"`
	MetalsFutures      SectionPayload  `json:"metals_futures,omitempty"`
	Crypto             SectionPayload  `json:"crypto,omitempty"`
	Ratios             *RatioSummary   `json:"ratios,omitempty"`
	EarningsUpcoming   []EarningsEntry `json:"earnings_upcoming,omitempty"`
	EarningsUpcomingTW []EarningsEntry `json:"earnings_upcoming_tw,omitempty"`
	MetalsSession      string          `json:"metals_session,omitempty"`
	MetalsSessionET    string          `json:"metals_session_et,omitempty"`
	SkippedSymbols     []SkippedSymbol `json:"skipped_symbols"`
	Timestamp          time.Time       `json:"timestamp"`
}

// Sections returns the quote sections present in the summary, keyed by
// section name. Absent sections are omitted, never returned as empty maps.
func (m *MarketSummary) Sections() map[string]SectionPayload {
	out := make(map[string]SectionPayload)
	for key, payload := range map[string]SectionPayload{
		SectionUSIndices:     m.USIndices,
		SectionUSStocks:      m.USStocks,
		SectionTWMarkets:     m.TWMarkets,
		SectionInternational: m.International,
		SectionMetalsFutures: m.MetalsFutures,
		SectionCrypto:        m.Crypto,
	} {
		if payload != nil {
			out[key] = payload
		}
	}
	return out
}

// RatioRecord is one cross-asset ratio (gold/silver, ETH/BTC, ...) with its
// current value and the high/low over the configured lookback.
type RatioRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Current     float64 `json:"current"`
	RangeHigh   float64 `json:"range_high"`
	RangeLow    float64 `json:"range_low"`
	PeriodLabel string  `json:"period_label"`
	Error       string  `json:"error,omitempty"`
}

// RatioSummary is the ratios endpoint payload.
type RatioSummary struct {
	Ratios    []RatioRecord `json:"ratios"`
	Timestamp time.Time     `json:"timestamp"`
}

// RatioHistory is a resampled ratio time series for charting.
type RatioHistory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PeriodLabel string    `json:"period_label"`
	Dates       []string  `json:"dates"` // YYYY-MM-DD
	Values      []float64 `json:"values"`
}

// StockHistory is a close-price series for one symbol.
type StockHistory struct {
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Period string    `json:"period"`
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}
