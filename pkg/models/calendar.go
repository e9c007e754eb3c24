package models

import "time"

// EconEvent is one scheduled economic data release.
type EconEvent struct {
	Indicator   string `json:"indicator"`    // e.g. "CPI"
	Name        string `json:"name"`         // display name
	Source      string `json:"source"`       // "BLS", "BEA", "Fed", "Census", "ISM"
	Date        string `json:"date"`         // YYYY-MM-DD
	TimeET      string `json:"time_et"`      // e.g. "08:30 ET"
	DaysUntil   int    `json:"days_until"`   // negative when past
	IsEstimated bool   `json:"is_estimated"` // true when derived from the typical schedule

	// CPI context, attached to CPI events when FRED is configured.
	PrevMonthValue string `json:"prev_month_value,omitempty"` // MoM change, e.g. "0.20%"
	PrevYearValue  string `json:"prev_year_value,omitempty"`  // YoY change, e.g. "3.20%"
	ForecastValue  string `json:"forecast_value,omitempty"`
	ForecastHint   string `json:"forecast_hint,omitempty"`    // where to look when no forecast source is wired
}

// EconCalendar is the economic-calendar endpoint payload.
type EconCalendar struct {
	Upcoming  []EconEvent `json:"upcoming"`
	Past      []EconEvent `json:"past"`
	Timestamp time.Time   `json:"timestamp"`
}
