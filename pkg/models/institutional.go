package models

import "time"

// InstitutionalDay is one trading day's institutional net buy/sell, in TWD.
type InstitutionalDay struct {
	Date       string `json:"date"` // YYYYMMDD
	ForeignNet int64  `json:"foreign_net"`
	TrustNet   int64  `json:"trust_net"`
	DealerNet  int64  `json:"dealer_net"`
	TotalNet   int64  `json:"total_net"`
	Uploaded   bool   `json:"uploaded"` // true when sourced from a local CSV upload
}

// InstitutionalSeries is the institutional-net endpoint payload: the
// year-to-date daily series plus running cumulative totals.
type InstitutionalSeries struct {
	Days              []InstitutionalDay `json:"days"`
	CumulativeTotal   []int64            `json:"cumulative_total"`
	CumulativeForeign []int64            `json:"cumulative_foreign"`
	Year              int                `json:"year"`
	LastError         string             `json:"last_error,omitempty"`
	UploadedDates     []string           `json:"uploaded_dates,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}
