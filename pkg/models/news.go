package models

import "time"

// NewsItem is one article pulled from an RSS feed.
type NewsItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// CompanyVolume ranks one company by news mention count.
type CompanyVolume struct {
	Symbol string     `json:"symbol"`
	Name   string     `json:"name"`
	Count  int        `json:"count"`
	Rank   int        `json:"rank"`
	News   []NewsItem `json:"news"`
}

// NewsVolumeSummary is the news-volume endpoint payload.
type NewsVolumeSummary struct {
	TopCompanies   []CompanyVolume `json:"top_companies"`
	Period         string          `json:"period"`
	TotalCompanies int             `json:"total_companies"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PremarketBrief summarizes one market's premarket news window.
type PremarketBrief struct {
	Market     string     `json:"market"` // "taiwan" or "us"
	Type       string     `json:"type"`   // e.g. "盤前" or "premarket"
	TradingDay bool       `json:"trading_day"`
	NewsCount  int        `json:"news_count"`
	News       []NewsItem `json:"news"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// PremarketSummary is the premarket-data endpoint payload.
type PremarketSummary struct {
	Taiwan    *PremarketBrief `json:"taiwan,omitempty"`
	US        *PremarketBrief `json:"us,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
