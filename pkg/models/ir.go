package models

import "time"

// IRMeeting is one investor-relations briefing read from the local CSV drop.
type IRMeeting struct {
	Symbol   string `json:"symbol" csv:"公司代號"`
	Name     string `json:"name" csv:"公司名稱"`
	DateRaw  string `json:"-" csv:"召開日期"`
	Location string `json:"location,omitempty" csv:"召開地點"`
	Note     string `json:"note,omitempty" csv:"備註"`
	Date     string `json:"date"` // resolved YYYY-MM-DD
}

// IRDay groups the meetings held on one date.
type IRDay struct {
	Date      string      `json:"date"`
	DaysUntil int         `json:"days_until"`
	Meetings  []IRMeeting `json:"meetings"`
}

// IRDateRange is the first/last date covered by a timeline.
type IRDateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// IRTimeline is the ir-meetings endpoint payload.
type IRTimeline struct {
	Timeline      []IRDay     `json:"timeline"`
	TotalMeetings int         `json:"total_meetings"`
	DateRange     IRDateRange `json:"date_range"`
	Timestamp     time.Time   `json:"timestamp"`
}
