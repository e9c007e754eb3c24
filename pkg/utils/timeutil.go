// Package utils provides shared time-zone and formatting helpers.
package utils

import (
	"time"
)

// Eastern is the US Eastern market time zone.
var Eastern *time.Location

// Taipei is the Taiwan market time zone.
var Taipei *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fall back to fixed EST if the tz database is unavailable.
		Eastern = time.FixedZone("EST", -5*60*60)
	}
	Taipei, err = time.LoadLocation("Asia/Taipei")
	if err != nil {
		Taipei = time.FixedZone("CST", 8*60*60)
	}
}

// NowET returns the current time in US Eastern time.
func NowET() time.Time {
	return time.Now().In(Eastern)
}

// NowTaipei returns the current time in Taipei time.
func NowTaipei() time.Time {
	return time.Now().In(Taipei)
}

// FormatDate formats a time as "2006-01-02".
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatDateTime formats a time as "2006-01-02 15:04:05".
func FormatDateTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// ComexSession reports whether COMEX metals futures trade in the regular
// day session at t: Monday-Friday 8:20-13:30 ET. Everything else, weekends
// included, is the electronic night session.
func ComexSession(t time.Time) string {
	et := t.In(Eastern)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return "night"
	}
	minutes := et.Hour()*60 + et.Minute()
	if minutes >= 8*60+20 && minutes < 13*60+30 {
		return "day"
	}
	return "night"
}

// DaysUntil returns the whole-day distance from today (in loc) to the given
// YYYY-MM-DD date. Negative for past dates, zero for today.
func DaysUntil(date string, loc *time.Location) (int, error) {
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 0, err
	}
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return int(d.Sub(today).Hours() / 24), nil
}
