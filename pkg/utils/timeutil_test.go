package utils

import (
	"testing"
	"time"
)

func TestComexSessionDay(t *testing.T) {
	// Wednesday 10:00 ET falls in the regular session.
	et := time.Date(2026, 8, 26, 10, 0, 0, 0, Eastern)
	if got := ComexSession(et); got != "day" {
		t.Fatalf("got %q, want day", got)
	}
}

func TestComexSessionNight(t *testing.T) {
	cases := []time.Time{
		time.Date(2026, 8, 26, 7, 0, 0, 0, Eastern),  // before 8:20
		time.Date(2026, 8, 26, 14, 0, 0, 0, Eastern), // after 13:30
		time.Date(2026, 8, 29, 10, 0, 0, 0, Eastern), // Saturday
	}
	for _, et := range cases {
		if got := ComexSession(et); got != "night" {
			t.Fatalf("%v: got %q, want night", et, got)
		}
	}
}

func TestComexSessionBoundaries(t *testing.T) {
	open := time.Date(2026, 8, 26, 8, 20, 0, 0, Eastern)
	if got := ComexSession(open); got != "day" {
		t.Fatalf("8:20 ET: got %q, want day", got)
	}
	close := time.Date(2026, 8, 26, 13, 30, 0, 0, Eastern)
	if got := ComexSession(close); got != "night" {
		t.Fatalf("13:30 ET: got %q, want night", got)
	}
}

func TestDaysUntil(t *testing.T) {
	today := time.Now().In(Eastern)
	in3 := today.AddDate(0, 0, 3).Format("2006-01-02")
	got, err := DaysUntil(in3, Eastern)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestDaysUntilInvalid(t *testing.T) {
	if _, err := DaysUntil("not-a-date", Eastern); err == nil {
		t.Fatal("expected parse error")
	}
}
