package ir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/pkg/utils"
)

func TestParseROCDate(t *testing.T) {
	cases := map[string]string{
		"115/01/28":           "2026-01-28",
		"115/01/13 至 115/01/20": "2026-01-13",
		"115/02/03~115/02/05": "2026-02-03",
		"99/12/31":            "2010-12-31",
		"2026/03/15":          "2026-03-15",
	}
	for in, want := range cases {
		got, err := ParseROCDate(in)
		if err != nil {
			t.Errorf("ParseROCDate(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseROCDate(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "not a date", "115/13/40"} {
		if _, err := ParseROCDate(bad); err == nil {
			t.Errorf("ParseROCDate(%q) expected error", bad)
		}
	}
}

// writeBig5CSV encodes UTF-8 CSV content to Big5 and writes it to dir.
func writeBig5CSV(t *testing.T, dir, name, content string) {
	t.Helper()
	encoded, _, err := transform.String(traditionalchinese.Big5.NewEncoder(), content)
	if err != nil {
		t.Fatalf("encode big5: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(encoded), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testFetcher(t *testing.T, dir string) *Fetcher {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.IR.CSVDir = dir
	cfg.IR.MonthsAhead = 3
	return New(cfg)
}

func TestLoadFileSkipsPreamble(t *testing.T) {
	dir := t.TempDir()
	writeBig5CSV(t, dir, "1月.csv", "法人說明會行事曆\n"+
		"公司代號,公司名稱,召開日期,召開地點,備註\n"+
		"=\"2330\",台積電,115/01/16,台北,線上\n"+
		"2317,鴻海,115/01/20 至 115/01/22,新北,\n"+
		",missing code,115/01/25,,\n")

	f := testFetcher(t, dir)
	meetings, err := f.loadFile(filepath.Join(dir, "1月.csv"))
	if err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	if len(meetings) != 2 {
		t.Fatalf("got %d meetings, want 2: %+v", len(meetings), meetings)
	}
	if meetings[0].Symbol != "2330" {
		t.Errorf("symbol = %q, want 2330 (wrapper stripped)", meetings[0].Symbol)
	}
	if meetings[0].Date != "2026-01-16" {
		t.Errorf("date = %q", meetings[0].Date)
	}
	if meetings[1].Date != "2026-01-20" {
		t.Errorf("range resolves to first date, got %q", meetings[1].Date)
	}
}

func TestTimelineWindowAndGrouping(t *testing.T) {
	dir := t.TempDir()
	writeBig5CSV(t, dir, "schedule.csv",
		"公司代號,公司名稱,召開日期,召開地點,備註\n"+
			"2330,台積電,115/01/16,台北,\n"+
			"2317,鴻海,115/01/16,新北,\n"+
			"2454,聯發科,115/02/10,新竹,\n"+
			"1101,台泥,114/06/01,台北,\n") // well in the past

	f := testFetcher(t, dir)
	f.now = func() time.Time {
		return time.Date(2026, 1, 10, 9, 0, 0, 0, utils.Taipei)
	}

	tl, err := f.Timeline(false)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if tl.TotalMeetings != 3 {
		t.Fatalf("total = %d, want 3", tl.TotalMeetings)
	}
	if len(tl.Timeline) != 2 {
		t.Fatalf("days = %d, want 2", len(tl.Timeline))
	}
	first := tl.Timeline[0]
	if first.Date != "2026-01-16" || len(first.Meetings) != 2 {
		t.Errorf("first day = %+v", first)
	}
	if first.DaysUntil != 6 {
		t.Errorf("days_until = %d, want 6", first.DaysUntil)
	}
	if tl.DateRange.Start != "2026-01-16" || tl.DateRange.End != "2026-02-10" {
		t.Errorf("range = %+v", tl.DateRange)
	}
}

func TestTimelineEmptyDir(t *testing.T) {
	f := testFetcher(t, t.TempDir())
	tl, err := f.Timeline(false)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if tl.TotalMeetings != 0 || len(tl.Timeline) != 0 {
		t.Errorf("expected empty timeline, got %+v", tl)
	}
}
