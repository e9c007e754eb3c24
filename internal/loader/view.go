package loader

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/wyhuang/marketdash/pkg/models"
)

// View receives full snapshot states. Every render replaces the previous
// output entirely; there is no incremental patching.
type View interface {
	RenderSnapshot(state *RenderState)
	ShowBanner(msg string)
}

var sectionTitles = map[string]string{
	models.SectionUSIndices:     "US Indices",
	models.SectionUSStocks:      "US Stocks",
	models.SectionTWMarkets:     "Taiwan Markets",
	models.SectionInternational: "International Markets",
	models.SectionMetalsFutures: "Metals Futures",
	models.SectionCrypto:        "Crypto",
	models.SectionRatios:        "Ratios",
}

// TextView renders the dashboard as plain text. Safe for concurrent use.
type TextView struct {
	mu        sync.Mutex
	w         io.Writer
	transform string
}

// NewTextView creates a text renderer writing to w, ordering each section's
// rows with the given sort transform.
func NewTextView(w io.Writer, transform string) *TextView {
	return &TextView{w: w, transform: transform}
}

// ShowBanner prints a prominent one-line error banner.
func (v *TextView) ShowBanner(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, "\n!! %s\n", msg)
}

// RenderSnapshot writes the whole dashboard. Sections without data show a
// loading placeholder, sections with a recorded error show the error text.
func (v *TextView) RenderSnapshot(state *RenderState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !state.Timestamp.IsZero() {
		fmt.Fprintf(v.w, "\n=== Market Dashboard @ %s ===\n", state.Timestamp.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(v.w, "\n=== Market Dashboard ===\n")
	}

	for _, sec := range state.Sections {
		title := sectionTitles[sec.Key]
		if title == "" {
			title = sec.Key
		}
		if sec.Key == models.SectionMetalsFutures && state.MetalsSession != "" {
			title = fmt.Sprintf("%s (%s, %s ET)", title, state.MetalsSession, state.MetalsSessionET)
		}
		fmt.Fprintf(v.w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))

		if sec.Err != "" {
			fmt.Fprintf(v.w, "  error: %s\n", sec.Err)
			if !sec.Loaded() {
				continue
			}
		}
		if !sec.Loaded() {
			fmt.Fprintln(v.w, "  loading...")
			continue
		}
		if sec.Key == models.SectionRatios {
			v.renderRatios(sec.Ratios)
			continue
		}
		v.renderQuotes(sec.Payload)
	}

	v.renderEarnings("Upcoming Earnings (US)", state.Earnings)
	v.renderEarnings("Upcoming Earnings (TW)", state.EarningsTW)

	if len(state.Skipped) > 0 {
		fmt.Fprintln(v.w, "\nSkipped symbols:")
		for _, s := range state.Skipped {
			fmt.Fprintf(v.w, "  %s (%s) in %s\n", s.Symbol, s.Name, s.Section)
		}
	}
}

func (v *TextView) renderQuotes(payload models.SectionPayload) {
	tw := tabwriter.NewWriter(v.w, 2, 4, 2, ' ', 0)
	for _, q := range SortRecords(payload, v.transform) {
		arrow := " "
		if q.Change > 0 {
			arrow = "+"
		} else if q.Change < 0 {
			arrow = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%.2f\t%s%.2f (%.2f%%)", q.Symbol, q.Label(), q.CurrentPrice, arrow, abs(q.Change), q.ChangePercent)
		if q.EarningsDate != "" {
			fmt.Fprintf(tw, "\tearnings %s (%dd)", q.EarningsDate, q.EarningsDaysUntil)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func (v *TextView) renderRatios(summary *models.RatioSummary) {
	tw := tabwriter.NewWriter(v.w, 2, 4, 2, ' ', 0)
	for _, r := range summary.Ratios {
		if r.Error != "" {
			fmt.Fprintf(tw, "  %s\terror: %s\n", r.Name, r.Error)
			continue
		}
		fmt.Fprintf(tw, "  %s\t%.4f %s\trange %.4f - %.4f (%s)\n", r.Name, r.Current, r.Unit, r.RangeLow, r.RangeHigh, r.PeriodLabel)
	}
	tw.Flush()
}

func (v *TextView) renderEarnings(title string, entries []models.EarningsEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(v.w, "\n%s\n", title)
	for _, e := range entries {
		fmt.Fprintf(v.w, "  %s %s in %d days (%s)\n", e.Symbol, e.Name, e.DaysUntil, e.Date)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
