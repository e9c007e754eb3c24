package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wyhuang/marketdash/internal/loader"
	"github.com/wyhuang/marketdash/pkg/models"
)

// --- Dashboard Command ---

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the dashboard in the terminal",
	Long: `Fetch the dashboard from a running marketdash server and render it
as text. Quote sections load in three priority stages, then the heavier
background sections run one at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		sortBy, _ := cmd.Flags().GetString("sort")
		baseURL, _ := cmd.Flags().GetString("server")
		if baseURL == "" {
			baseURL = cfg.Loader.BaseURL
		}
		if baseURL == "" {
			baseURL = "http://" + cfg.API.Addr()
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runDashboard(ctx, baseURL, sortBy, refresh)
	},
}

func init() {
	dashboardCmd.Flags().Bool("refresh", false, "bypass server-side caches")
	dashboardCmd.Flags().String("sort", loader.SortSymbolAsc, "section sort: symbolAsc, priceDesc, priceAsc, percentDesc, percentAsc, volumeDesc")
	dashboardCmd.Flags().String("server", "", "dashboard server URL (default from config)")
}

func runDashboard(ctx context.Context, baseURL, sortBy string, refresh bool) error {
	client := loader.NewClient(baseURL)
	view := loader.NewTextView(os.Stdout, sortBy)
	snapshot := loader.NewSnapshot()

	stages := loader.DefaultStages(
		time.Duration(cfg.Loader.Stage1TimeoutSec)*time.Second,
		time.Duration(cfg.Loader.Stage2TimeoutSec)*time.Second,
	)
	staged := loader.NewStagedLoader(client, snapshot, view, stages)

	// Initial render shows every section as loading.
	view.RenderSnapshot(snapshot.State())
	if err := staged.Load(ctx, refresh); err != nil {
		// Staged sections already carry the error; the background
		// sections still get their chance below.
		fmt.Fprintln(os.Stdout)
	}

	seq := loader.NewSequencer(backgroundTasks(client), time.Duration(cfg.Loader.TaskPauseMS)*time.Millisecond)
	return seq.RunAfter(ctx, time.Duration(cfg.Loader.InitialDelayMS)*time.Millisecond, refresh)
}

// backgroundTasks builds the sequencer's task list. Each task fetches one
// heavy section under its own timeout and prints it on success.
func backgroundTasks(client *loader.Client) []loader.SectionTask {
	timeout := time.Duration(cfg.Loader.SectionTimeoutSec) * time.Second
	withTimeout := func(run func(ctx context.Context, refresh bool) error) func(context.Context, bool) error {
		return func(ctx context.Context, refresh bool) error {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return run(ctx, refresh)
		}
	}

	return []loader.SectionTask{
		{Name: "economic-calendar", Run: withTimeout(func(ctx context.Context, refresh bool) error {
			cal, err := client.FetchEconCalendar(ctx, refresh)
			if err != nil {
				printSectionError("Economic Calendar", err)
				return err
			}
			printCalendar(cal)
			return nil
		})},
		{Name: "institutional-net", Run: withTimeout(func(ctx context.Context, refresh bool) error {
			series, err := client.FetchInstitutionalNet(ctx, refresh)
			if err != nil {
				printSectionError("Institutional Net", err)
				return err
			}
			printInstitutional(series)
			return nil
		})},
		{Name: "ir-meetings", Run: withTimeout(func(ctx context.Context, refresh bool) error {
			timeline, err := client.FetchIRMeetings(ctx, refresh)
			if err != nil {
				printSectionError("IR Meetings", err)
				return err
			}
			printIRTimeline(timeline)
			return nil
		})},
		{Name: "premarket", Run: withTimeout(func(ctx context.Context, refresh bool) error {
			summary, err := client.FetchPremarket(ctx, refresh)
			if err != nil {
				printSectionError("Premarket", err)
				return err
			}
			printPremarket(summary)
			return nil
		})},
		{Name: "news-volume", Run: withTimeout(func(ctx context.Context, refresh bool) error {
			summary, err := client.FetchNewsVolume(ctx, refresh)
			if err != nil {
				printSectionError("News Volume", err)
				return err
			}
			printNewsVolume(summary)
			return nil
		})},
	}
}

func printSectionError(title string, err error) {
	fmt.Printf("\n%s\n  error: %v\n", title, err)
}

func printCalendar(cal *models.EconCalendar) {
	fmt.Println("\nEconomic Calendar")
	if len(cal.Upcoming) == 0 {
		fmt.Println("  no upcoming releases")
		return
	}
	for _, ev := range cal.Upcoming {
		mark := ""
		if ev.IsEstimated {
			mark = " (est.)"
		}
		fmt.Printf("  %s  %s %s  in %d days%s\n", ev.Date, ev.Name, ev.TimeET, ev.DaysUntil, mark)
	}
}

func printNewsVolume(summary *models.NewsVolumeSummary) {
	fmt.Printf("\nNews Volume (%s)\n", summary.Period)
	for _, c := range summary.TopCompanies {
		fmt.Printf("  #%d %s (%s): %d mentions\n", c.Rank, c.Name, c.Symbol, c.Count)
	}
}

func printPremarket(summary *models.PremarketSummary) {
	fmt.Println("\nPremarket")
	for _, brief := range []*models.PremarketBrief{summary.Taiwan, summary.US} {
		if brief == nil {
			continue
		}
		day := "holiday"
		if brief.TradingDay {
			day = "trading day"
		}
		fmt.Printf("  %s (%s): %d articles\n", brief.Market, day, brief.NewsCount)
		for i, item := range brief.News {
			if i >= 5 {
				fmt.Printf("    ... %d more\n", len(brief.News)-i)
				break
			}
			fmt.Printf("    - %s (%s)\n", item.Title, item.Source)
		}
	}
}

func printIRTimeline(timeline *models.IRTimeline) {
	fmt.Printf("\nIR Meetings (%d total)\n", timeline.TotalMeetings)
	for _, day := range timeline.Timeline {
		fmt.Printf("  %s (in %d days)\n", day.Date, day.DaysUntil)
		for _, m := range day.Meetings {
			fmt.Printf("    %s %s\n", m.Symbol, m.Name)
		}
	}
}

func printInstitutional(series *models.InstitutionalSeries) {
	fmt.Printf("\nInstitutional Net %d (%d days)\n", series.Year, len(series.Days))
	if n := len(series.CumulativeTotal); n > 0 {
		fmt.Printf("  cumulative total:   %d\n", series.CumulativeTotal[n-1])
		fmt.Printf("  cumulative foreign: %d\n", series.CumulativeForeign[n-1])
	}
	if series.LastError != "" {
		fmt.Printf("  last fetch error: %s\n", series.LastError)
	}
}
