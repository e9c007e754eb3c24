// marketdash — personal market dashboard
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wyhuang/marketdash/api"
	"github.com/wyhuang/marketdash/internal/config"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/internal/sec"
	"github.com/wyhuang/marketdash/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketdash",
	Short: "marketdash — personal market dashboard for US and Taiwan markets",
	Long: `marketdash serves and renders a personal market dashboard:
US and Taiwan quotes, cross-asset ratios, the US economic calendar,
Taiwan news volume, premarket briefs, IR meetings, institutional flows,
and SEC quarterly filings.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			level = override
		}
		logger.Init(logger.Options{
			Level:  level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(filingsCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marketdash %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		api.Version = version
		srv := api.NewServer(cfg)
		return srv.ListenAndServe(cfg.API.Addr())
	},
}

// --- Filings Command ---

var filingsCmd = &cobra.Command{
	Use:   "filings [ticker]",
	Short: "List recent 10-Q filings for a US ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		client := sec.NewClient(cfg.Sources.SECUserAgent)
		filings, err := client.Recent10Q(ctx, args[0], limit)
		if err != nil {
			return err
		}
		if len(filings) == 0 {
			fmt.Printf("no 10-Q filings found for %s\n", strings.ToUpper(args[0]))
			return nil
		}

		fmt.Printf("10-Q filings for %s (CIK %s)\n", filings[0].Ticker, filings[0].CIK)
		for _, f := range filings {
			fmt.Printf("  %s  %s  filed %s\n", f.FiscalPeriod, f.ReportDate, f.FilingDate)
			if f.DocumentURL != "" {
				fmt.Printf("    %s\n", f.DocumentURL)
			}
		}
		return nil
	},
}

func init() {
	filingsCmd.Flags().Int("limit", 4, "number of filings to list")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  marketdash — Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:    %s (%s)\n", version, commit)
		fmt.Printf("  Time (ET):  %s\n", utils.FormatDateTime(utils.NowET()))
		fmt.Printf("  Time (TW):  %s\n", utils.FormatDateTime(utils.NowTaipei()))
		fmt.Println()
		fmt.Println("  Configuration:")
		fmt.Printf("    API Server:   %s\n", cfg.API.Addr())
		fmt.Printf("    Loader URL:   %s\n", cfg.Loader.BaseURL)
		fmt.Printf("    Finnhub key:  %s\n", maskKey(cfg.Sources.FinnhubKey))
		fmt.Printf("    SEC UA:       %s\n", orUnset(cfg.Sources.SECUserAgent))
		fmt.Printf("    IR CSV dir:   %s\n", orUnset(cfg.IR.CSVDir))
		fmt.Printf("    Upload dir:   %s\n", orUnset(cfg.Institutional.UploadDir))
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func orUnset(v string) string {
	if v == "" {
		return "not set"
	}
	return v
}
