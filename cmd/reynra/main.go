package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SmillingSword/news-reynra/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reynra",
		Short: "Gaming news scraper and rewriter",
		Long: `reynra scrapes Indonesian gaming news sources, filters the articles,
rewrites them into original drafts and stores them for publication.

Features:
  • RSS and HTML sources with CSS or XPath selectors
  • Optional headless browser for JavaScript-rendered sites
  • AI rewrite with a deterministic template fallback
  • Duplicate detection by title and slug
  • Job retries with backoff and a queued worker pool
  • Postgres, MongoDB or in-memory storage
  • Prometheus metrics endpoint and an operations API`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(retryCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reynra %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Scraper:\n")
			fmt.Printf("  Max Articles:      %d per scrape\n", cfg.Scraper.MaxArticlesPerScrape)
			fmt.Printf("  Request Delay:     %s\n", cfg.Scraper.RequestDelay)
			fmt.Printf("  Min Content:       %d chars\n", cfg.Scraper.MinContentLength)
			fmt.Printf("  Job Timeout:       %s\n", cfg.Scraper.JobTimeout)
			fmt.Printf("  Sources File:      %s\n", cfg.SourcesPath)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Timeout:           %s\n", cfg.Fetcher.Timeout)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("  Browser:           %v\n", cfg.Fetcher.BrowserEnabled)
			fmt.Printf("\nAI Rewrite:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.AI.Enabled)
			fmt.Printf("  Provider:          %s\n", cfg.AI.Provider)
			fmt.Printf("  Model:             %s\n", cfg.AI.Model)
			fmt.Printf("  API Key:           %s\n", mask(cfg.AI.APIKey))
			fmt.Printf("\nQueue:\n")
			fmt.Printf("  Backend:           %s\n", cfg.Queue.Backend)
			fmt.Printf("  Workers:           %d\n", cfg.Queue.Workers)
			fmt.Printf("  Max Attempts:      %d\n", cfg.Queue.MaxAttempts)
			fmt.Printf("  Backoff:           %v\n", cfg.Queue.Backoff)
			fmt.Printf("\nScheduler:\n")
			fmt.Printf("  Scrape Cron:       %s\n", cfg.Scheduler.ScrapeCron)
			fmt.Printf("  Retry Cron:        %s\n", cfg.Scheduler.RetryCron)
			fmt.Printf("  Publish Cron:      %s (auto publish %v)\n", cfg.Publisher.PublishCron, cfg.Publisher.AutoPublish)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			fmt.Printf("\nAPI:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.API.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.API.Port)
			return nil
		},
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger from the logging section.
func setupLogger(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closeFn, nil
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}
