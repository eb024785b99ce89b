package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"car-advisor/config"
	"car-advisor/metrics"
	"car-advisor/scraper"
	"car-advisor/services"
	"car-advisor/storage"
	"car-advisor/utils"
)

var scrapeFlags struct {
	chromeBinary string
	devtoolsURL  string
	headless     bool
	sources      []string
	timeout      time.Duration
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run every listing source once and store the new listings",
	RunE:  runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeFlags.chromeBinary, "chrome-binary", "", "Chrome/Chromium binary (default: $CHROME_BINARY or auto-detect)")
	f.StringVar(&scrapeFlags.devtoolsURL, "devtools-url", "", "Attach to a running browser instead of launching one (default: $CHROME_DEVTOOLS_URL)")
	f.BoolVar(&scrapeFlags.headless, "headless", true, "Run the browser headless")
	f.StringSliceVar(&scrapeFlags.sources, "sources", defaultSources, "Sources to scrape")
	f.DurationVar(&scrapeFlags.timeout, "timeout", 0, "Abort the whole run after this long (default: $RUN_TIMEOUT_MIN)")
}

func applyScrapeFlags(cmd *cobra.Command) func(*config.Config) {
	return func(c *config.Config) {
		f := cmd.Flags()
		if f.Changed("chrome-binary") {
			c.ChromeBinary = scrapeFlags.chromeBinary
		}
		if f.Changed("devtools-url") {
			c.DevToolsURL = scrapeFlags.devtoolsURL
		}
		if f.Changed("headless") {
			c.Headless = scrapeFlags.headless
		}
		if f.Changed("timeout") {
			c.RunTimeout = scrapeFlags.timeout
		}
	}
}

func scraperOptions(cfg *config.Config, logger *utils.Logger, m *metrics.Metrics) scraper.Options {
	return scraper.Options{
		NewRenderer: scraper.BrowserFactory(scraper.BrowserOptions{
			Binary:      cfg.ChromeBinary,
			DevToolsURL: cfg.DevToolsURL,
			Headless:    cfg.Headless,
			PageTimeout: cfg.PageTimeout,
			Settle:      2 * time.Second,
		}),
		Pacer:        scraper.NewPacer(cfg.MinDelay, cfg.MaxDelay),
		Cooldown:     scraper.NewPacer(cfg.BlockCooldownMin, cfg.BlockCooldownMax),
		Retry:        &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger},
		Logger:       logger,
		Metrics:      m,
		MaxPages:     cfg.MaxPages,
		BlockRetries: cfg.BlockRetries,
		SelectorsDir: cfg.SelectorsDir,
	}
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(applyScrapeFlags(cmd))
	if err != nil {
		return err
	}
	// A missing browser is a configuration error, so fail before any work.
	if cfg.DevToolsURL == "" {
		bin, err := scraper.ResolveBrowser(cfg.ChromeBinary)
		if err != nil {
			return err
		}
		cfg.ChromeBinary = bin
	}

	m := metrics.New()
	sources, err := buildSources(scrapeFlags.sources, scraperOptions(cfg, logger, m))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	logger.Info("=== Car listing ingestion starting ===")
	logger.Info("Config: sources %v | concurrency %d | max pages %d | delay %v-%v",
		scrapeFlags.sources, cfg.Concurrency, cfg.MaxPages, cfg.MinDelay, cfg.MaxDelay)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	insights := services.NewInsightService(logger)
	opts := services.IngestOptions{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
		Metrics:     m,
		Insights:    insights,
	}
	var snapshot *storage.CSVWriter
	if cfg.CSVOutputPath != "" {
		snapshot, err = storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			return fmt.Errorf("create CSV snapshot: %w", err)
		}
		defer snapshot.Close()
		opts.Snapshot = snapshot
	}

	res, runErr := services.NewIngestor(store, opts).Run(ctx, sources)
	if err := m.Push(cfg.PushgatewayURL, "caradvisor_scrape"); err != nil {
		logger.Warn("[metrics] Push to %s failed: %v", cfg.PushgatewayURL, err)
	}
	if runErr != nil {
		return runErr
	}

	for name, ferr := range res.Failures {
		logger.Warn("Source %s contributed nothing: %v", name, ferr)
	}
	if snapshot != nil {
		logger.Info("Snapshot: %d listings appended to %s", snapshot.Rows(), cfg.CSVOutputPath)
	}
	if res.Report != nil {
		insights.Print(cmd.OutOrStdout(), res.Report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Done. Run %s | %d collected | %d new\n\n",
		res.RunID, len(res.Listings), res.Inserted)
	return nil
}
