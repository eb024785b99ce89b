package main

import (
	"context"
	"fmt"
	"strings"

	"car-advisor/config"
	"car-advisor/scraper"
	"car-advisor/scraper/autoscout"
	"car-advisor/scraper/gumtree"
	"car-advisor/storage"
	"car-advisor/utils"
)

// setup loads the environment, lets the command apply its flag overrides and
// validates the result before any work starts.
func setup(apply func(*config.Config)) (*config.Config, *utils.Logger, error) {
	cfg := config.Load()
	if rootFlags.debug {
		cfg.Debug = true
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := utils.NewLoggerWith(utils.LoggerOptions{Debug: cfg.Debug, Format: cfg.LogFormat})
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*storage.SQLStore, error) {
	store, err := storage.Open(ctx, storage.Options{
		Driver:       cfg.DatabaseDriver,
		DSN:          cfg.DSN(),
		PingAttempts: cfg.MaxRetries,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

var sourceFactories = map[string]func(scraper.Options) (scraper.Source, error){
	"gumtree": func(o scraper.Options) (scraper.Source, error) {
		return gumtree.New(o)
	},
	"autoscout24": func(o scraper.Options) (scraper.Source, error) {
		return autoscout.New(o)
	},
}

var defaultSources = []string{"gumtree", "autoscout24"}

// buildSources instantiates the named adapters in the given order.
func buildSources(names []string, opts scraper.Options) ([]scraper.Source, error) {
	if len(names) == 0 {
		names = defaultSources
	}
	seen := make(map[string]bool, len(names))
	var sources []scraper.Source
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		factory, ok := sourceFactories[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown source %q", config.ErrInvalid, n)
		}
		src, err := factory(opts)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", n, err)
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources selected", config.ErrInvalid)
	}
	return sources, nil
}
