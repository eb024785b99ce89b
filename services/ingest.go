package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"car-advisor/metrics"
	"car-advisor/models"
	"car-advisor/scraper"
	"car-advisor/storage"
	"car-advisor/utils"
)

// IngestOptions configures an Ingestor. Only the store is mandatory.
type IngestOptions struct {
	// Concurrency bounds how many sources scrape at once; 0 means all.
	Concurrency int
	Normalizer  *Normalizer
	Logger      *utils.Logger
	Metrics     *metrics.Metrics
	// Snapshot, when set, receives every collected listing after the store write.
	Snapshot storage.SnapshotWriter
	// Insights, when set, attaches a MarketReport to the result.
	Insights *InsightService
}

// Ingestor runs every source, merges their output and writes it once.
type Ingestor struct {
	store storage.ListingStore
	opts  IngestOptions
}

func NewIngestor(store storage.ListingStore, opts IngestOptions) *Ingestor {
	if opts.Logger == nil {
		opts.Logger = utils.NewLogger()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = NewNormalizer(nil)
	}
	return &Ingestor{store: store, opts: opts}
}

type sourceResult struct {
	raws []*models.RawListing
	err  error
}

// Run scrapes all sources, tolerating individual failures, and inserts the
// new listings in one bulk call. An error is returned only when the store
// write fails; a run where every source failed inserts nothing and succeeds.
func (i *Ingestor) Run(ctx context.Context, sources []scraper.Source) (*models.IngestResult, error) {
	result := &models.IngestResult{
		RunID:    uuid.NewString(),
		Failures: make(map[string]error),
		Started:  time.Now(),
	}
	log := i.opts.Logger.With("run_id", result.RunID)
	log.Info("[ingest] Run starting with %d sources", len(sources))

	// Each goroutine owns one slot, so no locking is needed.
	results := make([]sourceResult, len(sources))
	var g errgroup.Group
	if i.opts.Concurrency > 0 {
		g.SetLimit(i.opts.Concurrency)
	}
	for idx, src := range sources {
		g.Go(func() error {
			results[idx] = i.scrapeOne(ctx, src, log)
			return nil
		})
	}
	_ = g.Wait()

	seen := utils.NewIDSet()
	for idx, src := range sources {
		name := src.Name()
		res := results[idx]
		if res.err != nil {
			result.Failures[name] = res.err
			i.opts.Metrics.IncFailure(name)
			log.Error("[ingest] Source %s failed: %v", name, res.err)
			continue
		}

		profile := src.Profile()
		kept := 0
		for _, raw := range res.raws {
			l, err := i.opts.Normalizer.Normalize(raw, profile)
			if err != nil {
				i.opts.Metrics.IncSkipped(name, "invalid")
				log.Warn("[ingest] Dropping %s record: %v", name, err)
				continue
			}
			if !seen.Add(l.ListingID) {
				i.opts.Metrics.IncSkipped(name, "duplicate")
				log.Debug("[ingest] Duplicate listing %s from %s skipped", l.ListingID, name)
				continue
			}
			result.Listings = append(result.Listings, l)
			kept++
		}
		log.Info("[ingest] Source %s: %d raw, %d kept", name, len(res.raws), kept)
	}

	if len(result.Listings) > 0 {
		n, err := i.store.InsertIfAbsent(ctx, result.Listings)
		if err != nil {
			result.Finished = time.Now()
			return result, fmt.Errorf("ingest run %s: %w", result.RunID, err)
		}
		result.Inserted = n
	}

	if i.opts.Snapshot != nil {
		if err := i.opts.Snapshot.WriteListings(result.Listings); err != nil {
			log.Warn("[ingest] Snapshot export failed: %v", err)
		}
	}
	if i.opts.Insights != nil {
		result.Report = i.opts.Insights.Generate(result.Listings)
	}

	result.Finished = time.Now()
	i.opts.Metrics.AddInserted(result.Inserted)
	i.opts.Metrics.ObserveRun(result.Finished.Sub(result.Started))
	log.Info("[ingest] Run done: %d collected, %d new, %d failed sources in %v",
		len(result.Listings), result.Inserted, len(result.Failures),
		result.Finished.Sub(result.Started).Round(time.Millisecond))
	return result, nil
}

// scrapeOne isolates a source so that a panic becomes that source's error.
func (i *Ingestor) scrapeOne(ctx context.Context, src scraper.Source, log *utils.Logger) (res sourceResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("[ingest] %s panic stack:\n%s", src.Name(), debug.Stack())
			res = sourceResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	raws, err := src.Scrape(ctx)
	return sourceResult{raws: raws, err: err}
}
