// Package metrics bundles the Prometheus collectors for ingestion and serving.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics bundles Prometheus collectors on a dedicated registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	Registry         *prometheus.Registry
	PagesTotal       *prometheus.CounterVec
	RecordsScraped   *prometheus.CounterVec
	RecordsSkipped   *prometheus.CounterVec
	BlocksTotal      *prometheus.CounterVec
	AdapterFailures  *prometheus.CounterVec
	ListingsInserted prometheus.Counter
	RunDuration      prometheus.Histogram
	Predictions      *prometheus.CounterVec
}

// New constructs and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caradvisor_pages_total",
			Help: "Result pages rendered per source.",
		},
		[]string{"source"},
	)
	scraped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caradvisor_records_scraped_total",
			Help: "Raw listing records extracted per source.",
		},
		[]string{"source"},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caradvisor_records_skipped_total",
			Help: "Raw records dropped per source and reason.",
		},
		[]string{"source", "reason"},
	)
	blocks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caradvisor_blocks_total",
			Help: "Anti-bot block pages encountered per source.",
		},
		[]string{"source"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caradvisor_adapter_failures_total",
			Help: "Adapter runs that ended in an error.",
		},
		[]string{"source"},
	)
	inserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caradvisor_listings_inserted_total",
			Help: "Listings newly written to the store.",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caradvisor_ingest_duration_seconds",
			Help:    "Wall time of a full ingestion run.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		},
	)
	predictions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caradvisor_predictions_total",
			Help: "Predictions served by verdict.",
		},
		[]string{"verdict"},
	)

	registry.MustRegister(pages, scraped, skipped, blocks, failures, inserted, duration, predictions)

	return &Metrics{
		Registry:         registry,
		PagesTotal:       pages,
		RecordsScraped:   scraped,
		RecordsSkipped:   skipped,
		BlocksTotal:      blocks,
		AdapterFailures:  failures,
		ListingsInserted: inserted,
		RunDuration:      duration,
		Predictions:      predictions,
	}
}

func (m *Metrics) IncPage(source string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) AddScraped(source string, n int) {
	if m == nil {
		return
	}
	m.RecordsScraped.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncSkipped(source, reason string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) IncBlock(source string) {
	if m == nil {
		return
	}
	m.BlocksTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) IncFailure(source string) {
	if m == nil {
		return
	}
	m.AdapterFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) AddInserted(n int) {
	if m == nil {
		return
	}
	m.ListingsInserted.Add(float64(n))
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) IncPrediction(verdict string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(verdict).Inc()
}

// Push sends the registry to a Pushgateway. Batch runs end before a scrape
// would reach them, so they push instead.
func (m *Metrics) Push(url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.Registry).Push()
}
