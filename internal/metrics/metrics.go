// Package metrics defines the Prometheus collectors for indexing and search
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync outcomes.
const (
	SyncParsed  = "parsed"
	SyncCached  = "cached"
	SyncError   = "error"
	SyncDeleted = "deleted"
	SyncPurged  = "purged"
)

// Metrics holds the collectors. Each instance owns its registry so tests and
// multiple servers in one process do not collide. All methods accept a nil
// receiver.
type Metrics struct {
	registry *prometheus.Registry

	SyncTotal          *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram
	IndexedDocuments   prometheus.Gauge
	BrokenLinksTotal   prometheus.Counter
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbweb_sync_total",
				Help: "Single-file syncs by outcome (parsed, cached, error, deleted, purged).",
			},
			[]string{"outcome"},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nbweb_reconcile_duration_seconds",
				Help:    "Full tree reconcile latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		IndexedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nbweb_indexed_documents",
				Help: "Number of document records after the last reconcile.",
			},
		),
		BrokenLinksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nbweb_broken_links_total",
				Help: "Outgoing links that did not resolve to an indexed document.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbweb_search_queries_total",
				Help: "Search queries by status (ok, insufficient, no_results).",
			},
			[]string{"status"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nbweb_search_latency_seconds",
				Help:    "Search latency in seconds, cache hits included.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nbweb_search_cache_hits_total",
				Help: "Search results served from the result cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nbweb_search_cache_misses_total",
				Help: "Search results computed from the index.",
			},
		),
	}

	m.registry.MustRegister(
		m.SyncTotal,
		m.ReconcileDuration,
		m.IndexedDocuments,
		m.BrokenLinksTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// Handler returns the scrape handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Sync counts one single-file sync outcome.
func (m *Metrics) Sync(outcome string) {
	if m == nil {
		return
	}
	m.SyncTotal.WithLabelValues(outcome).Inc()
}

// Reconciled records a finished tree walk.
func (m *Metrics) Reconciled(d time.Duration, documents int) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(d.Seconds())
	m.IndexedDocuments.Set(float64(documents))
}

// BrokenLink counts an unresolved outgoing link.
func (m *Metrics) BrokenLink() {
	if m == nil {
		return
	}
	m.BrokenLinksTotal.Inc()
}

// Searched records one query.
func (m *Metrics) Searched(status string, d time.Duration, cacheHit bool) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(status).Inc()
	m.SearchLatency.Observe(d.Seconds())
	if cacheHit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}
