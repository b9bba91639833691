// Package metrics defines the Prometheus metric collectors used by the
// indexer and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a sync process.
type Metrics struct {
	SyncRunsTotal         *prometheus.CounterVec
	PagesTotal            prometheus.Counter
	PageDuration          prometheus.Histogram
	RecordsIndexedTotal   prometheus.Counter
	RecordsSkippedTotal   *prometheus.CounterVec
	HoldingsFetchedTotal  prometheus.Counter
	SinkErrorsTotal       prometheus.Counter
	WatermarkTimestamp    prometheus.Gauge
	WatermarkID           prometheus.Gauge
	TransformCacheEntries prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bix_sync_runs_total",
				Help: "Sync runs by mode (full, incremental) and outcome.",
			},
			[]string{"mode", "status"},
		),
		PagesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bix_pages_total",
				Help: "Record pages processed.",
			},
		),
		PageDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bix_page_duration_seconds",
				Help:    "Time to fetch, extract and index one page of records.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		RecordsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bix_records_indexed_total",
				Help: "Records upserted into the search index.",
			},
		),
		RecordsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bix_records_skipped_total",
				Help: "Records skipped by reason.",
			},
			[]string{"reason"},
		),
		HoldingsFetchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bix_holdings_fetched_total",
				Help: "Grouped holding rows fetched.",
			},
		),
		SinkErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bix_sink_errors_total",
				Help: "Failed upsert attempts against the search index.",
			},
		),
		WatermarkTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bix_watermark_edit_date_seconds",
				Help: "Edit date of the last indexed record, as a unix timestamp.",
			},
		),
		WatermarkID: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bix_watermark_record_id",
				Help: "Identifier of the last indexed record.",
			},
		),
		TransformCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bix_transform_cache_entries",
				Help: "Document formats loaded into the transform cache.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bix_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.SyncRunsTotal,
		m.PagesTotal,
		m.PageDuration,
		m.RecordsIndexedTotal,
		m.RecordsSkippedTotal,
		m.HoldingsFetchedTotal,
		m.SinkErrorsTotal,
		m.WatermarkTimestamp,
		m.WatermarkID,
		m.TransformCacheEntries,
		m.CircuitBreakerState,
	)

	return m
}

// NewNop returns collectors registered with a throwaway registry, for tests
// and callers that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
