package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "episeries"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	Areas           prometheus.Gauge

	// Ingestion metrics. Labels: feed={global,national}, label={CONFIRMED,...}.
	RowsIngested   *prometheus.CounterVec
	SmoothingFixes *prometheus.CounterVec
	ShortRows      *prometheus.CounterVec // labels: label
	IngestDuration prometheus.Histogram

	// Coordinate resolution metrics. Labels: label, source={county,state,geocoder}.
	GeoAdjustments    *prometheus.CounterVec
	GeoLookupFailures *prometheus.CounterVec // labels: label

	SnapshotCache *prometheus.CounterVec // labels: result={hit,miss}
	ExportRecords *prometheus.CounterVec // labels: sink={standard,transposed,kafka}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the build and load stages run, 0 otherwise.",
		}),
		Areas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "areas",
			Help:      "Number of areas in the current world, root included.",
		}),
		RowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Feed rows stored, by feed and measure.",
		}, []string{"feed", "label"}),
		SmoothingFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smoothing_fixes_total",
			Help:      "Values altered by smoothing, by feed and measure.",
		}, []string{"feed", "label"}),
		ShortRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_rows_total",
			Help:      "National feed rows with missing trailing dates, forward-filled.",
		}, []string{"label"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a full world build from the feeds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		GeoAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_adjustments_total",
			Help:      "Coordinates replaced from reference data, by measure and source.",
		}, []string{"label", "source"}),
		GeoLookupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_lookup_failures_total",
			Help:      "National feed nodes left with zero coordinates after every lookup failed.",
		}, []string{"label"}),
		SnapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Snapshot lookups by result.",
		}, []string{"result"}),
		ExportRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_records_total",
			Help:      "Records written by export sink.",
		}, []string{"sink"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when the geocoding fallback is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.Areas,
		m.RowsIngested,
		m.SmoothingFixes,
		m.ShortRows,
		m.IngestDuration,
		m.GeoAdjustments,
		m.GeoLookupFailures,
		m.SnapshotCache,
		m.ExportRecords,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
