package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	UnitsCompleted    *prometheus.CounterVec // labels: dataset, result={success,not_available,skipped,failed}
	RecordsNormalized *prometheus.CounterVec // labels: dataset
	FailuresLogged    *prometheus.CounterVec // labels: dataset, stage
	RunActive         prometheus.Gauge

	// Fetcher metrics.
	FetchRequests *prometheus.CounterVec // labels: dataset, outcome={success,not_available,error}
	FetchRetries  prometheus.Counter
	StagingCache  *prometheus.CounterVec   // labels: dataset, result={hit,miss}
	FetchDuration *prometheus.HistogramVec // labels: dataset

	// Per-unit processing metrics.
	UnitDuration *prometheus.HistogramVec // labels: dataset, step={download,process}

	// Sink metrics.
	SinkRecords *prometheus.CounterVec // labels: sink={kafka,postgres}, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UnitsCompleted,
		m.RecordsNormalized,
		m.FailuresLogged,
		m.RunActive,
		m.FetchRequests,
		m.FetchRetries,
		m.StagingCache,
		m.FetchDuration,
		m.UnitDuration,
		m.SinkRecords,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UnitsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "units_completed_total",
			Help:      "Work units completed, by dataset and result.",
		}, []string{"dataset", "result"}),
		RecordsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "records_normalized_total",
			Help:      "Canonical records produced, by dataset.",
		}, []string{"dataset"}),
		FailuresLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "failures_logged_total",
			Help:      "Failure-log entries written, by dataset and stage.",
		}, []string{"dataset", "stage"}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_etl",
			Name:      "run_active",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "fetch_requests_total",
			Help:      "Archive fetches by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "fetch_retries_total",
			Help:      "Fetch attempts beyond the first, across all datasets.",
		}),
		StagingCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "staging_cache_total",
			Help:      "Staging-area lookups by dataset and result.",
		}, []string{"dataset", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "station_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Archive fetch duration in seconds, network fetches only.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"dataset"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "station_etl",
			Name:      "unit_duration_seconds",
			Help:      "Duration of one work unit end to end.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"dataset", "step"}),
		SinkRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_etl",
			Name:      "sink_records_total",
			Help:      "Canonical records delivered to optional sinks, by outcome.",
		}, []string{"sink", "outcome"}),
	}
}
