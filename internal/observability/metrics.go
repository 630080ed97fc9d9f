package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	StatesProcessed  prometheus.Counter
	StateErrors      prometheus.Counter
	InvalidRecords   prometheus.Counter
	PlotsExtracted   prometheus.Counter
	SummariesLoaded  prometheus.Counter
	ExtractRetries   prometheus.Counter
	PipelineRunning  prometheus.Gauge
	IdentityGroups   prometheus.Histogram
	StateDuration    prometheus.Histogram
	FireStageSeconds *prometheus.HistogramVec // labels: stage={load,fit,historical,scenario}
}

func newMetrics() *Metrics {
	return &Metrics{
		StatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fia_etl",
			Name:      "states_processed_total",
			Help:      "Total states aggregated and loaded.",
		}),
		StateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fia_etl",
			Name:      "state_errors_total",
			Help:      "Total states that failed to extract, aggregate, or load.",
		}),
		InvalidRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fia_etl",
			Name:      "invalid_records_total",
			Help:      "Total states rejected because a record had no control number.",
		}),
		PlotsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fia_etl",
			Name:      "plots_extracted_total",
			Help:      "Total plot records read from the source.",
		}),
		SummariesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fia_etl",
			Name:      "summaries_loaded_total",
			Help:      "Total condition summaries written to the sink.",
		}),
		ExtractRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fia_etl",
			Name:      "extract_retries_total",
			Help:      "Total extract attempts retried after a failure.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fia_etl",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		IdentityGroups: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fia_etl",
			Name:      "identity_groups",
			Help:      "Distinct plot re-measurement chains among a state's summaries.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		StateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fia_etl",
			Name:      "state_duration_seconds",
			Help:      "Duration of a complete extract-aggregate-load cycle for one state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		FireStageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fia_etl",
			Name:      "fire_stage_duration_seconds",
			Help:      "Duration of fire risk evaluation stages.",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300},
		}, []string{"stage"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StatesProcessed,
		m.StateErrors,
		m.InvalidRecords,
		m.PlotsExtracted,
		m.SummariesLoaded,
		m.ExtractRetries,
		m.PipelineRunning,
		m.IdentityGroups,
		m.StateDuration,
		m.FireStageSeconds,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
