package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_tracker"

// Metrics holds the Prometheus counters, histograms, and gauges for the tracker.
type Metrics struct {
	Runs             *prometheus.CounterVec // labels: outcome={success,failure}
	ExtractErrors    *prometheus.CounterVec // labels: kind (domain.ErrorKind)
	ArchiveWrites    *prometheus.CounterVec // labels: artifact={report,check}
	AggregateSkipped prometheus.Counter
	DefaultedFields  *prometheus.CounterVec // labels: field={tested,positive}
	RunDuration      prometheus.Histogram
	LastSuccess      prometheus.Gauge

	// Values of the most recent report.
	Positive       prometheus.Gauge
	YesterdayRatio prometheus.Gauge

	// Collaborator failures, never fatal.
	NotifyFailures prometheus.Counter
	RenderFailures prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Batch runs by outcome.",
		}, []string{"outcome"}),
		ExtractErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_errors_total",
			Help:      "Fetch and extraction failures by error kind.",
		}, []string{"kind"}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Archive artifacts written, by artifact type.",
		}, []string{"artifact"}),
		AggregateSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_skipped_total",
			Help:      "Archive entries skipped by the aggregator because they could not be read.",
		}),
		DefaultedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defaulted_fields_total",
			Help:      "Unknown snapshot fields recorded as zero in a daily report.",
		}, []string{"field"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete batch run.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful batch run.",
		}),
		Positive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "positive_count",
			Help:      "Positive count of the most recently written report.",
		}),
		YesterdayRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "yesterday_ratio",
			Help:      "Day-over-day positive ratio of the most recent report, 0 when absent.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notification dispatch failures.",
		}),
		RenderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Report render or publish failures.",
		}),
	}
}

// NewMetrics creates and registers all tracker metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Collectors returns every metric, for registration or pushing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.ExtractErrors,
		m.ArchiveWrites,
		m.AggregateSkipped,
		m.DefaultedFields,
		m.RunDuration,
		m.LastSuccess,
		m.Positive,
		m.YesterdayRatio,
		m.NotifyFailures,
		m.RenderFailures,
	}
}
