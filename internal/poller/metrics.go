package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "kscope"

// metricsKind labels the metrics task in per-kind series
const metricsKind = "metrics"

// Metrics instruments the fetch cycles of the scheduler
type Metrics struct {
	// FetchAttempts counts fetches started, by kind
	FetchAttempts *prometheus.CounterVec
	// FetchFailures counts failed fetches by kind and failure class
	FetchFailures *prometheus.CounterVec
	// DroppedTicks counts due ticks dropped because a fetch was still running
	DroppedTicks *prometheus.CounterVec
	// DroppedResults counts results discarded for a retired generation or scope
	DroppedResults *prometheus.CounterVec
	// FetchDuration observes fetch latency by kind
	FetchDuration *prometheus.HistogramVec
}

// NewMetrics registers the scheduler collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "poller",
				Name:      "fetch_attempts_total",
				Help:      "Total number of fetches started by kind.",
			},
			[]string{"kind"},
		),
		FetchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "poller",
				Name:      "fetch_failures_total",
				Help:      "Total number of failed fetches by kind and failure class.",
			},
			[]string{"kind", "class"},
		),
		DroppedTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "poller",
				Name:      "dropped_ticks_total",
				Help:      "Due ticks dropped because the previous fetch of the kind was still running.",
			},
			[]string{"kind"},
		),
		DroppedResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "poller",
				Name:      "dropped_results_total",
				Help:      "Fetch results discarded because the context or namespace changed.",
			},
			[]string{"kind"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "poller",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetches in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
	}
}
