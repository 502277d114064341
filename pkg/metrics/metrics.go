// Package metrics exposes the orchestrator's Prometheus instrumentation,
// following the package-level-vars-plus-registration style of the
// teacher's pkg/metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstancesTotal tracks tracker-owned instances by condition.
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "steward_instances_total",
			Help: "Total number of tracked instances by condition",
		},
		[]string{"condition"},
	)

	QueuePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "steward_queue_pending_total",
			Help: "Pending launch demand per run-spec",
		},
		[]string{"run_spec"},
	)

	QueueBackoffSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "steward_queue_backoff_seconds",
			Help: "Current backoff delay per run-spec",
		},
		[]string{"run_spec"},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_health_check_duration_seconds",
			Help:    "Duration of health check probes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol", "healthy"},
	)

	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_deployments_total",
			Help: "Total deployments by outcome",
		},
		[]string{"outcome"}, // success, failed, cancelled
	)

	DeploymentStepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "steward_deployment_step_duration_seconds",
			Help:    "Duration of a single deployment step",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_reconciliation_cycles_total",
			Help: "Total number of unreachable-policy reconciliation cycles run",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "steward_reconciliation_duration_seconds",
			Help:    "Duration of a single reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		InstancesTotal,
		QueuePending,
		QueueBackoffSeconds,
		HealthCheckDuration,
		DeploymentsTotal,
		DeploymentStepDuration,
		ReconciliationCyclesTotal,
		ReconciliationDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }

// Timer measures an operation's duration and reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveDuration records the elapsed time against the given histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

// Elapsed returns the time elapsed since the timer started.
func (t *Timer) Elapsed() time.Duration { return time.Since(t.start) }
