package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Coordinator
	CoordinatorOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_outcomes_total",
			Help: "Participation requests by operation and outcome (confirmed, waitlisted, ok, or a rejection reason)",
		},
		[]string{"operation", "outcome"},
	)

	CoordinatorCommitConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_commit_conflicts_total",
			Help: "Optimistic commit conflicts retried by the coordinator",
		},
		[]string{"operation"},
	)

	CoordinatorGateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordinator_gate_wait_seconds",
			Help:    "Time spent waiting for the per-activity serialization point",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	CoordinatorGateTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_gate_timeouts_total",
			Help: "Requests that gave up before acquiring the per-activity serialization point",
		},
	)

	// Notifier
	NotifierSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_subscribers",
			Help: "Live activity subscriptions",
		},
	)

	NotifierPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_events_published_total",
			Help: "Activity events published to the hub",
		},
	)

	NotifierDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_updates_dropped_total",
			Help: "Updates dropped from full subscriber queues",
		},
	)

	NotifierResyncs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifier_resyncs_total",
			Help: "Subscriptions flagged to re-fetch full state after an overflow",
		},
	)

	// Lifecycle jobs
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_lifecycle_transitions_total",
			Help: "Activity status changes applied by lifecycle jobs",
		},
		[]string{"status"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Open activity watch connections",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
