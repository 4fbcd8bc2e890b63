// Package metrics defines Prometheus counters/gauges for a Scheduler
// loop, grounded on firestige-Otus/internal/metrics/metrics.go
// (promauto-registered global vectors) — ambient observability, carried
// even when a dashboard UI around these counters is out of scope.
// Server exposes the default registry these vectors are registered with;
// nothing in the Scheduler loop or the stores updates them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksCompletedTotal counts tasks marked completed, per namespace.
	TasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopwork_tasks_completed_total",
			Help: "Total number of tasks marked completed.",
		},
		[]string{"namespace"},
	)

	// TasksFailedTotal counts tasks marked failed or quarantined, per
	// namespace.
	TasksFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopwork_tasks_failed_total",
			Help: "Total number of tasks marked failed or quarantined.",
		},
		[]string{"namespace", "status"},
	)

	// CircuitOpenTotal counts how many times a namespace's circuit
	// breaker tripped open.
	CircuitOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loopwork_circuit_open_total",
			Help: "Total number of times a circuit breaker opened.",
		},
		[]string{"namespace"},
	)

	// IterationDurationSeconds measures one scheduler iteration's
	// wall-clock duration, dispatch included.
	IterationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loopwork_iteration_duration_seconds",
			Help:    "Duration of one scheduler iteration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"namespace"},
	)

	// QueuedOfflineWrites tracks the current depth of the fallback
	// store's offline write queue.
	QueuedOfflineWrites = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loopwork_queued_offline_writes",
			Help: "Current number of writes pending in the offline queue.",
		},
		[]string{"namespace"},
	)
)
