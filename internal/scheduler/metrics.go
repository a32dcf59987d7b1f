// Package scheduler – Prometheus instrumentation for the background loops.
// Label cardinality stays bounded: loops are a fixed set and results a fixed
// enum (posted, published, skipped, failed, ok).
package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	// tickTotal counts completed ticks per loop.
	tickTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of completed scheduler ticks.",
		},
		[]string{"loop"},
	)

	// taskTotal counts per-comment task outcomes in the auto-reply loop.
	taskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_tasks_total",
			Help: "Total number of scheduler tasks by outcome.",
		},
		[]string{"loop", "result"},
	)

	// tickDuration records tick duration in seconds per loop.
	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler ticks in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(tickTotal, taskTotal, tickDuration)
}
