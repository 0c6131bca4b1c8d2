package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox related metrics
	OutboxEventsDispatched prometheus.Counter
	OutboxEventsFailed     prometheus.Counter
	OutboxDrainLatency     prometheus.Histogram
	OutboxBacklog          prometheus.Gauge
	OutboxAttempts         *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		OutboxEventsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_dispatched_total",
			Help:      "Total number of outbox events confirmed published",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_publish_failures_total",
			Help:      "Total number of failed publish attempts",
		}),
		OutboxDrainLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_drain_duration_seconds",
			Help:      "Time spent draining one batch of outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_backlog",
			Help:      "Current number of undispatched outbox events",
		}),
		OutboxAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_publish_attempts_total",
			Help:      "Total number of publish attempts",
		}, []string{"event_type"}),

		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of resolved reads served from cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of resolved reads that fell through to the store",
		}),
	}
}

// NewMetricsWithRegistry registers against a caller-supplied registry,
// used by tests to avoid duplicate registration panics.
func NewMetricsWithRegistry(namespace, subsystem string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OutboxEventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "outbox_events_dispatched_total",
			Help: "Total number of outbox events confirmed published",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "outbox_publish_failures_total",
			Help: "Total number of failed publish attempts",
		}),
		OutboxDrainLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "outbox_drain_duration_seconds",
			Help: "Time spent draining one batch of outbox events",
		}),
		OutboxBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "outbox_backlog",
			Help: "Current number of undispatched outbox events",
		}),
		OutboxAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "outbox_publish_attempts_total",
			Help: "Total number of publish attempts",
		}, []string{"event_type"}),
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "database_operations_total",
			Help: "Total number of database operations",
		}, []string{"operation", "status"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_hits_total",
			Help: "Total number of resolved reads served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_misses_total",
			Help: "Total number of resolved reads that fell through to the store",
		}),
	}
}
