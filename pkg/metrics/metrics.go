// Package metrics holds the Prometheus collectors of the community service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "community"

var (
	// Registry 应用专用 registry，避免与默认 registry 冲突
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	followOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follows",
			Name:      "operations_total",
			Help:      "Follow graph write operations by result.",
		},
		[]string{"op", "result"},
	)

	mutualTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follows",
			Name:      "mutual_transitions_total",
			Help:      "Mutual follow promotions and demotions.",
		},
		[]string{"direction"},
	)

	txRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "follows",
			Name:      "tx_retries_total",
			Help:      "Follow transactions retried after a write conflict.",
		},
	)

	resolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of anonymous id resolution scans.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"mode"},
	)

	resolveScanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "resolve_scanned_users",
			Help:      "Users derived per resolution scan.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because the dispatch queue was full.",
		},
		[]string{"type"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to the sink by result.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		followOps,
		mutualTransitions,
		txRetries,
		resolveDuration,
		resolveScanned,
		eventsDropped,
		eventsPublished,
	)
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordHTTPRequest(method, route, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordFollowOp(op, result string) {
	followOps.WithLabelValues(op, result).Inc()
}

// RecordMutualTransition direction 为 promote 或 demote
func RecordMutualTransition(direction string) {
	mutualTransitions.WithLabelValues(direction).Inc()
}

func RecordTxRetry() { txRetries.Inc() }

func RecordResolve(mode string, scanned int, d time.Duration) {
	resolveDuration.WithLabelValues(mode).Observe(d.Seconds())
	resolveScanned.Observe(float64(scanned))
}

func RecordEventDropped(eventType string) {
	eventsDropped.WithLabelValues(eventType).Inc()
}

func RecordEventPublished(eventType, result string) {
	eventsPublished.WithLabelValues(eventType, result).Inc()
}
