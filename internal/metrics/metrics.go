package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HistoryAppends counts history logger appends by result (ok, error).
	HistoryAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "np_history_appends_total",
			Help: "History store appends by result",
		},
		[]string{"result"},
	)

	// HistoryDecodeErrors counts broadcast payloads the logger could not decode.
	HistoryDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "np_history_decode_errors_total",
			Help: "Broadcast payloads skipped by the history logger",
		},
	)

	// QueriesTotal counts query service replies by service and result.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "np_queries_total",
			Help: "Query service replies by service and result",
		},
		[]string{"service", "result"},
	)

	// QueryDuration tracks time spent computing a reply.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "np_query_duration_seconds",
			Help:    "Query service reply latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// ModulesRunning is 1 while a daemon module's Run loop is active.
	ModulesRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "np_module_running",
			Help: "Whether an npd module is running (1) or stopped (0)",
		},
		[]string{"module"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "np_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// ObserveQuery records one reply for service.
func ObserveQuery(service string, ok bool, started time.Time) {
	result := "ok"
	if !ok {
		result = "error"
	}
	QueriesTotal.WithLabelValues(service, result).Inc()
	QueryDuration.WithLabelValues(service).Observe(time.Since(started).Seconds())
}
