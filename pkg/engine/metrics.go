package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webrunner",
		Name:      "sessions_started_total",
		Help:      "Number of test sessions that entered execution.",
	})
	metricSessionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrunner",
			Name:      "sessions_finished_total",
			Help:      "Number of test sessions that reached a terminal state.",
		},
		[]string{"status"},
	)
	metricActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrunner",
			Name:      "actions_executed_total",
			Help:      "Number of actions executed, by kind and final status.",
		},
		[]string{"kind", "status"},
	)
	metricActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webrunner",
			Name:      "action_duration_seconds",
			Help:      "Wall-clock action execution time, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"kind"},
	)
	metricResolverDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "webrunner",
		Name:      "resolver_fallback_depth",
		Help:      "Index of the candidate selector that resolved a target.",
		Buckets:   prometheus.LinearBuckets(0, 1, 10),
	})
	metricActionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webrunner",
		Name:      "action_retries_total",
		Help:      "Number of action attempts beyond the first.",
	})
	metricActiveExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "webrunner",
		Name:      "active_executions",
		Help:      "Number of sessions currently executing.",
	})
)

func recordSessionStarted() {
	metricSessionsStarted.Inc()
	metricActiveExecutions.Inc()
}

func recordSessionFinished(status string) {
	metricSessionsFinished.WithLabelValues(status).Inc()
	metricActiveExecutions.Dec()
}

func recordAction(kind, status string, seconds float64) {
	metricActionsExecuted.WithLabelValues(kind, status).Inc()
	metricActionDuration.WithLabelValues(kind).Observe(seconds)
}

func recordRetry() {
	metricActionRetries.Inc()
}

func recordResolverDepth(depth int) {
	metricResolverDepth.Observe(float64(depth))
}
