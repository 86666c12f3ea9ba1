package engine

import "github.com/prometheus/client_golang/prometheus"

// Label values shared by the engine metrics.
const (
	reasonIDPrefix   = "id_prefix"
	reasonOverride   = "override"
	reasonCapability = "capability"

	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeDuplicate = "duplicate"

	resultOK    = "ok"
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"

	statePending = "pending"
	stateSuccess = "success"
	stateError   = "error"
)

var (
	deferralsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deferrpc_deferrals_total",
			Help: "Total number of requests deferred for async execution, by reason.",
		},
		[]string{"reason"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deferrpc_executions_total",
			Help: "Total number of deferred tasks processed, by outcome.",
		},
		[]string{"outcome"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deferrpc_execution_duration_seconds",
			Help:    "Time spent running a deferred task through the execution engine, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deferrpc_cache_operations_total",
			Help: "Fast-cache operations on async results, by operation and result.",
		},
		[]string{"op", "result"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deferrpc_resolutions_total",
			Help: "Async result lookups, by resulting state.",
		},
		[]string{"state"},
	)

	deadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deferrpc_dead_lettered_total",
			Help: "Deferred tasks whose result could not be committed.",
		},
	)

	purgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deferrpc_results_purged_total",
			Help: "Task results removed by the retention janitor.",
		},
	)
)

func init() {
	prometheus.MustRegister(deferralsTotal)
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)
	prometheus.MustRegister(cacheOpsTotal)
	prometheus.MustRegister(resolutionsTotal)
	prometheus.MustRegister(deadLetteredTotal)
	prometheus.MustRegister(purgedTotal)

	// Pre-initialize label combinations so they appear in /metrics with value
	// 0 from startup.
	for _, r := range []string{reasonIDPrefix, reasonOverride, reasonCapability} {
		deferralsTotal.WithLabelValues(r)
	}
	for _, o := range []string{outcomeSuccess, outcomeFailure, outcomeDuplicate} {
		executionsTotal.WithLabelValues(o)
	}
	for _, s := range []string{statePending, stateSuccess, stateError} {
		resolutionsTotal.WithLabelValues(s)
	}
}
