package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the rule engine's compile and evaluate paths.

var (
	// Compile Metrics
	CompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulelattice_compile_duration_seconds",
			Help:    "Time taken to compile a ruleset into a model",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 20),
		},
	)

	CompileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulelattice_compile_total",
			Help: "Total number of compile attempts",
		},
		[]string{"status"}, // status: success|error
	)

	ModelCombinations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulelattice_model_combinations",
			Help: "Number of distinct predicate combinations in the currently loaded model",
		},
	)

	ModelPredicates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulelattice_model_predicates",
			Help: "Number of distinct canonical predicates in the currently loaded model",
		},
	)

	// Evaluation Metrics
	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rulelattice_evaluation_duration_seconds",
			Help:    "Time taken to evaluate a single event against the loaded model",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1us to 1s
		},
		[]string{"result"}, // result: match|no_match
	)

	EvaluationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulelattice_evaluation_total",
			Help: "Total number of event evaluations",
		},
		[]string{"result"},
	)

	PredicatesEvaluatedPerEvent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulelattice_predicates_evaluated_per_event",
			Help:    "Number of eligible predicates evaluated per event",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	MatchesPerEvent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulelattice_matches_per_event",
			Help:    "Number of matched combinations returned per event",
			Buckets: prometheus.LinearBuckets(0, 1, 20),
		},
	)

	// Cache Metrics (base-condition cache §4.3, eligible-predicate cache §4.5)
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulelattice_cache_hits_total",
			Help: "Number of cache hits",
		},
		[]string{"cache"}, // cache: base_condition|eligible_predicate
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulelattice_cache_misses_total",
			Help: "Number of cache misses",
		},
		[]string{"cache"},
	)

	// Numeric/SIMD Dispatch Metrics (§4.6)
	NumericGroupEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulelattice_numeric_group_evaluations_total",
			Help: "Total number of batched numeric predicate group evaluations",
		},
		[]string{"path"}, // path: simd|scalar_fallback
	)

	// Process Metrics
	MemoryUsageBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rulelattice_memory_usage_bytes",
			Help: "Memory usage of engine components",
		},
		[]string{"component"}, // component: process|model|base_condition_cache|eligible_predicate_cache
	)

	GoroutinesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulelattice_goroutines_active",
			Help: "Number of active goroutines in the engine process",
		},
	)

	GCPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulelattice_gc_pause_duration_seconds",
			Help:    "Duration of garbage collection pauses",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 20),
		},
	)
)
