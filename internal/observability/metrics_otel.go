package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpenTelemetry metrics for the rule engine's compile and evaluate paths.
// Platform-agnostic: works with Prometheus, any OTLP collector, etc.

var (
	meter = otel.Meter("rulelattice.engine")

	metricsOnce sync.Once

	compileDuration metric.Float64Histogram
	compileTotal    metric.Int64Counter
	evalDuration    metric.Float64Histogram
	evalTotal       metric.Int64Counter
	predicatesEval  metric.Int64Histogram
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
)

// InitMetrics initializes all OpenTelemetry metrics.
// Call this once during application startup.
func InitMetrics() error {
	var err error
	metricsOnce.Do(func() {
		compileDuration, err = meter.Float64Histogram(
			"rulelattice.compile_duration",
			metric.WithDescription("Time taken to compile a ruleset into a model"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return
		}

		compileTotal, err = meter.Int64Counter(
			"rulelattice.compile_total",
			metric.WithDescription("Total number of compile attempts"),
		)
		if err != nil {
			return
		}

		evalDuration, err = meter.Float64Histogram(
			"rulelattice.evaluation_duration",
			metric.WithDescription("Time taken to evaluate a single event"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return
		}

		evalTotal, err = meter.Int64Counter(
			"rulelattice.evaluation_total",
			metric.WithDescription("Total number of event evaluations"),
		)
		if err != nil {
			return
		}

		predicatesEval, err = meter.Int64Histogram(
			"rulelattice.predicates_evaluated",
			metric.WithDescription("Number of eligible predicates evaluated per event"),
		)
		if err != nil {
			return
		}

		cacheHits, err = meter.Int64Counter(
			"rulelattice.cache_hits_total",
			metric.WithDescription("Cache hits, labeled by cache name"),
		)
		if err != nil {
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"rulelattice.cache_misses_total",
			metric.WithDescription("Cache misses, labeled by cache name"),
		)
	})
	return err
}

// RecordCompile records one compile attempt's duration and outcome.
func RecordCompile(ctx context.Context, status string, durationSeconds float64) {
	compileDuration.Record(ctx, durationSeconds)
	compileTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status), // success|error
	))
}

// RecordEvaluation records one Evaluate call's duration, result, and the
// number of predicates it evaluated.
func RecordEvaluation(ctx context.Context, result string, durationSeconds float64, predicatesEvaluated int64) {
	attrs := metric.WithAttributes(attribute.String("result", result)) // match|no_match
	evalDuration.Record(ctx, durationSeconds, attrs)
	evalTotal.Add(ctx, 1, attrs)
	predicatesEval.Record(ctx, predicatesEvaluated)
}

// RecordCacheHit increments the named cache's hit counter, both as an
// OTel metric and as the parallel Prometheus counter.
func RecordCacheHit(ctx context.Context, cache string) {
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
	CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments the named cache's miss counter, both as an
// OTel metric and as the parallel Prometheus counter.
func RecordCacheMiss(ctx context.Context, cache string) {
	cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
	CacheMissesTotal.WithLabelValues(cache).Inc()
}
