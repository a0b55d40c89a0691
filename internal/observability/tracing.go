package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the OpenTelemetry tracer for the rule engine.
var Tracer = otel.Tracer("rulelattice.engine")

// StartEvaluateSpan creates a traced span for one Evaluate call.
func StartEvaluateSpan(ctx context.Context, eventID string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "engine.evaluate",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
		),
	)
}

// RecordEvaluateResult records the outcome of an Evaluate call on both the
// span and the Prometheus evaluation metrics.
func RecordEvaluateResult(span trace.Span, matchCount, predicatesEvaluated int, duration time.Duration) {
	result := "no_match"
	if matchCount > 0 {
		result = "match"
	}

	span.SetAttributes(
		attribute.Int("evaluate.match_count", matchCount),
		attribute.Int("evaluate.predicates_evaluated", predicatesEvaluated),
		attribute.Float64("evaluate.duration_ms", float64(duration.Microseconds())/1000.0),
	)

	EvaluationDuration.WithLabelValues(result).Observe(duration.Seconds())
	EvaluationTotal.WithLabelValues(result).Inc()
	PredicatesEvaluatedPerEvent.Observe(float64(predicatesEvaluated))
	MatchesPerEvent.Observe(float64(matchCount))
}

// StartCompileSpan creates a traced span for one Compile call.
func StartCompileSpan(ctx context.Context, ruleCount int) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "engine.compile",
		trace.WithAttributes(
			attribute.Int("compile.rule_count", ruleCount),
		),
	)
}

// RecordCompileResult records the outcome of a Compile call.
func RecordCompileResult(span trace.Span, err error, combinations, predicates int, duration time.Duration) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		CompileTotal.WithLabelValues("error").Inc()
	} else {
		span.SetStatus(codes.Ok, "compiled successfully")
		span.SetAttributes(
			attribute.Int("compile.combinations", combinations),
			attribute.Int("compile.predicates", predicates),
		)
		CompileTotal.WithLabelValues("success").Inc()
		ModelCombinations.Set(float64(combinations))
		ModelPredicates.Set(float64(predicates))
	}
	CompileDuration.Observe(duration.Seconds())
}

// StartExplainSpan creates a traced span for one Explain call.
func StartExplainSpan(ctx context.Context, ruleCode string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "engine.explain",
		trace.WithAttributes(
			attribute.String("explain.rule_code", ruleCode),
		),
	)
}

// RecordExplainResult records the outcome of an Explain call.
func RecordExplainResult(span trace.Span, found, matched bool) {
	span.SetAttributes(
		attribute.Bool("explain.found", found),
		attribute.Bool("explain.matched", matched),
	)
}
