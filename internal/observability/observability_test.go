package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStartAndRecordEvaluateSpan(t *testing.T) {
	ctx := context.Background()

	_, span := StartEvaluateSpan(ctx, "evt-123")
	RecordEvaluateResult(span, 2, 5, 150*time.Microsecond)
	span.End()
}

func TestStartAndRecordCompileSpan(t *testing.T) {
	ctx := context.Background()

	_, span := StartCompileSpan(ctx, 10)
	RecordCompileResult(span, nil, 25, 40, 5*time.Millisecond)
	span.End()
}

func TestRecordCompileResultWithError(t *testing.T) {
	ctx := context.Background()

	_, span := StartCompileSpan(ctx, 3)
	RecordCompileResult(span, errUnknownOperator(), 0, 0, time.Millisecond)
	span.End()
}

func TestStartAndRecordExplainSpan(t *testing.T) {
	ctx := context.Background()

	_, span := StartExplainSpan(ctx, "R_HVAL")
	RecordExplainResult(span, true, false)
	span.End()
}

func TestAsyncEmitterEmitAndDrain(t *testing.T) {
	e := NewAsyncEmitter(4)
	e.Start()

	e.Emit("evaluation_error", "field missing", map[string]interface{}{"field": "AMOUNT"})
	e.Emit("panic_recovered", "nil pointer", map[string]interface{}{"count": 1})

	e.Stop()
}

func TestAsyncEmitterDropsWhenBufferFull(t *testing.T) {
	e := NewAsyncEmitter(1)
	// Not started: buffer never drains, so the second Emit must drop rather
	// than block.
	e.Emit("a", "first", nil)
	e.Emit("b", "second", nil)

	if e.BufferCapacity() != 1 {
		t.Fatalf("expected capacity 1, got %d", e.BufferCapacity())
	}
}

func TestInitMetricsIsIdempotent(t *testing.T) {
	if err := InitMetrics(); err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	if err := InitMetrics(); err != nil {
		t.Fatalf("second InitMetrics call failed: %v", err)
	}
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	if err := InitMetrics(); err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	ctx := context.Background()
	RecordCacheHit(ctx, "base_condition")
	RecordCacheMiss(ctx, "eligible_predicate")
}

func TestStartRuntimeStatsCollectorUpdatesGauges(t *testing.T) {
	GoroutinesActive.Set(0)

	ctx := context.Background()
	stop := StartRuntimeStatsCollector(ctx, 10*time.Millisecond)
	defer stop()

	deadline := time.After(time.Second)
	for {
		if testutil.ToFloat64(GoroutinesActive) > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("goroutine gauge was never populated by the collector")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func errUnknownOperator() error {
	return &testError{"unknown operator"}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
