package observability

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DiagnosticEvent is a background-exported record of something the engine
// wants observed but that shouldn't block the evaluate path: a recovered
// panic, an EvaluationError occurrence, a cache eviction storm.
type DiagnosticEvent struct {
	Kind      string
	Message   string
	Metadata  map[string]interface{}
	Timestamp time.Time
}

// AsyncEmitter provides non-blocking diagnostic event emission so a slow or
// backed-up trace exporter never adds latency to Evaluate.
type AsyncEmitter struct {
	buffer chan DiagnosticEvent
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAsyncEmitter creates a new async diagnostic event emitter.
func NewAsyncEmitter(bufferSize int) *AsyncEmitter {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncEmitter{
		buffer: make(chan DiagnosticEvent, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the background worker that exports events.
func (e *AsyncEmitter) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case ev := <-e.buffer:
				e.exportEvent(ev)
			case <-e.ctx.Done():
				e.drainBuffer()
				return
			}
		}
	}()
	log.Println("async telemetry emitter started")
}

// Emit queues a diagnostic event for async export. Non-blocking: if the
// buffer is full, the event is dropped with a warning rather than stalling
// the caller.
func (e *AsyncEmitter) Emit(kind, message string, metadata map[string]interface{}) {
	ev := DiagnosticEvent{
		Kind:      kind,
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	select {
	case e.buffer <- ev:
	default:
		log.Printf("diagnostic event buffer full, dropping event: %s/%s", kind, message)
	}
}

// Stop gracefully shuts down the emitter, draining the buffer.
func (e *AsyncEmitter) Stop() {
	e.cancel()
	e.wg.Wait()
	log.Println("async telemetry emitter stopped")
}

// drainBuffer attempts to export all buffered events within timeout.
func (e *AsyncEmitter) drainBuffer() {
	timeout := time.After(5 * time.Second)
	drained := 0

	for {
		select {
		case ev := <-e.buffer:
			e.exportEvent(ev)
			drained++
		case <-timeout:
			remaining := len(e.buffer)
			if remaining > 0 {
				log.Printf("timeout draining diagnostic events, %d events dropped", remaining)
			}
			log.Printf("drained %d diagnostic events before shutdown", drained)
			return
		default:
			log.Printf("drained %d diagnostic events before shutdown", drained)
			return
		}
	}
}

// exportEvent exports a single diagnostic event to OpenTelemetry.
func (e *AsyncEmitter) exportEvent(ev DiagnosticEvent) {
	_, span := Tracer.Start(context.Background(), "diagnostic."+ev.Kind)
	defer span.End()

	span.SetAttributes(
		attribute.String("diagnostic.kind", ev.Kind),
		attribute.String("diagnostic.message", ev.Message),
		attribute.Int64("diagnostic.timestamp", ev.Timestamp.Unix()),
	)

	for key, value := range ev.Metadata {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String("diagnostic."+key, v))
		case int:
			span.SetAttributes(attribute.Int("diagnostic."+key, v))
		case bool:
			span.SetAttributes(attribute.Bool("diagnostic."+key, v))
		default:
			// Skip unsupported types.
		}
	}

	span.AddEvent("diagnostic_event_recorded", trace.WithAttributes(
		attribute.String("kind", ev.Kind),
	))
}

// BufferSize returns the current number of buffered events.
func (e *AsyncEmitter) BufferSize() int {
	return len(e.buffer)
}

// BufferCapacity returns the maximum buffer capacity.
func (e *AsyncEmitter) BufferCapacity() int {
	return cap(e.buffer)
}
