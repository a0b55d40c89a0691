package observability

import (
	"context"
	"log"
	"runtime"
	"time"
)

// DefaultRuntimeStatsInterval is how often StartRuntimeStatsCollector
// samples process stats when the caller doesn't override it.
const DefaultRuntimeStatsInterval = 15 * time.Second

// StartRuntimeStatsCollector launches a background goroutine that
// periodically samples runtime.MemStats and the goroutine count and
// publishes them as the engine's process gauges. It mirrors the rule
// engine's memory-metrics sampling, but on a ticker instead of inline
// per evaluation, since ReadMemStats briefly stops the world and the
// evaluate path is latency-sensitive.
//
// The returned stop function cancels the collector and blocks until its
// goroutine has exited.
func StartRuntimeStatsCollector(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultRuntimeStatsInterval
	}

	collectCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				recordRuntimeStats()
			case <-collectCtx.Done():
				return
			}
		}
	}()

	log.Println("runtime stats collector started")
	return func() {
		cancel()
		<-done
		log.Println("runtime stats collector stopped")
	}
}

// recordRuntimeStats samples process memory, goroutine count, and the most
// recent GC pause, publishing them to the process gauges.
func recordRuntimeStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.WithLabelValues("process").Set(float64(m.Alloc))
	GoroutinesActive.Set(float64(runtime.NumGoroutine()))

	if m.NumGC > 0 {
		pauseNs := m.PauseNs[(m.NumGC+255)%256]
		GCPauseDuration.Observe(float64(pauseNs) / 1e9)
	}
}
