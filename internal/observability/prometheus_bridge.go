package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// PrometheusHandler serves the default Prometheus registry, where the
// promauto metrics in metrics.go are registered. The OTel meter instruments
// in metrics_otel.go are not bridged into it.

var (
	prometheusRegistry prometheus.Gatherer = prometheus.DefaultGatherer
	prometheusExporter *PrometheusMetricsExporter
)

type PrometheusMetricsExporter struct {
	reader metric.Reader
}

// InitPrometheusExporter creates a periodic metric reader over a no-op
// exporter and records it as the package's exporter. The reader is not
// registered with any meter provider, so it collects nothing; /metrics
// output comes from PrometheusHandler alone.
func InitPrometheusExporter() (*PrometheusMetricsExporter, error) {
	// Periodic reader over a no-op exporter; not attached to a meter provider
	reader := metric.NewPeriodicReader(
		&noopExporter{}, // We don't actually export, just collect
		metric.WithInterval(5*time.Second),
	)

	exporter := &PrometheusMetricsExporter{
		reader: reader,
	}

	prometheusExporter = exporter
	return exporter, nil
}

// PrometheusHandler returns an HTTP handler for /metrics endpoint
func PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(prometheusRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// noopExporter implements metric.Exporter but doesn't actually export
type noopExporter struct{}

func (e *noopExporter) Temporality(metric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (e *noopExporter) Aggregation(metric.InstrumentKind) metric.Aggregation {
	return metric.AggregationDefault{}
}

func (e *noopExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	return nil
}

func (e *noopExporter) ForceFlush(context.Context) error {
	return nil
}

func (e *noopExporter) Shutdown(context.Context) error {
	return nil
}
