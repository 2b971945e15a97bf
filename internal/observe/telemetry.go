package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "voicetrigger"

// Telemetry owns the process's meter and tracer providers and the Prometheus
// registry scraped at /metrics.
type Telemetry struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
	metrics  *Metrics
}

type telemetryOptions struct {
	version  string
	exporter sdktrace.SpanExporter
	runtime  bool
}

// TelemetryOption configures [Setup].
type TelemetryOption func(*telemetryOptions)

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) TelemetryOption {
	return func(o *telemetryOptions) { o.version = v }
}

// WithSpanExporter batches finished spans to exp. Without one, spans are
// still created (so log lines carry trace IDs) but never leave the process.
func WithSpanExporter(exp sdktrace.SpanExporter) TelemetryOption {
	return func(o *telemetryOptions) { o.exporter = exp }
}

// WithoutRuntimeMetrics leaves the Go runtime and process collectors off the
// registry.
func WithoutRuntimeMetrics() TelemetryOption {
	return func(o *telemetryOptions) { o.runtime = false }
}

// Setup builds the SDK providers for service, installs them as the global
// OpenTelemetry providers together with the W3C trace-context propagator, and
// creates the voicetrigger instruments. Call [Telemetry.Shutdown] before exit.
func Setup(ctx context.Context, service string, opts ...TelemetryOption) (*Telemetry, error) {
	o := telemetryOptions{runtime: true}
	for _, opt := range opts {
		opt(&o)
	}
	if service == "" {
		service = DefaultServiceName
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(o.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	if o.runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	t := &Telemetry{
		registry: reg,
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp)),
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if o.exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.exporter))
	}
	t.tracers = sdktrace.NewTracerProvider(tpOpts...)

	if t.metrics, err = NewMetrics(t.meters); err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("observe: instruments: %w", err)
	}

	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// Metrics returns the instruments bound to this telemetry's meter provider.
func (t *Telemetry) Metrics() *Metrics { return t.metrics }

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// Shutdown flushes pending spans and metrics and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.tracers.Shutdown(ctx))
}

// MetricsHandler serves the default Prometheus registry. It is the fallback
// for servers built without a [Telemetry].
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
