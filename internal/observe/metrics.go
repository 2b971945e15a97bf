// Package observe holds voicetrigger's telemetry: the OpenTelemetry
// instruments every trigger records into, the recognition span, trace-aware
// logging and the HTTP middleware.
//
// [Setup] wires the SDK with a Prometheus exporter on a private registry and
// returns the [Metrics] bound to it. Code that runs without Setup (tests,
// library use) falls back to [DefaultMetrics] on the global provider; tests
// that assert on values build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicetrigger metrics.
const meterName = "github.com/MrWong99/voicetrigger"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// RecognitionDuration tracks single-shot speech recognition latency. Use
	// with attribute.String("trigger", ...).
	RecognitionDuration metric.Float64Histogram

	// SegmentBytes tracks the size of each decided segment.
	SegmentBytes metric.Int64Histogram

	// Segments counts decided segments. Use with attributes:
	//   attribute.String("trigger", ...), attribute.String("reason", "silence"|"overflow"),
	//   attribute.String("outcome", "forwarded"|"discarded"|"cancelled")
	Segments metric.Int64Counter

	// Triggers counts segments whose transcription matched the phrase.
	Triggers metric.Int64Counter

	// ForwardedChunks counts chunks handed to the downstream consumer.
	ForwardedChunks metric.Int64Counter

	// RecognizerErrors counts failed recognition calls. Use with attributes:
	//   attribute.String("trigger", ...), attribute.String("recognizer", ...)
	RecognizerErrors metric.Int64Counter

	// ActiveSessions tracks the number of live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request time by method, route and
	// status class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// batch recognition, which runs over whole segments of up to ~15 s.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// segmentBuckets are byte-size boundaries up to just past the safety valve.
var segmentBuckets = []float64{
	16_000, 32_000, 64_000, 128_000, 256_000, 500_000, 1_000_000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("voicetrigger.recognition.duration",
		metric.WithDescription("Latency of single-shot speech recognition per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentBytes, err = m.Int64Histogram("voicetrigger.segment.bytes",
		metric.WithDescription("Size of decided speech segments."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Segments, err = m.Int64Counter("voicetrigger.segments",
		metric.WithDescription("Total decided segments by trigger, reason, and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Triggers, err = m.Int64Counter("voicetrigger.triggers",
		metric.WithDescription("Total trigger-phrase detections by trigger."),
	); err != nil {
		return nil, err
	}
	if met.ForwardedChunks, err = m.Int64Counter("voicetrigger.forwarded_chunks",
		metric.WithDescription("Total chunks forwarded downstream by trigger."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerErrors, err = m.Int64Counter("voicetrigger.recognizer.errors",
		metric.WithDescription("Total recognition failures by trigger and recognizer."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voicetrigger.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicetrigger.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSegment records one segment decision: its outcome counter, its size
// and, when matched, the trigger counter.
func (m *Metrics) RecordSegment(ctx context.Context, trigger, reason, outcome string, bytes int, matched bool) {
	tr := attribute.String("trigger", trigger)
	m.Segments.Add(ctx, 1, metric.WithAttributes(
		tr,
		attribute.String("reason", reason),
		attribute.String("outcome", outcome),
	))
	m.SegmentBytes.Record(ctx, int64(bytes), metric.WithAttributes(tr))
	if matched {
		m.Triggers.Add(ctx, 1, metric.WithAttributes(tr))
	}
}

// RecordRecognition records the latency of one recognition call.
func (m *Metrics) RecordRecognition(ctx context.Context, trigger string, d time.Duration) {
	m.RecognitionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// RecordRecognizerError records a recognition failure.
func (m *Metrics) RecordRecognizerError(ctx context.Context, trigger, recognizer string) {
	m.RecognizerErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("recognizer", recognizer),
		),
	)
}

// RecordForwarded records n chunks handed downstream.
func (m *Metrics) RecordForwarded(ctx context.Context, trigger string, n int) {
	m.ForwardedChunks.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// SessionStarted increments the active-session gauge and returns a func that
// decrements it.
func (m *Metrics) SessionStarted(ctx context.Context, trigger string) func() {
	attrs := metric.WithAttributes(attribute.String("trigger", trigger))
	m.ActiveSessions.Add(ctx, 1, attrs)
	return func() { m.ActiveSessions.Add(context.WithoutCancel(ctx), -1, attrs) }
}
