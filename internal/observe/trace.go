package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicetrigger"

// SpanRecognize names the span around one recognition call.
const SpanRecognize = "trigger.recognize"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartRecognition starts the span for recognising one segment of trigger.
func StartRecognition(ctx context.Context, trigger, reason string, bytes int) (context.Context, trace.Span) {
	return tracer().Start(ctx, SpanRecognize, trace.WithAttributes(
		attribute.String("voicetrigger.trigger", trigger),
		attribute.String("voicetrigger.segment.reason", reason),
		attribute.Int("voicetrigger.segment.bytes", bytes),
	))
}

// EndSpan ends span, marking it failed when err is set. A cancelled context
// only adds a "cancelled" event: the consumer left, nothing broke.
func EndSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		span.AddEvent("cancelled")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceID returns the trace ID active in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is [With] applied to [slog.Default].
func Logger(ctx context.Context) *slog.Logger {
	return With(ctx, slog.Default())
}

// With adds trace_id and span_id from ctx to base. base is returned as is
// when ctx carries no span.
func With(ctx context.Context, base *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
