package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// restoreGlobals puts the global providers back after a test that calls Setup.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp, prop := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestSetup_ServesTriggerInstruments(t *testing.T) {
	restoreGlobals(t)
	tel, err := Setup(context.Background(), "voicetrigger-test", WithServiceVersion("1.2.3"))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(context.Background())

	tel.Metrics().RecordForwarded(context.Background(), "robot", 4)
	tel.Metrics().RecordSegment(context.Background(), "robot", "silence", "forwarded", 67200, true)

	body := scrape(t, tel.Handler())
	for _, want := range []string{
		`voicetrigger_forwarded_chunks_total{`,
		`trigger="robot"`,
		`voicetrigger_triggers_total{`,
		`service_name="voicetrigger-test"`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestSetup_WithoutRuntimeMetrics(t *testing.T) {
	restoreGlobals(t)
	tel, err := Setup(context.Background(), "", WithoutRuntimeMetrics())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(context.Background())

	if body := scrape(t, tel.Handler()); strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors registered despite WithoutRuntimeMetrics")
	}
}

func TestSetup_ExportsSpans(t *testing.T) {
	restoreGlobals(t)
	exp := tracetest.NewInMemoryExporter()
	tel, err := Setup(context.Background(), "voicetrigger-test", WithSpanExporter(exp))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartRecognition(context.Background(), "robot", "silence", 960)
	EndSpan(span, nil)
	defer tel.Shutdown(context.Background())
	if err := tel.tracers.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != SpanRecognize {
		t.Fatalf("exported spans = %v, want one %s", spans, SpanRecognize)
	}
}
