package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEcho(t *testing.T) (*echo.Echo, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	e := echo.New()
	e.Use(TracingMiddleware(tp))
	e.GET("/api/v1/reports/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})
	return e, sr
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingMiddleware_SpanPerRequest(t *testing.T) {
	e, sr := newRecordingEcho(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/seasonal-patterns", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "HTTP GET /api/v1/reports/:id" {
		t.Errorf("unexpected span name %q", s.Name())
	}
	if v, ok := attr(s.Attributes(), "http.response.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("expected status attribute 200, got %v", v)
	}
	if s.Status().Code == codes.Error {
		t.Error("expected non-error status")
	}
	if rec.Header().Get(TraceIDHeader) != s.SpanContext().TraceID().String() {
		t.Errorf("expected trace id header %s, got %s", s.SpanContext().TraceID(), rec.Header().Get(TraceIDHeader))
	}
}

func TestTracingMiddleware_ServerErrorMarksSpan(t *testing.T) {
	e, sr := newRecordingEcho(t)
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if v, _ := attr(spans[0].Attributes(), "http.response.status_code"); v.AsInt64() != 500 {
		t.Errorf("expected status attribute 500, got %v", v)
	}
}

func TestTracingMiddleware_ContinuesIncomingTrace(t *testing.T) {
	e, sr := newRecordingEcho(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/predictions", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	e.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected incoming trace id, got %s", got)
	}
	if got := spans[0].Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("expected incoming parent span, got %s", got)
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
	_, span := p.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected a no-op span when tracing is disabled")
	}
	span.End()
}

func TestNewProvider_EnabledWithoutExporter(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: ExporterNone}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Shutdown(context.Background())

	_, span := p.Tracer("test").Start(context.Background(), "real")
	if !span.SpanContext().IsValid() {
		t.Error("expected a sampled span")
	}
	span.End()
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, zerolog.Nop())
	if err == nil {
		t.Error("expected error for unknown exporter")
	}
}
