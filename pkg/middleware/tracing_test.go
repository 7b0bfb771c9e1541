package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/naman3006/E-commerce-sub001/pkg/logger"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func tracedRouter(status int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Tracing("cart"))
	r.Get("/api/v1/admin/carts/{ownerId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	return r
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_NamesSpanByRoutePattern(t *testing.T) {
	recorder := setupTestTracer(t)

	rec := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/carts/user-42", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "GET /api/v1/admin/carts/{ownerId}", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, codes.Unset, span.Status().Code)

	route, ok := spanAttr(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/admin/carts/{ownerId}", route.AsString())

	for _, kv := range span.Attributes() {
		assert.NotContains(t, kv.Value.Emit(), "user-42", "raw owner id leaked into %s", kv.Key)
	}
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	rec := httptest.NewRecorder()
	tracedRouter(http.StatusServiceUnavailable).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/carts/u1", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTracing_ConflictAddsEvent(t *testing.T) {
	recorder := setupTestTracer(t)

	rec := httptest.NewRecorder()
	tracedRouter(http.StatusConflict).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/carts/u1", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "conflict", spans[0].Events()[0].Name)
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	recorder := setupTestTracer(t)

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/carts/u1", nil)
	req.Header.Set("traceparent", traceparent)
	rec := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(rec, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.Contains(t, rec.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestTracing_RecordsCorrelationID(t *testing.T) {
	recorder := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/carts/u1", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-7"))
	rec := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(rec, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	v, ok := spanAttr(spans[0], "http.correlation_id")
	require.True(t, ok)
	assert.Equal(t, "corr-7", v.AsString())
}

func TestScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http", scheme(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", scheme(req))

	req.Header.Set("X-Forwarded-Proto", "javascript")
	assert.Equal(t, "http", scheme(req))
}
