package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func useTraceContext(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func TestTrace_SetsTraceIDFromSpan(t *testing.T) {
	useTraceContext(t)
	var seen string
	h := RequestID(Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	// Without an SDK provider the span carries the remote parent's trace id.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected trace id from traceparent, got %q", seen)
	}
	if rec.Header().Get(TraceIDHeader) != seen {
		t.Errorf("expected %s header %q, got %q", TraceIDHeader, seen, rec.Header().Get(TraceIDHeader))
	}
}

func TestTrace_ClientTraceIDWins(t *testing.T) {
	var seen string
	h := RequestID(Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceID(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "client-trace")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "client-trace" {
		t.Errorf("expected client trace id, got %q", seen)
	}
}
