package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumentedMux mimics the server: a routed mux behind Middleware, with
// metrics and spans captured in memory. It swaps the global tracer provider,
// so callers must not run in parallel.
func instrumentedMux(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", func(w http.ResponseWriter, r *http.Request) {
		if CorrelationID(r.Context()) == "" {
			t.Error("handler context has no correlation ID")
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /emotional_report", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return Middleware(m)(mux), reader, exp
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_RoutesAndStatus(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantRoute  string
		wantStatus int
	}{
		{name: "ask", method: "POST", path: "/ask", body: "RIFF....WAVE", wantRoute: "POST /ask", wantStatus: 200},
		{name: "report failure", method: "GET", path: "/emotional_report", wantRoute: "GET /emotional_report", wantStatus: 500},
		{name: "probe", method: "GET", path: "/healthz", wantRoute: "GET /healthz", wantStatus: 200},
		{name: "unknown path", method: "GET", path: "/nope/123", wantRoute: unmatchedRoute, wantStatus: 404},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, reader, exp := instrumentedMux(t)

			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if cid := rec.Header().Get("X-Correlation-ID"); len(cid) != 32 {
				t.Errorf("X-Correlation-ID = %q, want a 32 hex trace ID", cid)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Name != tc.wantRoute {
				t.Errorf("span name = %q, want %q", spans[0].Name, tc.wantRoute)
			}
			if v, ok := spanAttr(spans[0].Attributes, "http.response.status_code"); !ok || v.AsInt64() != int64(tc.wantStatus) {
				t.Errorf("span status attribute = %v (found=%v)", v.AsInt64(), ok)
			}

			met := findMetric(collect(t, reader), "elia.http.request.duration")
			if met == nil {
				t.Fatal("request duration not recorded")
			}
			hist := met.Data.(metricdata.Histogram[float64])
			if len(hist.DataPoints) != 1 {
				t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
			}
			route, _ := hist.DataPoints[0].Attributes.Value("route")
			if route.AsString() != tc.wantRoute {
				t.Errorf("route attribute = %q, want %q", route.AsString(), tc.wantRoute)
			}
		})
	}
}

func TestMiddleware_RecordsUploadSize(t *testing.T) {
	h, reader, _ := instrumentedMux(t)

	body := strings.Repeat("x", 4096)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/ask", strings.NewReader(body)))

	met := findMetric(collect(t, reader), "elia.http.upload.size")
	if met == nil {
		t.Fatal("upload size not recorded")
	}
	hist := met.Data.(metricdata.Histogram[int64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Sum != 4096 {
		t.Errorf("upload size points = %+v, want one sample of 4096", hist.DataPoints)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h, _, exp := instrumentedMux(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	req := httptest.NewRequest("POST", "/ask", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if !strings.Contains(rec.Header().Get("traceparent"), traceID) {
		t.Errorf("response traceparent = %q, want trace %s", rec.Header().Get("traceparent"), traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].SpanContext.TraceID().String() != traceID {
		t.Errorf("span did not join incoming trace: %+v", spans)
	}
}
