// Package observe provides the observability primitives shared by every Elia
// subsystem: OpenTelemetry instruments for the turn pipeline, span helpers,
// trace-aware logging and the HTTP middleware that ties them together.
//
// Instruments are created once per [metric.MeterProvider] with [NewMetrics].
// [InitProvider] binds them to a Prometheus exporter for GET /metrics. Tests
// build their own provider with a manual reader; [DefaultMetrics] exists for
// code paths that run without an App.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every Elia instrument.
const meterName = "github.com/MrWong99/elia"

// Metrics holds the instruments recorded by the turn pipeline, the provider
// wrappers and the HTTP layer. Safe for concurrent use.
type Metrics struct {
	// ── Stage latency (seconds) ──

	ASRDuration    metric.Float64Histogram
	EnrichDuration metric.Float64Histogram
	LLMDuration    metric.Float64Histogram
	TTSDuration    metric.Float64Histogram

	// TurnDuration is end-to-end latency, attributed by status
	// ("ok", "clarify", "error").
	TurnDuration metric.Float64Histogram

	// ── Counters ──

	// Turns counts finished turns by status.
	Turns metric.Int64Counter

	// ProviderRequests counts collaborator calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed collaborator calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// EnrichmentDegraded counts failed enrichment subtasks by subtask
	// ("sentiment", "memory").
	EnrichmentDegraded metric.Int64Counter

	// CacheWrites counts background memory writes by status
	// ("ok", "error", "suppressed").
	CacheWrites metric.Int64Counter

	// ActiveTurns is the number of turns in flight.
	ActiveTurns metric.Int64UpDownCounter

	// ── HTTP ──

	// HTTPRequestDuration is request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram

	// UploadBytes is the size of uploaded request bodies by route.
	UploadBytes metric.Int64Histogram
}

// latencyBuckets spans fast embedding lookups up to slow LLM completions.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// uploadBuckets spans a one-second mono clip up to the default upload cap.
var uploadBuckets = []float64{16 << 10, 64 << 10, 256 << 10, 1 << 20, 4 << 20, 16 << 20, 32 << 20}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	for _, h := range []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.ASRDuration, "elia.asr.duration", "Latency of speech recognition."},
		{&met.EnrichDuration, "elia.enrich.duration", "Latency of the sentiment and memory fan-out."},
		{&met.LLMDuration, "elia.llm.duration", "Latency of answer generation."},
		{&met.TTSDuration, "elia.tts.duration", "Latency of speech synthesis."},
		{&met.TurnDuration, "elia.turn.duration", "End-to-end latency of one turn by status."},
		{&met.HTTPRequestDuration, "elia.http.request.duration", "HTTP request latency by method, route and status."},
	} {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Turns, "elia.turns", "Finished turns by status."},
		{&met.ProviderRequests, "elia.provider.requests", "Collaborator calls by provider, kind and status."},
		{&met.ProviderErrors, "elia.provider.errors", "Failed collaborator calls by provider and kind."},
		{&met.EnrichmentDegraded, "elia.enrichment.degraded", "Failed enrichment subtasks by subtask."},
		{&met.CacheWrites, "elia.memory.writes", "Background memory writes by status."},
	} {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveTurns, err = m.Int64UpDownCounter("elia.active_turns",
		metric.WithDescription("Turns currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.UploadBytes, err = m.Int64Histogram("elia.http.upload.size",
		metric.WithDescription("Size of uploaded audio by route."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(uploadBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider,
// created on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one collaborator call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status),
	))
}

// RecordProviderError counts one failed collaborator call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordTurn counts a finished turn and records its latency.
func (m *Metrics) RecordTurn(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(Attr("status", status))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordEnrichmentDegraded counts one failed enrichment subtask.
func (m *Metrics) RecordEnrichmentDegraded(ctx context.Context, subtask string) {
	m.EnrichmentDegraded.Add(ctx, 1, metric.WithAttributes(Attr("subtask", subtask)))
}

// RecordCacheWrite counts the outcome of one background memory write.
func (m *Metrics) RecordCacheWrite(ctx context.Context, status string) {
	m.CacheWrites.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordHTTP records one served request. Uploads of unknown size (negative
// n) are not recorded.
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, elapsed time.Duration, n int64) {
	m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		Attr("method", method), Attr("route", route), attribute.Int("status", status),
	))
	if n > 0 {
		m.UploadBytes.Record(ctx, n, metric.WithAttributes(Attr("route", route)))
	}
}
