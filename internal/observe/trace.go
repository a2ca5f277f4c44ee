package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/MrWong99/elia"

// Tracer is the tracer every Elia span comes from, resolved through the
// global provider on each call so tests can swap it.
func Tracer() trace.Tracer { return otel.Tracer(scope) }

// StartSpan starts a span from [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the hex trace ID of the span in ctx, or "" without one.
// It doubles as the turn's correlation_id in logs and responses.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is slog.Default carrying trace_id and span_id of the span in ctx.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return slog.Default()
	}
	return slog.Default().With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

// Stage is one timed pipeline step: a child span plus a latency sample.
type Stage struct {
	span  trace.Span
	hist  metric.Float64Histogram
	start time.Time
}

// StartStage opens a span named "turn."+name and starts timing. hist may be
// nil, in which case only the span is recorded. Call [Stage.End] exactly once.
func StartStage(ctx context.Context, name string, hist metric.Float64Histogram, attrs ...attribute.KeyValue) (context.Context, *Stage) {
	ctx, span := StartSpan(ctx, "turn."+name, trace.WithAttributes(attrs...))
	return ctx, &Stage{span: span, hist: hist, start: time.Now()}
}

// End records the elapsed time and closes the span, marking it failed when
// err is non-nil. It returns the elapsed time.
func (s *Stage) End(ctx context.Context, err error) time.Duration {
	elapsed := time.Since(s.start)
	if s.hist != nil {
		s.hist.Record(ctx, elapsed.Seconds())
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
	return elapsed
}
