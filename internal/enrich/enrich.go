// Package enrich runs the per-turn enrichment lookups concurrently.
//
// Two independent subtasks run on the shared worker pool, each bounded by its
// own timeout:
//
//  1. Sentiment classification of the transcript.
//  2. A top-1 semantic memory search for a previously answered question.
//
// Enrichment is best-effort. A failing or slow subtask degrades to its empty
// value (no sentiment label, no matches) and is logged as
// [ErrEnrichmentDegraded]; [Enricher.Enrich] itself never fails.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/elia/internal/observe"
	"github.com/MrWong99/elia/internal/workpool"
	"github.com/MrWong99/elia/pkg/memory"
	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/types"
)

// ErrEnrichmentDegraded marks a failed enrichment subtask. It is only logged.
var ErrEnrichmentDegraded = errors.New("enrich: enrichment degraded")

// Default subtask timeouts.
const (
	DefaultSentimentTimeout = 5 * time.Second
	DefaultMemoryTimeout    = 5 * time.Second
)

// Searcher finds remembered exchanges similar to a query. [*memory.Cache]
// satisfies it.
type Searcher interface {
	Lookup(ctx context.Context, query string, topK int) ([]memory.Match, error)
}

// Outcome is the explicit result of one enrichment subtask.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the subtask succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Enrichment is the joined result of both subtasks.
type Enrichment struct {
	// Sentiment is the classification, or the zero value when it failed.
	Sentiment types.Sentiment

	// Matches holds the matches accepted into the prompt: the top match if its
	// similarity reaches the threshold, otherwise nothing.
	Matches []memory.Match

	// Nearest is the best match found regardless of the threshold. Nil when
	// the memory is empty or the search failed.
	Nearest *memory.Match

	// Degraded lists the subtasks that failed ("sentiment", "memory").
	Degraded []string
}

// Enricher runs the enrichment fan-out. It is safe for concurrent use.
type Enricher struct {
	pool             *workpool.Pool
	classifier       sentiment.Provider
	searcher         Searcher
	sentimentTimeout time.Duration
	memoryTimeout    time.Duration
	metrics          *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Enricher)

// WithSentimentTimeout bounds the sentiment subtask. Defaults to
// [DefaultSentimentTimeout].
func WithSentimentTimeout(d time.Duration) Option {
	return func(e *Enricher) { e.sentimentTimeout = d }
}

// WithMemoryTimeout bounds the memory subtask. Defaults to
// [DefaultMemoryTimeout].
func WithMemoryTimeout(d time.Duration) Option {
	return func(e *Enricher) { e.memoryTimeout = d }
}

// WithMetrics records degraded subtasks and fan-out latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// New creates an [Enricher] running its subtasks on pool.
func New(pool *workpool.Pool, classifier sentiment.Provider, searcher Searcher, opts ...Option) *Enricher {
	e := &Enricher{
		pool:             pool,
		classifier:       classifier,
		searcher:         searcher,
		sentimentTimeout: DefaultSentimentTimeout,
		memoryTimeout:    DefaultMemoryTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich classifies text and searches memory for it concurrently, then joins
// both. The top match is kept only when its similarity is at least threshold.
// Each subtask's timeout covers both its wait for a pool slot and its run, so
// Enrich returns within the larger of the two timeouts.
func (e *Enricher) Enrich(ctx context.Context, text string, threshold float64) Enrichment {
	ctx, stage := observe.StartStage(ctx, "enrich", e.histogram())

	// ── subtask 1: sentiment ─────────────────────────────────────────────────
	sentCtx, cancelSent := context.WithTimeout(ctx, e.sentimentTimeout)
	defer cancelSent()
	sentFut := workpool.Submit(e.pool, sentCtx, func(ctx context.Context) (types.Sentiment, error) {
		return e.classifier.Classify(ctx, text)
	})

	// ── subtask 2: memory search ─────────────────────────────────────────────
	memCtx, cancelMem := context.WithTimeout(ctx, e.memoryTimeout)
	defer cancelMem()
	memFut := workpool.Submit(e.pool, memCtx, func(ctx context.Context) ([]memory.Match, error) {
		return e.searcher.Lookup(ctx, text, 1)
	})

	sent := join(sentCtx, sentFut)
	mem := join(memCtx, memFut)

	var out Enrichment
	if sent.OK() {
		out.Sentiment = sent.Value
	} else {
		e.degrade(ctx, "sentiment", sent.Err)
		out.Degraded = append(out.Degraded, "sentiment")
	}
	if mem.OK() {
		if len(mem.Value) > 0 {
			best := mem.Value[0]
			out.Nearest = &best
			if best.Similarity >= threshold {
				out.Matches = []memory.Match{best}
			}
		}
	} else {
		e.degrade(ctx, "memory", mem.Err)
		out.Degraded = append(out.Degraded, "memory")
	}

	stage.End(ctx, nil)
	return out
}

// join waits for f under ctx and wraps the result as an [Outcome].
func join[T any](ctx context.Context, f *workpool.Future[T]) Outcome[T] {
	v, err := f.Wait(ctx)
	return Outcome[T]{Value: v, Err: err}
}

func (e *Enricher) degrade(ctx context.Context, subtask string, err error) {
	observe.Logger(ctx).Warn("enrich: subtask failed, continuing without it",
		"subtask", subtask,
		"err", fmt.Errorf("%w: %s: %w", ErrEnrichmentDegraded, subtask, err),
	)
	if e.metrics != nil {
		e.metrics.RecordEnrichmentDegraded(ctx, subtask)
	}
}

func (e *Enricher) histogram() metric.Float64Histogram {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.EnrichDuration
}
