// Package turn drives one student question from transcript to spoken answer.
//
// A turn walks a small state machine:
//
//	Init → Gated → Clarifying → Responding → Synthesizing → Done
//	Init → Gated → Enriching  → Responding → Synthesizing → Done
//
// Low-confidence transcripts take the clarify branch: the model is asked for a
// short request to repeat, nothing is enriched and nothing is remembered.
// Everything else is enriched (sentiment + memory search) before the model
// answers, and the exchange is written back to memory in the background.
//
// Language model and speech synthesis failures end the turn in Errored with a
// generic, user-safe message. Enrichment failures never do.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/elia/internal/enrich"
	"github.com/MrWong99/elia/internal/gate"
	"github.com/MrWong99/elia/internal/observe"
	"github.com/MrWong99/elia/internal/promptctx"
	"github.com/MrWong99/elia/internal/workpool"
	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/provider/tts"
	"github.com/MrWong99/elia/pkg/types"
)

// ErrorMessage is what the student hears about when a turn fails upstream.
const ErrorMessage = "Si è verificato un errore nel generare la risposta."

// Cache write outcomes reported to [observe.Metrics.RecordCacheWrite].
const (
	writeOK         = "ok"
	writeError      = "error"
	writeSuppressed = "suppressed"
	writeSkipped    = "skipped"
)

// Enricher runs the enrichment fan-out. [*enrich.Enricher] satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, text string, threshold float64) enrich.Enrichment
}

// MemoryWriter appends an exchange to semantic memory. [*memory.Cache]
// satisfies it.
type MemoryWriter interface {
	Insert(ctx context.Context, question, answer, tags string) (uuid.UUID, error)
}

// Collaborators are the providers a turn talks to. ASR is only needed by
// [Orchestrator.HandleAudio] and [Orchestrator.Transcribe].
type Collaborators struct {
	ASR      asr.Provider
	LLM      llm.Provider
	TTS      tts.Provider
	Enricher Enricher
	Memory   MemoryWriter
}

// Result is the outcome of one turn.
type Result struct {
	Status Status

	// Message is the normalised answer, the clarify request, or
	// [ErrorMessage].
	Message string

	// Audio is the synthesised WAV for Message. Nil on error or when the
	// answer was empty.
	Audio []byte

	// SampleRate of Audio in Hz, when known.
	SampleRate int

	// ErrorDetail is the failure description on Status error.
	ErrorDetail string

	// Err is the underlying *UpstreamError on Status error.
	Err error

	// Transcript is the transcript the turn ran on.
	Transcript types.Transcript

	// Path lists every state the turn visited, in order.
	Path []State
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithSettings sets the initial thresholds. Defaults to [DefaultSettings].
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings.Store(&s) }
}

// WithTimeouts bounds the collaborator calls. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t.withDefaults() }
}

// WithMetrics records stage latencies and turn outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs turns. It holds no per-turn state and is safe for
// concurrent use; independent turns only share the memory index.
type Orchestrator struct {
	pool     *workpool.Pool
	collab   Collaborators
	settings atomic.Pointer[Settings]
	timeouts Timeouts
	metrics  *observe.Metrics
}

// New creates an Orchestrator that runs its awaited and detached work on pool.
func New(pool *workpool.Pool, collab Collaborators, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:     pool,
		collab:   collab,
		timeouts: DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.settings.Load() == nil {
		s := DefaultSettings()
		o.settings.Store(&s)
	}
	return o
}

// Settings returns the thresholds new turns will use.
func (o *Orchestrator) Settings() Settings {
	return *o.settings.Load()
}

// SetSettings swaps the thresholds for turns started from now on.
func (o *Orchestrator) SetSettings(s Settings) {
	if s.BasePrompt == "" {
		s.BasePrompt = promptctx.DefaultBasePrompt
	}
	o.settings.Store(&s)
}

// run carries the per-turn bookkeeping through the stages.
type run struct {
	settings Settings
	res      Result
}

func (r *run) enter(s State) { r.res.Path = append(r.res.Path, s) }

// Handle runs one turn for an already transcribed question. It never returns
// an error: failures are reported through [Result.Status].
func (o *Orchestrator) Handle(ctx context.Context, t types.Transcript) Result {
	ctx, span := observe.StartSpan(ctx, "turn.handle")
	defer span.End()
	start := time.Now()
	if o.metrics != nil {
		o.metrics.ActiveTurns.Add(ctx, 1)
		defer o.metrics.ActiveTurns.Add(ctx, -1)
	}

	r := &run{settings: o.Settings()}
	r.res.Transcript = t
	r.enter(Init)

	g := gate.Gate{Threshold: r.settings.ConfidenceThreshold, MinWords: r.settings.MinWords}
	decision := g.Decide(t)
	r.enter(Gated)

	log := observe.Logger(ctx)
	log.Debug("turn: gated",
		"decision", decision.String(),
		"confidence", t.Confidence,
		"has_confidence", t.HasConfidence,
	)

	if decision == gate.Clarify {
		o.clarify(ctx, r)
	} else {
		o.answer(ctx, r, t)
	}

	elapsed := time.Since(start)
	if o.metrics != nil {
		o.metrics.RecordTurn(ctx, string(r.res.Status), elapsed)
	}
	log.Info("turn: finished",
		"status", r.res.Status,
		"path", pathString(r.res.Path),
		"elapsed", elapsed,
	)
	return r.res
}

// HandleAudio transcribes wav and runs a turn on the result. A failing ASR
// call yields an empty transcript without confidence, which the gate sends
// down the normal path.
func (o *Orchestrator) HandleAudio(ctx context.Context, wav []byte) Result {
	t, err := o.Transcribe(ctx, wav)
	if err != nil {
		observe.Logger(ctx).Warn("turn: transcription failed, continuing with empty transcript", "err", err)
		t = types.Transcript{}
	}
	return o.Handle(ctx, t)
}

// Transcribe runs ASR alone, bounded by the ASR timeout.
func (o *Orchestrator) Transcribe(ctx context.Context, wav []byte) (types.Transcript, error) {
	if o.collab.ASR == nil {
		return types.Transcript{}, errors.New("turn: no ASR provider configured")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.ASR)
	defer cancel()
	ctx, stage := observe.StartStage(ctx, "asr", o.hist(func(m *observe.Metrics) histogram { return m.ASRDuration }))
	t, err := o.collab.ASR.Transcribe(ctx, wav)
	stage.End(ctx, err)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("turn: transcribe: %w", err)
	}
	return t, nil
}

// Attention asks the model to call a distracted student back and speaks the
// answer. No transcript is involved and nothing is remembered.
func (o *Orchestrator) Attention(ctx context.Context) Result {
	r := &run{settings: o.Settings()}
	r.enter(Init)
	o.respond(ctx, r, llm.CompletionRequest{SystemPrompt: promptctx.AttentionInstruction}, StatusOK, nil)
	return r.res
}

// ── branches ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) clarify(ctx context.Context, r *run) {
	r.enter(Clarifying)
	req := llm.UserRequest(r.settings.BasePrompt, promptctx.ClarifyInstruction)
	o.respond(ctx, r, req, StatusClarify, nil)
}

func (o *Orchestrator) answer(ctx context.Context, r *run, t types.Transcript) {
	r.enter(Enriching)
	e := o.enrichment(ctx, t.Text, r.settings.SimilarityThreshold)
	system := promptctx.Build(r.settings.BasePrompt, e.Sentiment, e.Matches)
	req := llm.UserRequest(system, t.Text)

	remember := func(answer string) {
		o.remember(ctx, r.settings, t.Text, answer, e)
	}
	o.respond(ctx, r, req, StatusOK, remember)
}

func (o *Orchestrator) enrichment(ctx context.Context, text string, threshold float64) enrich.Enrichment {
	if o.collab.Enricher == nil {
		return enrich.Enrichment{}
	}
	return o.collab.Enricher.Enrich(ctx, text, threshold)
}

// respond is the shared Responding → Synthesizing → Done tail. afterAnswer,
// when non-nil, runs once the normalised answer is known and before speech
// synthesis is awaited.
func (o *Orchestrator) respond(ctx context.Context, r *run, req llm.CompletionRequest, status Status, afterAnswer func(answer string)) {
	r.enter(Responding)
	raw, err := o.complete(ctx, req)
	if err != nil {
		o.fail(ctx, r, &UpstreamError{Stage: "llm", Err: err})
		return
	}
	answer := Normalize(raw)
	if afterAnswer != nil {
		afterAnswer(answer)
	}

	r.enter(Synthesizing)
	r.res.Message = answer
	if answer != "" {
		audio, err := o.synthesize(ctx, answer)
		if err != nil {
			o.fail(ctx, r, &UpstreamError{Stage: "tts", Err: err})
			return
		}
		r.res.Audio = audio.WAV
		r.res.SampleRate = audio.SampleRate
	}
	r.res.Status = status
	r.enter(Done)
}

func (o *Orchestrator) fail(ctx context.Context, r *run, err *UpstreamError) {
	observe.Logger(ctx).Error("turn: upstream failure", "stage", err.Stage, "err", err.Err)
	r.res.Status = StatusError
	r.res.Message = ErrorMessage
	r.res.Audio = nil
	r.res.SampleRate = 0
	r.res.ErrorDetail = err.Error()
	r.res.Err = err
	r.enter(Errored)
}

// ── collaborator calls ───────────────────────────────────────────────────────

func (o *Orchestrator) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.LLM)
	defer cancel()
	ctx, stage := observe.StartStage(ctx, "llm", o.hist(func(m *observe.Metrics) histogram { return m.LLMDuration }))
	resp, err := o.collab.LLM.Complete(ctx, req)
	stage.End(ctx, err)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) (tts.Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.TTS)
	defer cancel()
	ctx, stage := observe.StartStage(ctx, "tts", o.hist(func(m *observe.Metrics) histogram { return m.TTSDuration }))
	fut := workpool.Submit(o.pool, ctx, func(ctx context.Context) (tts.Audio, error) {
		return o.collab.TTS.Synthesize(ctx, text)
	})
	audio, err := fut.Wait(ctx)
	stage.End(ctx, err)
	return audio, err
}

// remember submits the detached memory write for an answered question unless
// the question is already remembered closely enough.
func (o *Orchestrator) remember(ctx context.Context, s Settings, question, answer string, e enrich.Enrichment) {
	if o.collab.Memory == nil {
		return
	}
	if strings.TrimSpace(question) == "" || answer == "" {
		o.recordWrite(ctx, writeSkipped)
		return
	}
	if e.Nearest != nil && e.Nearest.Similarity >= s.DedupThreshold {
		observe.Logger(ctx).Debug("turn: question already remembered, not storing",
			"similarity", e.Nearest.Similarity,
		)
		o.recordWrite(ctx, writeSuppressed)
		return
	}

	tags := e.Sentiment.Label
	o.pool.Detach("memory.insert", o.timeouts.MemoryWrite, func(bg context.Context) error {
		id, err := o.collab.Memory.Insert(bg, question, answer, tags)
		if err != nil {
			o.recordWrite(bg, writeError)
			return fmt.Errorf("turn: remember exchange: %w", err)
		}
		o.recordWrite(bg, writeOK)
		observe.Logger(ctx).Debug("turn: exchange remembered", "id", id)
		return nil
	})
}

func (o *Orchestrator) recordWrite(ctx context.Context, status string) {
	if o.metrics != nil {
		o.metrics.RecordCacheWrite(ctx, status)
	}
}

type histogram = metric.Float64Histogram

func (o *Orchestrator) hist(pick func(*observe.Metrics) histogram) histogram {
	if o.metrics == nil {
		return nil
	}
	return pick(o.metrics)
}
