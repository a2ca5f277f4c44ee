package resilience

import (
	"context"

	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/provider/tts"
	"github.com/MrWong99/elia/pkg/types"
)

var (
	_ llm.Provider       = (*LLMFallback)(nil)
	_ asr.Provider       = (*ASRFallback)(nil)
	_ tts.Provider       = (*TTSFallback)(nil)
	_ sentiment.Provider = (*SentimentFallback)(nil)
)

// ── LLM ───────────────────────────────────────────────────────────────────────

// LLMFallback presents a chain of language models as one [llm.Provider].
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

// NewLLMFallback returns a chain starting at primary.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(primary, name, cfg.defaults("llm"))}
}

// Complete asks the first healthy model.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Run(ctx, f.FallbackGroup, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// ── ASR ───────────────────────────────────────────────────────────────────────

// ASRFallback presents a chain of recognisers as one [asr.Provider]. Empty
// uploads never trip a breaker.
type ASRFallback struct {
	*FallbackGroup[asr.Provider]
}

// NewASRFallback returns a chain starting at primary.
func NewASRFallback(primary asr.Provider, name string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{NewFallbackGroup(primary, name, cfg.defaults("asr", asr.ErrNoAudio))}
}

// Transcribe transcribes wav with the first healthy recogniser.
func (f *ASRFallback) Transcribe(ctx context.Context, wav []byte) (types.Transcript, error) {
	return Run(ctx, f.FallbackGroup, func(ctx context.Context, p asr.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, wav)
	})
}

// ── TTS ───────────────────────────────────────────────────────────────────────

// TTSFallback presents a chain of voices as one [tts.Provider]. Empty text
// never trips a breaker.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a chain starting at primary.
func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{NewFallbackGroup(primary, name, cfg.defaults("tts", tts.ErrEmptyText))}
}

// Synthesize renders text with the first healthy voice.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	return Run(ctx, f.FallbackGroup, func(ctx context.Context, p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text)
	})
}

// ── Sentiment ─────────────────────────────────────────────────────────────────

// SentimentFallback presents a chain of classifiers as one
// [sentiment.Provider], typically a hosted model backed by LLM zero-shot
// classification.
type SentimentFallback struct {
	*FallbackGroup[sentiment.Provider]
}

// NewSentimentFallback returns a chain starting at primary.
func NewSentimentFallback(primary sentiment.Provider, name string, cfg FallbackConfig) *SentimentFallback {
	return &SentimentFallback{NewFallbackGroup(primary, name, cfg.defaults("sentiment"))}
}

// Classify classifies text with the first healthy classifier.
func (f *SentimentFallback) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	return Run(ctx, f.FallbackGroup, func(ctx context.Context, p sentiment.Provider) (types.Sentiment, error) {
		return p.Classify(ctx, text)
	})
}
