package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/elia/internal/config"
	"github.com/MrWong99/elia/internal/observe"
	"github.com/MrWong99/elia/internal/resilience"
)

// BuildProviders instantiates every collaborator named in cfg from reg.
// Entries with fallbacks are wrapped in a circuit-breaking fallback group
// tuned by cfg.Resilience; m, when non-nil, records every attempt.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	pc := cfg.Providers

	// ── LLM ───────────────────────────────────────────────────────────────
	primaryLLM, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
	}
	ps.track(primaryLLM)
	ps.LLM = primaryLLM
	if len(pc.LLM.Fallbacks) > 0 {
		fb := resilience.NewLLMFallback(primaryLLM, pc.LLM.Name, fallbackConfig(cfg, "llm", m))
		for _, e := range pc.LLM.Fallbacks {
			p, err := reg.CreateLLM(e)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", e.Name, err)
			}
			ps.track(p)
			fb.AddFallback(e.Name, p)
		}
		ps.LLM = fb
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "fallbacks", len(pc.LLM.Fallbacks))

	// ── ASR ───────────────────────────────────────────────────────────────
	primaryASR, err := reg.CreateASR(pc.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", pc.ASR.Name, err)
	}
	ps.track(primaryASR)
	ps.ASR = primaryASR
	if len(pc.ASR.Fallbacks) > 0 {
		fb := resilience.NewASRFallback(primaryASR, pc.ASR.Name, fallbackConfig(cfg, "asr", m))
		for _, e := range pc.ASR.Fallbacks {
			p, err := reg.CreateASR(e)
			if err != nil {
				return nil, fmt.Errorf("create asr fallback %q: %w", e.Name, err)
			}
			ps.track(p)
			fb.AddFallback(e.Name, p)
		}
		ps.ASR = fb
	}
	slog.Info("provider created", "kind", "asr", "name", pc.ASR.Name, "fallbacks", len(pc.ASR.Fallbacks))

	// ── TTS ───────────────────────────────────────────────────────────────
	primaryTTS, err := reg.CreateTTS(pc.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", pc.TTS.Name, err)
	}
	ps.track(primaryTTS)
	ps.TTS = primaryTTS
	if len(pc.TTS.Fallbacks) > 0 {
		fb := resilience.NewTTSFallback(primaryTTS, pc.TTS.Name, fallbackConfig(cfg, "tts", m))
		for _, e := range pc.TTS.Fallbacks {
			p, err := reg.CreateTTS(e)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", e.Name, err)
			}
			ps.track(p)
			fb.AddFallback(e.Name, p)
		}
		ps.TTS = fb
	}
	slog.Info("provider created", "kind", "tts", "name", pc.TTS.Name, "fallbacks", len(pc.TTS.Fallbacks))

	// ── Sentiment ─────────────────────────────────────────────────────────
	// Classifiers that prompt a model share the configured LLM chain.
	primarySent, err := reg.CreateSentiment(pc.Sentiment, ps.LLM)
	if err != nil {
		return nil, fmt.Errorf("create sentiment provider %q: %w", pc.Sentiment.Name, err)
	}
	ps.track(primarySent)
	ps.Sentiment = primarySent
	if len(pc.Sentiment.Fallbacks) > 0 {
		fb := resilience.NewSentimentFallback(primarySent, pc.Sentiment.Name, fallbackConfig(cfg, "sentiment", m))
		for _, e := range pc.Sentiment.Fallbacks {
			p, err := reg.CreateSentiment(e, ps.LLM)
			if err != nil {
				return nil, fmt.Errorf("create sentiment fallback %q: %w", e.Name, err)
			}
			ps.track(p)
			fb.AddFallback(e.Name, p)
		}
		ps.Sentiment = fb
	}
	slog.Info("provider created", "kind", "sentiment", "name", pc.Sentiment.Name, "fallbacks", len(pc.Sentiment.Fallbacks))

	// ── Embeddings ────────────────────────────────────────────────────────
	// No fallback: vectors from different models are not comparable.
	emb, err := reg.CreateEmbeddings(pc.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", pc.Embeddings.Name, err)
	}
	if dims := emb.Dimensions(); dims > 0 && dims != cfg.Memory.EmbeddingDimensions {
		return nil, fmt.Errorf("embeddings provider %q produces %d dimensions, memory.embedding_dimensions is %d",
			pc.Embeddings.Name, dims, cfg.Memory.EmbeddingDimensions)
	}
	ps.track(emb)
	ps.Embeddings = emb
	slog.Info("provider created", "kind", "embeddings", "name", pc.Embeddings.Name, "model", emb.ModelID())

	return ps, nil
}

// track remembers providers that hold resources, such as a loaded model,
// so the App can release them on shutdown.
func (ps *Providers) track(p any) {
	if c, ok := p.(io.Closer); ok {
		ps.Closers = append(ps.Closers, c)
	}
}

func fallbackConfig(cfg *config.Config, kind string, m *observe.Metrics) resilience.FallbackConfig {
	r := cfg.Resilience
	return resilience.FallbackConfig{
		Kind:    kind,
		Metrics: m,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  r.MaxFailures,
			ResetTimeout: r.ResetTimeout,
			HalfOpenMax:  r.HalfOpenMax,
		},
	}
}
