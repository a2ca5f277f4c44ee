package turn

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/elia/internal/promptctx"
)

// Settings are the thresholds a turn reads at its start. They can be swapped
// at runtime with [Orchestrator.SetSettings]; a running turn keeps the values
// it started with.
type Settings struct {
	// ConfidenceThreshold is the minimum ASR confidence answered without a
	// request to repeat.
	ConfidenceThreshold float64

	// MinWords, when positive, also clarifies transcripts with fewer words.
	MinWords int

	// SimilarityThreshold is the minimum similarity for a remembered exchange
	// to enter the prompt. Inclusive.
	SimilarityThreshold float64

	// DedupThreshold suppresses the memory write when the nearest remembered
	// question is at least this similar. Inclusive.
	DedupThreshold float64

	// BasePrompt is the persona prompt.
	BasePrompt string
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		ConfidenceThreshold: 0.60,
		SimilarityThreshold: 0.70,
		DedupThreshold:      1.0,
		BasePrompt:          promptctx.DefaultBasePrompt,
	}
}

// Validate checks that every threshold lies in [0, 1].
func (s Settings) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"confidence threshold": s.ConfidenceThreshold,
		"similarity threshold": s.SimilarityThreshold,
		"dedup threshold":      s.DedupThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("turn: %s %v out of range [0, 1]", name, v))
		}
	}
	if s.MinWords < 0 {
		errs = append(errs, fmt.Errorf("turn: min words %d must not be negative", s.MinWords))
	}
	return errors.Join(errs...)
}

// Timeouts bound every collaborator call a turn makes.
type Timeouts struct {
	ASR         time.Duration
	LLM         time.Duration
	TTS         time.Duration
	MemoryWrite time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ASR:         30 * time.Second,
		LLM:         30 * time.Second,
		TTS:         30 * time.Second,
		MemoryWrite: 10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.ASR <= 0 {
		t.ASR = d.ASR
	}
	if t.LLM <= 0 {
		t.LLM = d.LLM
	}
	if t.TTS <= 0 {
		t.TTS = d.TTS
	}
	if t.MemoryWrite <= 0 {
		t.MemoryWrite = d.MemoryWrite
	}
	return t
}
