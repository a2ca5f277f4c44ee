package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/elia/pkg/provider/asr"
	asrmock "github.com/MrWong99/elia/pkg/provider/asr/mock"
	"github.com/MrWong99/elia/pkg/provider/llm"
	llmmock "github.com/MrWong99/elia/pkg/provider/llm/mock"
	sentmock "github.com/MrWong99/elia/pkg/provider/sentiment/mock"
	"github.com/MrWong99/elia/pkg/provider/tts"
	ttsmock "github.com/MrWong99/elia/pkg/provider/tts/mock"
	"github.com/MrWong99/elia/pkg/types"
)

// tripOnce makes a single failure open a breaker for the rest of the test.
var tripOnce = FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}}

func TestLLMFallback(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("gemma endpoint 502")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "La fotosintesi è..."}}

	fb := NewLLMFallback(primary, "openai", tripOnce)
	fb.AddFallback("ollama", secondary)

	req := llm.UserRequest("Sei Elia.", "Che cos'è la fotosintesi?")
	for range 2 {
		resp, err := fb.Complete(context.Background(), req)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "La fotosintesi è..." {
			t.Fatalf("content = %q", resp.Content)
		}
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary called %d times, want 1 (breaker open after the first failure)", primary.CallCount())
	}
	if got := secondary.LastRequest(); got.SystemPrompt != "Sei Elia." {
		t.Errorf("fallback got system prompt %q", got.SystemPrompt)
	}
	if fb.cfg.Kind != "llm" {
		t.Errorf("kind = %q, want llm", fb.cfg.Kind)
	}
}

func TestASRFallback(t *testing.T) {
	t.Parallel()
	primary := &asrmock.Provider{TranscribeErr: errors.New("whisper server down")}
	secondary := &asrmock.Provider{Result: types.KnownConfidence("Ciao", 0.9)}

	fb := NewASRFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	tr, err := fb.Transcribe(context.Background(), []byte("RIFF"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Ciao" || !tr.HasConfidence {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("coqui down")}
	secondary := &ttsmock.Provider{Audio: tts.Audio{WAV: []byte("RIFF"), SampleRate: 24000}}

	fb := NewTTSFallback(primary, "coqui", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	audio, err := fb.Synthesize(context.Background(), "Ciao!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.SampleRate != 24000 || secondary.LastText() != "Ciao!" {
		t.Errorf("audio = %+v, text = %q", audio, secondary.LastText())
	}
}

func TestSentimentFallback(t *testing.T) {
	t.Parallel()
	primary := &sentmock.Provider{ClassifyErr: errors.New("inference endpoint 503")}
	secondary := &sentmock.Provider{Result: types.Sentiment{Label: "negative"}}

	fb := NewSentimentFallback(primary, "hfapi", FallbackConfig{})
	fb.AddFallback("llm", secondary)

	s, err := fb.Classify(context.Background(), "Non capisco niente")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if s.Label != "negative" {
		t.Errorf("label = %q, want negative", s.Label)
	}
}

// callerCase drives one wrapper with an input the provider rejects.
type callerCase struct {
	name  string
	err   error
	call  func() error
	calls func() int
}

// Caller mistakes are returned as is and leave the primary's breaker closed.
func TestFallback_CallerErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	asrP := &asrmock.Provider{TranscribeErr: asr.ErrNoAudio}
	asrFB := NewASRFallback(asrP, "whisper", tripOnce)
	ttsP := &ttsmock.Provider{SynthesizeErr: tts.ErrEmptyText}
	ttsFB := NewTTSFallback(ttsP, "coqui", tripOnce)

	tests := []callerCase{
		{
			name:  "asr empty audio",
			err:   asr.ErrNoAudio,
			call:  func() error { _, err := asrFB.Transcribe(context.Background(), nil); return err },
			calls: asrP.CallCount,
		},
		{
			name:  "tts empty text",
			err:   tts.ErrEmptyText,
			call:  func() error { _, err := ttsFB.Synthesize(context.Background(), ""); return err },
			calls: ttsP.CallCount,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for range 3 {
				if err := tc.call(); !errors.Is(err, tc.err) {
					t.Fatalf("err = %v, want %v", err, tc.err)
				}
			}
			if got := tc.calls(); got != 3 {
				t.Errorf("provider called %d times, want 3", got)
			}
		})
	}
}
