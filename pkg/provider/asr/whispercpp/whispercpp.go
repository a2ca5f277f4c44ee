//go:build whispercpp

package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/elia/pkg/audio"
	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/types"
)

const defaultLanguage = "it"

// Compile-time assertion that Provider implements asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the decoding language. Defaults to "it". "auto" lets
// whisper.cpp detect it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads sets the number of decoder threads per call. Zero keeps the
// library default.
func WithThreads(n int) Option {
	return func(p *Provider) { p.threads = n }
}

// Provider implements asr.Provider on a whisper.cpp model loaded in process.
type Provider struct {
	model    whisperlib.Model
	language string
	threads  int
}

// New loads the model at modelPath. The caller must call Close when done.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *Provider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe converts the WAV to 16 kHz mono and decodes it. Decoding is not
// interruptible; ctx is only checked before and after.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (types.Transcript, error) {
	if len(wav) == 0 {
		return types.Transcript{}, asr.ErrNoAudio
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	mono, err := audio.ToMono16(wav, SampleRate)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whispercpp: %w", err)
	}
	pcm, _, err := audio.DecodePCM16(mono)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whispercpp: %w", err)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whispercpp: unsupported language, using model default", "language", p.language, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(uint(p.threads))
	}

	if err := wctx.Process(pcmToFloat32(pcm), nil, nil, nil); err != nil {
		return types.Transcript{}, fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var segments []segment
	for {
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whispercpp: read segment: %w", err)
		}
		seg := segment{text: s.Text, tokens: make([]token, 0, len(s.Tokens))}
		for _, tok := range s.Tokens {
			seg.tokens = append(seg.tokens, token{text: tok.Text, p: tok.P})
		}
		segments = append(segments, seg)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	lang := p.language
	if lang == "auto" {
		lang = wctx.DetectedLanguage()
	}
	return buildTranscript(segments, lang), nil
}
