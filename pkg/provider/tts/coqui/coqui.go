// Package coqui synthesises speech on a self-hosted Coqui TTS server.
//
// Two server flavours are supported. The stock server
// (ghcr.io/coqui-ai/tts-cpu) answers GET /api/tts with query parameters; the
// XTTS v2 API server answers POST /tts_to_audio/ with a JSON body and clones
// the voice of a reference speaker file. Both return a WAV file.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/elia/pkg/audio"
	"github.com/MrWong99/elia/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "it"
	defaultTimeout  = 30 * time.Second

	standardPath = "/api/tts"
	xttsPath     = "/tts_to_audio/"

	maxWAVBytes   = 64 << 20
	maxErrorBytes = 512
)

// APIMode names the server flavour.
type APIMode string

const (
	// APIModeStandard is the stock Coqui server. Default.
	APIModeStandard APIMode = "standard"
	// APIModeXTTS is the XTTS v2 API server. It needs a speaker.
	APIModeXTTS APIMode = "xtts"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code, "it" by default.
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithSpeaker sets the voice: speaker_id on the stock server, the
// speaker_wav reference on XTTS.
func WithSpeaker(speaker string) Option { return func(p *Provider) { p.speaker = speaker } }

// WithTimeout bounds each HTTP request. Default 30s.
func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.client.Timeout = d } }

// WithAPIMode picks the server flavour.
func WithAPIMode(mode APIMode) Option { return func(p *Provider) { p.mode = mode } }

// Provider is a [tts.Provider] for one Coqui server. Safe for concurrent use.
type Provider struct {
	base     string
	language string
	speaker  string
	mode     APIMode
	client   *http.Client
}

// New returns a Provider for the server at baseURL, for example
// "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: base URL is required")
	}
	p := &Provider{
		base:     strings.TrimRight(baseURL, "/"),
		language: defaultLanguage,
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	switch p.mode {
	case APIModeStandard:
	case APIModeXTTS:
		if p.speaker == "" {
			return nil, errors.New("coqui: xtts mode needs a speaker reference")
		}
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	return p, nil
}

// Synthesize renders text and reports the sample rate found in the WAV
// header.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	req, err := p.request(ctx, text)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return tts.Audio{}, fmt.Errorf("coqui: %s: status %d: %s", req.URL.Path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxWAVBytes))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: read audio: %w", err)
	}
	info, err := audio.Inspect(wav)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: %w", err)
	}
	return tts.Audio{WAV: wav, SampleRate: info.SampleRate}, nil
}

func (p *Provider) request(ctx context.Context, text string) (*http.Request, error) {
	if p.mode == APIModeXTTS {
		body, err := json.Marshal(xttsBody{Text: text, SpeakerWav: p.speaker, Language: p.language})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+xttsPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	q := url.Values{"text": {text}}
	if p.speaker != "" {
		q.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.base+standardPath+"?"+q.Encode(), nil)
}

type xttsBody struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}
