// Package openai provides an ASR provider backed by the OpenAI transcription
// API (POST /audio/transcriptions) or any server that mirrors it.
//
// Confidence is derived from whichever signal the selected model supports:
//
//   - whisper-1 is asked for verbose_json with word and segment timestamps;
//     the segment avg_logprob and no_speech_prob values are aggregated the same
//     way as for a self-hosted whisper server.
//   - gpt-4o-transcribe and gpt-4o-mini-transcribe only return plain JSON, so
//     the provider asks for token logprobs and reports the mean token
//     probability.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/types"
)

const (
	defaultModel    = oai.AudioModelWhisper1
	defaultLanguage = "it"
)

var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

type config struct {
	baseURL  string
	model    string
	language string
	prompt   string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithLanguage sets the ISO-639-1 input language. Defaults to "it".
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithPrompt sets a vocabulary hint passed along with every request.
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a transcription Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai asr: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel, language: defaultLanguage}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
		prompt:   cfg.prompt,
	}, nil
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (types.Transcript, error) {
	if len(wav) == 0 {
		return types.Transcript{}, asr.ErrNoAudio
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, p.buildParams(wav))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai asr: transcription: %w", err)
	}

	if p.verbose() {
		var v asr.Verbose
		if err := json.Unmarshal([]byte(res.RawJSON()), &v); err != nil {
			return types.Transcript{}, fmt.Errorf("openai asr: parse verbose response: %w", err)
		}
		return v.Transcript(), nil
	}

	text := strings.TrimSpace(res.Text)
	logprobs := make([]float64, 0, len(res.Logprobs))
	for _, lp := range res.Logprobs {
		logprobs = append(logprobs, lp.Logprob)
	}
	t := types.UnknownConfidence(text)
	if conf, ok := asr.LogprobConfidence(logprobs); ok {
		t = types.KnownConfidence(text, conf)
	}
	t.Language = p.language
	return t, nil
}

// verbose reports whether the configured model supports verbose_json.
func (p *Provider) verbose() bool {
	return p.model == oai.AudioModelWhisper1
}

func (p *Provider) buildParams(wav []byte) oai.AudioTranscriptionNewParams {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: p.model,
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}
	if p.prompt != "" {
		params.Prompt = param.NewOpt(p.prompt)
	}
	if p.verbose() {
		params.ResponseFormat = oai.AudioResponseFormatVerboseJSON
		params.TimestampGranularities = []string{"word", "segment"}
	} else {
		params.ResponseFormat = oai.AudioResponseFormatJSON
		params.Include = []oai.TranscriptionInclude{oai.TranscriptionIncludeLogprobs}
	}
	return params
}
