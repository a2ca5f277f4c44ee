// Package ollama embeds text with a model served by Ollama (bge-m3,
// nomic-embed-text, mxbai-embed-large and the like), using Ollama's own Go
// client against the /api/embed endpoint.
//
//	p, err := ollama.New("", "bge-m3") // http://localhost:11434
//	vec, err := p.Embed(ctx, "Che cos'è la fotosintesi?")
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/elia/pkg/provider/embeddings"
)

// DefaultBaseURL is where a local Ollama listens by default.
const DefaultBaseURL = "http://localhost:11434"

// probeTimeout bounds the request that discovers an unknown model's width.
const probeTimeout = 10 * time.Second

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text through one Ollama model.
//
// The vector width comes from WithDimensions, else from the table of known
// models, else from one probe request made by the first Dimensions call. A
// failed probe is retried on the next call.
type Provider struct {
	client    *api.Client
	model     string
	keepAlive *api.Duration

	mu   sync.Mutex
	dims int
}

type settings struct {
	timeout   time.Duration
	dims      int
	keepAlive *time.Duration
}

// Option configures a Provider.
type Option func(*settings)

// WithTimeout bounds every HTTP request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithDimensions fixes the vector width and skips the probe.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// WithKeepAlive sets how long Ollama keeps the model loaded after a request.
// A negative duration keeps it loaded indefinitely.
func WithKeepAlive(d time.Duration) Option {
	return func(s *settings) { s.keepAlive = &d }
}

// New returns a Provider for model on the Ollama server at baseURL, or
// DefaultBaseURL when empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: parse base url: %w", err)
	}
	s := settings{}
	for _, o := range opts {
		o(&s)
	}

	p := &Provider{
		client: api.NewClient(u, &http.Client{Timeout: s.timeout}),
		model:  model,
		dims:   s.dims,
	}
	if s.keepAlive != nil {
		p.keepAlive = &api.Duration{Duration: *s.keepAlive}
	}
	if p.dims == 0 {
		p.dims = embeddings.KnownDimensions(model)
	}
	return p, nil
}

// Embed returns the vector for text. A vector whose width differs from a
// known Dimensions is rejected.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	want := p.dims
	p.mu.Unlock()
	if err := embeddings.CheckLength(p.model, vec, want); err != nil {
		return nil, err
	}
	return vec, nil
}

// Dimensions returns the vector width, or 0 while it is unknown and the probe
// keeps failing.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dims == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		if vec, err := p.embed(ctx, "probe"); err == nil {
			p.dims = len(vec)
		}
	}
	return p.dims
}

// ModelID returns the Ollama model name.
func (p *Provider) ModelID() string { return p.model }

func (p *Provider) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model:     p.model,
		Input:     text,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed with %s: %w", p.model, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embeddings: %s returned no vector", p.model)
	}
	return resp.Embeddings[0], nil
}
