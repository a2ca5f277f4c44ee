// Package openai embeds text through the OpenAI embeddings API or a
// compatible server (text-embeddings-inference, vLLM, LocalAI) hosting models
// such as BAAI/bge-m3.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/elia/pkg/provider/embeddings"
)

// DefaultModel is used when New receives an empty model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// fallbackDimensions is assumed for models missing from the known table.
const fallbackDimensions = 1536

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text through one model.
type Provider struct {
	client oai.Client
	model  string
	dims   int

	// shorten asks the API to truncate vectors to dims. Only the
	// text-embedding-3 family supports it.
	shorten bool
}

type settings struct {
	request []option.RequestOption
	dims    int
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.request = append(s.request, option.WithBaseURL(url)) }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.request = append(s.request, option.WithRequestTimeout(d)) }
}

// WithDimensions fixes the vector width. text-embedding-3 models shorten
// their output to match; other models must already produce it.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// New returns a Provider for model, or DefaultModel when empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{}
	for _, o := range opts {
		o(&s)
	}

	native := embeddings.KnownDimensions(model)
	if native == 0 {
		native = fallbackDimensions
	}
	dims := native
	if s.dims > 0 {
		dims = s.dims
	}
	return &Provider{
		client:  oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.request...)...),
		model:   model,
		dims:    dims,
		shorten: dims != native && strings.Contains(strings.ToLower(model), "text-embedding-3"),
	}, nil
}

// Embed returns the vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	}
	if p.shorten {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed with %s: %w", p.model, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: %s returned no vector", p.model)
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	if err := embeddings.CheckLength(p.model, vec, p.dims); err != nil {
		return nil, err
	}
	return vec, nil
}

// Dimensions returns the vector width.
func (p *Provider) Dimensions() int { return p.dims }

// ModelID returns the model name.
func (p *Provider) ModelID() string { return p.model }
