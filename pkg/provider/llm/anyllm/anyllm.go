// Package anyllm reaches every LLM vendor that github.com/mozilla-ai/any-llm-go
// supports, local (Ollama, llama.cpp, llamafile) or hosted (Gemini, Anthropic,
// Mistral and others), behind the llm.Provider interface.
//
//	p, err := anyllm.New("ollama", "gemma3:27b", anyllm.WithBackendOptions(anyllmlib.WithBaseURL(url)))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/elia/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type factory func(...anyllmlib.Option) (anyllmlib.Provider, error)

func adapt[P anyllmlib.Provider](newFn func(...anyllmlib.Option) (P, error)) factory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return newFn(opts...) }
}

var factories = map[string]factory{
	"openai":    adapt(anyllmoai.New),
	"anthropic": adapt(anthropic.New),
	"gemini":    adapt(gemini.New),
	"ollama":    adapt(ollama.New),
	"deepseek":  adapt(deepseek.New),
	"mistral":   adapt(mistral.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
}

// Backends lists the vendor names accepted by New.
var Backends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Provider completes requests through one any-llm backend and model.
type Provider struct {
	backend  anyllmlib.Provider
	vendor   string
	model    string
	fold     bool
	defaults llm.Defaults
}

type settings struct {
	backend  []anyllmlib.Option
	fold     *bool
	defaults llm.Defaults
}

// Option configures a Provider.
type Option func(*settings)

// WithBackendOptions passes options such as anyllmlib.WithAPIKey or
// anyllmlib.WithBaseURL to the vendor client. Without an API key the vendor
// reads its usual environment variable.
func WithBackendOptions(opts ...anyllmlib.Option) Option {
	return func(s *settings) { s.backend = append(s.backend, opts...) }
}

// WithSystemRole overrides whether the system prompt is sent as its own
// message. By default it is folded into the user turn for model families
// reported by [llm.NoSystemRole].
func WithSystemRole(enabled bool) Option {
	return func(s *settings) {
		fold := !enabled
		s.fold = &fold
	}
}

// WithDefaults sets the temperature and token cap used when a request leaves
// them at zero.
func WithDefaults(d llm.Defaults) Option {
	return func(s *settings) { s.defaults = d }
}

// New returns a Provider for model served by vendor, one of [Backends].
func New(vendor, model string, opts ...Option) (*Provider, error) {
	if vendor == "" {
		return nil, errors.New("anyllm: vendor must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	vendor = strings.ToLower(vendor)
	mk, ok := factories[vendor]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported vendor %q; supported: %s", vendor, strings.Join(Backends, ", "))
	}
	s := settings{}
	for _, o := range opts {
		o(&s)
	}
	backend, err := mk(s.backend...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s client: %w", vendor, err)
	}
	p := &Provider{backend: backend, vendor: vendor, model: model, fold: llm.NoSystemRole(model), defaults: s.defaults}
	if s.fold != nil {
		p.fold = *s.fold
	}
	return p, nil
}

// Complete sends req and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params := p.buildParams(req)
	if len(params.Messages) == 0 {
		return nil, errors.New("anyllm: request has neither system prompt nor messages")
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion with %s: %w", p.vendor, p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.vendor)
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	req = p.defaults.Apply(req)
	if p.fold {
		req = llm.FoldSystemPrompt(req)
	}

	params := anyllmlib.CompletionParams{Model: p.model}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
