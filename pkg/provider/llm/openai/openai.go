// Package openai answers completion requests through the Chat Completions
// API, either OpenAI's own or a compatible server such as vLLM, llama.cpp or
// a hosted Gemma endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// errNothingToSend rejects requests with neither system prompt nor messages.
var errNothingToSend = errors.New("openai: request has neither system prompt nor messages")

// Provider is a Chat Completions client bound to one model.
type Provider struct {
	client   oai.Client
	model    string
	fold     bool
	defaults llm.Defaults
}

type settings struct {
	request  []option.RequestOption
	fold     *bool
	defaults llm.Defaults
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.request = append(s.request, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.request = append(s.request, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.request = append(s.request, option.WithRequestTimeout(d)) }
}

// WithMaxRetries sets how often the client retries a failed attempt itself.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.request = append(s.request, option.WithMaxRetries(n)) }
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

// New returns a Provider for model, authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	s := settings{}
	for _, o := range opts {
		o(&s)
	}
	p := &Provider{
		client:   oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.request...)...),
		model:    model,
		fold:     llm.NoSystemRole(model),
		defaults: s.defaults,
	}
	if s.fold != nil {
		p.fold = *s.fold
	}
	return p, nil
}

// Complete sends req and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion with %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s returned no choices", p.model)
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	req = p.defaults.Apply(req)
	if p.fold {
		req = llm.FoldSystemPrompt(req)
	}

	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return oai.ChatCompletionNewParams{}, errNothingToSend
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		return oai.AssistantMessage(m.Content), nil
	case "system":
		return oai.SystemMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
}
