// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., an OpenAI-compatible
// endpoint serving Gemma, or any vendor reachable through any-llm-go) and
// exposes a uniform interface for the Elia turn pipeline to request
// completions without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"strings"

	"github.com/MrWong99/elia/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
//
// Either SystemPrompt or Messages must be non-empty. The attention prompt, for
// example, sends only a SystemPrompt.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation. Backends whose model has no system role receive it through
	// [FoldSystemPrompt]. Omitted entirely when empty.
	SystemPrompt string

	// Messages is the ordered conversation. For a single turn this is one
	// "user" message holding the student's question.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// UserRequest builds the common single-turn request: an optional system
// prompt followed by one user message. An empty user text produces a request
// with no messages.
func UserRequest(systemPrompt, userText string) CompletionRequest {
	req := CompletionRequest{SystemPrompt: systemPrompt}
	if userText != "" {
		req.Messages = []types.Message{{Role: "user", Content: userText}}
	}
	return req
}

// NoSystemRole reports whether model belongs to a family whose chat template
// has no system turn. Hosted Gemma endpoints reject a system message outright.
func NoSystemRole(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemma")
}

// FoldSystemPrompt moves req.SystemPrompt into the first user message,
// separated by a blank line. A request without user messages gets one holding
// only the system prompt. The returned request never carries a SystemPrompt.
func FoldSystemPrompt(req CompletionRequest) CompletionRequest {
	if req.SystemPrompt == "" {
		return req
	}
	sys := req.SystemPrompt
	req.SystemPrompt = ""
	msgs := make([]types.Message, 0, len(req.Messages)+1)
	folded := false
	for _, m := range req.Messages {
		if !folded && m.Role == "user" {
			m.Content = sys + "\n\n" + m.Content
			folded = true
		}
		msgs = append(msgs, m)
	}
	if !folded {
		msgs = append([]types.Message{{Role: "user", Content: sys}}, msgs...)
	}
	req.Messages = msgs
	return req
}

// Defaults fills sampling settings a request leaves at zero.
type Defaults struct {
	Temperature float64
	MaxTokens   int
}

// Apply returns req with zero Temperature and MaxTokens taken from d.
func (d Defaults) Apply(req CompletionRequest) CompletionRequest {
	if req.Temperature == 0 {
		req.Temperature = d.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.MaxTokens
	}
	return req
}
