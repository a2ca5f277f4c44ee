// Package mock is a scripted [llm.Provider] for tests.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Ciao!"}}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/elia/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider answers every request with CompleteResponse and CompleteErr, or
// with CompleteFunc when set. Configure it before use.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	CompleteFunc     func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteDelay holds each call back until it elapses or ctx ends.
	CompleteDelay time.Duration

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.CompleteDelay > 0 {
		t := time.NewTimer(p.CompleteDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.CompleteFunc != nil {
		return p.CompleteFunc(req)
	}
	return p.CompleteResponse, p.CompleteErr
}

// CallCount is the number of Complete calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// LastRequest is the latest request, or the zero value before any call.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return llm.CompletionRequest{}
	}
	return p.requests[len(p.requests)-1]
}
