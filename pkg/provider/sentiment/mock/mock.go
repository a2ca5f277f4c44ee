// Package mock provides a test double for the sentiment.Provider interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/types"
)

// Provider is a mock implementation of sentiment.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Classify.
	Result types.Sentiment

	// ClassifyErr, if non-nil, is returned as the error from Classify.
	ClassifyErr error

	// ClassifyDelay, if positive, makes Classify block for that long or until
	// ctx is cancelled.
	ClassifyDelay time.Duration

	// ClassifyCalls records the text of every Classify call in order.
	ClassifyCalls []string
}

// Classify records the call and returns Result, ClassifyErr.
func (p *Provider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	p.mu.Lock()
	p.ClassifyCalls = append(p.ClassifyCalls, text)
	delay, res, err := p.ClassifyDelay, p.Result, p.ClassifyErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.Sentiment{}, ctx.Err()
		}
	}
	if err != nil {
		return types.Sentiment{}, err
	}
	return res, nil
}

// CallCount returns the number of recorded Classify calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ClassifyCalls)
}

var _ sentiment.Provider = (*Provider)(nil)
