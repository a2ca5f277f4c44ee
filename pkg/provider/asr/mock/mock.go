// Package mock provides a test double for the asr.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: types.KnownConfidence("Che cos'è un atomo?", 0.92),
//	}
//	t, _ := p.Transcribe(ctx, wav)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the WAV payload passed to Transcribe.
	Audio []byte
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe.
	Result types.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeDelay, if positive, makes Transcribe block for that long or
	// until ctx is cancelled.
	TranscribeDelay time.Duration

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, wav []byte) (types.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: wav})
	delay, res, err := p.TranscribeDelay, p.Result, p.TranscribeErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.Transcript{}, ctx.Err()
		}
	}
	if err != nil {
		return types.Transcript{}, err
	}
	return res, nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

var _ asr.Provider = (*Provider)(nil)
