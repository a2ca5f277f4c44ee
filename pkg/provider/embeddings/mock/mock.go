// Package mock is a scripted [embeddings.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/elia/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider returns Vectors[text], falling back to EmbedResult, and records
// every text it was asked to embed.
type Provider struct {
	Vectors         map[string][]float32
	EmbedResult     []float32
	EmbedErr        error
	DimensionsValue int
	ModelIDValue    string

	mu    sync.Mutex
	texts []string
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	switch {
	case p.EmbedErr != nil:
		return nil, p.EmbedErr
	case p.Vectors[text] != nil:
		return p.Vectors[text], nil
	}
	return p.EmbedResult, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return p.ModelIDValue }

// Texts returns the embedded texts in call order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

// CallCount is len(Texts()).
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.texts)
}
