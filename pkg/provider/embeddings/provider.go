// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider wraps a service that maps text strings to dense float32
// vectors (e.g., BAAI/bge-m3 behind an OpenAI-compatible server, OpenAI
// text-embedding-3, or a local Ollama model). The semantic memory cache embeds
// every question it stores and every query it searches with the same Provider.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Vectors from different models
// must never be compared with each other.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails or
	// ctx is cancelled. The text is passed through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced by
	// this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings (e.g., "BAAI/bge-m3").
	ModelID() string
}

// KnownDimensions returns the vector length of recognised embedding models,
// or 0 when the model is unknown.
func KnownDimensions(model string) int {
	m := strings.ToLower(model)
	for _, k := range knownModels {
		if strings.Contains(m, k.name) {
			return k.dims
		}
	}
	return 0
}

var knownModels = []struct {
	name string
	dims int
}{
	{"text-embedding-3-large", 3072},
	{"text-embedding-3-small", 1536},
	{"text-embedding-ada-002", 1536},
	{"bge-m3", 1024},
	{"bge-large", 1024},
	{"mxbai-embed-large", 1024},
	{"bge-base", 768},
	{"nomic-embed-text", 768},
	{"all-minilm", 384},
}

// CheckLength returns an error unless vec has want entries. A non-positive
// want accepts any length.
func CheckLength(model string, vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("embeddings: %s returned %d dimensions, want %d", model, len(vec), want)
	}
	return nil
}
