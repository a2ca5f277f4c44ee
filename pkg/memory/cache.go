package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/elia/pkg/provider/embeddings"
)

// Cache is the semantic memory cache used by the turn pipeline.
type Cache struct {
	index    Index
	embedder embeddings.Provider
	now      func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the time source used for Record.CreatedAt.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a Cache over index, embedding text with embedder.
func NewCache(index Index, embedder embeddings.Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		index:    index,
		embedder: embedder,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search returns up to topK matches for query, most similar first. It never
// fails: embedding or backend errors are logged and produce an empty slice.
func (c *Cache) Search(ctx context.Context, query string, topK int) []Match {
	matches, err := c.Lookup(ctx, query, topK)
	if err != nil {
		slog.Warn("memory: search failed", "err", err)
		return []Match{}
	}
	return matches
}

// Lookup is Search with the error surfaced, for callers that record
// degradation themselves.
func (c *Cache) Lookup(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return []Match{}, nil
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	neighbors, err := c.index.Nearest(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("memory: nearest: %w", err)
	}

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		matches = append(matches, Match{
			Question:   n.Record.Question,
			Answer:     n.Record.Answer,
			Similarity: Similarity(n.Distance),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Insert embeds question and appends a new record. It never checks for
// duplicates.
func (c *Cache) Insert(ctx context.Context, question, answer, tags string) (uuid.UUID, error) {
	if strings.TrimSpace(question) == "" {
		return uuid.Nil, ErrEmptyQuestion
	}

	vec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return uuid.Nil, fmt.Errorf("memory: embed question: %w", err)
	}

	rec := Record{
		ID:        uuid.New(),
		Question:  question,
		Answer:    answer,
		Embedding: vec,
		Tags:      tags,
		CreatedAt: c.now().UTC(),
	}
	if err := c.index.Add(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("memory: add record: %w", err)
	}
	return rec.ID, nil
}

// Records returns every stored record, oldest first.
func (c *Cache) Records(ctx context.Context) ([]Record, error) {
	recs, err := c.index.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: list records: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored records.
func (c *Cache) Count(ctx context.Context) (int, error) {
	n, err := c.index.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory: count records: %w", err)
	}
	return n, nil
}

// Similarity converts a cosine distance into a similarity rounded to three
// decimals. Rounding absorbs float noise so that re-asking a stored question
// scores exactly 1.0.
func Similarity(distance float64) float64 {
	return math.Round((1-distance)*1000) / 1000
}

// CosineDistance returns 1 - cos(a, b). Vectors of different length or with
// zero norm are maximally distant (distance 1).
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
