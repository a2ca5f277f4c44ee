package memory_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/elia/pkg/memory"
	"github.com/MrWong99/elia/pkg/memory/mock"
	embmock "github.com/MrWong99/elia/pkg/provider/embeddings/mock"
)

func newCache(vectors map[string][]float32) (*memory.Cache, *mock.Index, *embmock.Provider) {
	idx := &mock.Index{}
	emb := &embmock.Provider{Vectors: vectors, DimensionsValue: 3}
	return memory.NewCache(idx, emb), idx, emb
}

func TestCache_InsertThenSearch(t *testing.T) {
	t.Parallel()

	cache, idx, _ := newCache(map[string][]float32{
		"Cos'è la fotosintesi?":              {1, 0, 0},
		"Che cos'è la fotosintesi?":          {0.95, 0.3122, 0},
		"Chi ha scritto la Divina Commedia?": {0, 0, 1},
	})
	ctx := context.Background()

	id, err := cache.Insert(ctx, "Cos'è la fotosintesi?", "È il processo...", "neutral")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("Insert returned nil UUID")
	}
	if _, err := cache.Insert(ctx, "Chi ha scritto la Divina Commedia?", "Dante.", ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	matches := cache.Search(ctx, "Che cos'è la fotosintesi?", 2)
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].Question != "Cos'è la fotosintesi?" {
		t.Errorf("best match = %q", matches[0].Question)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Errorf("matches not ordered: %+v", matches)
	}
	if math.Abs(matches[0].Similarity-0.95) > 0.001 {
		t.Errorf("similarity = %v, want ≈0.95", matches[0].Similarity)
	}

	recs := idx.Records()
	if len(recs) != 2 || recs[0].ID != id || recs[0].Tags != "neutral" {
		t.Errorf("unexpected stored records %+v", recs)
	}
}

func TestCache_ExactRepeatScoresOne(t *testing.T) {
	t.Parallel()

	// A vector whose self-distance is not exactly zero in float arithmetic.
	v := []float32{0.1, 0.7, 0.3}
	cache, _, _ := newCache(map[string][]float32{"q": v})
	ctx := context.Background()

	if _, err := cache.Insert(ctx, "q", "a", ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	matches := cache.Search(ctx, "q", 1)
	if len(matches) != 1 || matches[0].Similarity != 1.0 {
		t.Fatalf("matches = %+v, want one match with similarity 1.0", matches)
	}
}

func TestCache_InsertNeverDedups(t *testing.T) {
	t.Parallel()

	cache, idx, _ := newCache(map[string][]float32{"q": {1, 0, 0}})
	ctx := context.Background()
	a, _ := cache.Insert(ctx, "q", "a", "")
	b, _ := cache.Insert(ctx, "q", "a", "")
	if a == b {
		t.Error("expected distinct IDs for repeated inserts")
	}
	if n := len(idx.Records()); n != 2 {
		t.Errorf("stored %d records, want 2", n)
	}
}

func TestCache_SearchEmptyIndex(t *testing.T) {
	t.Parallel()

	cache, _, _ := newCache(map[string][]float32{"q": {1, 0, 0}})
	matches := cache.Search(context.Background(), "q", 1)
	if matches == nil || len(matches) != 0 {
		t.Fatalf("matches = %#v, want empty non-nil slice", matches)
	}
}

func TestCache_SearchFailuresYieldEmpty(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	t.Run("embedding error", func(t *testing.T) {
		t.Parallel()
		cache, idx, emb := newCache(nil)
		emb.EmbedErr = boom
		idx.Seed(memory.Record{ID: uuid.New(), Question: "x", Embedding: []float32{1, 0, 0}})
		if got := cache.Search(context.Background(), "x", 1); len(got) != 0 {
			t.Errorf("got %+v, want empty", got)
		}
		if _, err := cache.Lookup(context.Background(), "x", 1); !errors.Is(err, boom) {
			t.Errorf("Lookup err = %v, want boom", err)
		}
	})

	t.Run("backend error", func(t *testing.T) {
		t.Parallel()
		cache, idx, emb := newCache(nil)
		emb.EmbedResult = []float32{1, 0, 0}
		idx.NearestErr = boom
		if got := cache.Search(context.Background(), "x", 1); len(got) != 0 {
			t.Errorf("got %+v, want empty", got)
		}
	})
}

func TestCache_SearchTopK(t *testing.T) {
	t.Parallel()

	cache, idx, emb := newCache(nil)
	emb.EmbedResult = []float32{1, 0, 0}
	for i := 0; i < 5; i++ {
		idx.Seed(memory.Record{ID: uuid.New(), Question: "q", Embedding: []float32{1, float32(i), 0}})
	}
	if got := cache.Search(context.Background(), "q", 3); len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
	if got := cache.Search(context.Background(), "q", 0); len(got) != 0 {
		t.Errorf("topK=0 returned %d matches", len(got))
	}
}

func TestCache_InsertErrors(t *testing.T) {
	t.Parallel()

	cache, idx, emb := newCache(nil)
	emb.EmbedResult = []float32{1, 0, 0}

	if _, err := cache.Insert(context.Background(), "  ", "a", ""); !errors.Is(err, memory.ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}

	idx.AddErr = errors.New("disk full")
	if _, err := cache.Insert(context.Background(), "q", "a", ""); err == nil {
		t.Error("expected error when backend rejects the record")
	}
}

func TestCache_ConcurrentInserts(t *testing.T) {
	t.Parallel()

	cache, idx, emb := newCache(nil)
	emb.EmbedResult = []float32{0, 1, 0}

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Insert(context.Background(), "q", "a", ""); err != nil {
				t.Errorf("Insert: %v", err)
			}
			_ = cache.Search(context.Background(), "q", 1)
		}()
	}
	wg.Wait()

	if got := len(idx.Records()); got != n {
		t.Errorf("stored %d records, want %d", got, n)
	}
}

func TestCache_WithClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	idx := &mock.Index{}
	cache := memory.NewCache(idx, &embmock.Provider{EmbedResult: []float32{1}}, memory.WithClock(func() time.Time { return fixed }))
	if _, err := cache.Insert(context.Background(), "q", "a", ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := idx.Records()[0].CreatedAt; !got.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", got, fixed)
	}
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"length mismatch", []float32{1}, []float32{1, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := memory.CosineDistance(tc.a, tc.b); math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("CosineDistance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	if got := memory.Similarity(1e-7); got != 1.0 {
		t.Errorf("Similarity(1e-7) = %v, want 1.0", got)
	}
	if got := memory.Similarity(0.08); got != 0.92 {
		t.Errorf("Similarity(0.08) = %v, want 0.92", got)
	}
}
