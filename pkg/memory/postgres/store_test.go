package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrWong99/elia/pkg/memory"
	"github.com/MrWong99/elia/pkg/memory/postgres"
)

const testEmbeddingDim = 4

// containerDSN is set by TestMain when a throwaway pgvector container was
// started.
var containerDSN string

// TestMain starts a pgvector container when ELIA_TEST_DOCKER=1 and no DSN is
// provided explicitly.
func TestMain(m *testing.M) {
	if os.Getenv("ELIA_TEST_POSTGRES_DSN") != "" || os.Getenv("ELIA_TEST_DOCKER") != "1" {
		os.Exit(m.Run())
	}

	// Ryuk can fail in rootless or CI docker setups.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "elia",
				"POSTGRES_PASSWORD": "elia",
				"POSTGRES_DB":       "elia",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start pgvector container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("container port: %v", err)
	}
	containerDSN = fmt.Sprintf("postgres://elia:elia@%s:%s/elia?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = c.Terminate(ctx)
	os.Exit(code)
}

// testDSN returns the test database DSN, or skips the test when neither
// ELIA_TEST_POSTGRES_DSN nor ELIA_TEST_DOCKER=1 is set.
func testDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("ELIA_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	if containerDSN != "" {
		return containerDSN
	}
	t.Skip("ELIA_TEST_POSTGRES_DSN not set and ELIA_TEST_DOCKER!=1, skipping PostgreSQL integration tests")
	return ""
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS memory_records CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	cleanPool.Close()

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func record(q, a, tags string, emb ...float32) memory.Record {
	return memory.Record{
		ID:        uuid.New(),
		Question:  q,
		Answer:    a,
		Embedding: emb,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
}

func TestStore_AddAndNearest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []memory.Record{
		record("Cos'è la fotosintesi?", "Un processo delle piante.", "neutral", 1, 0, 0, 0),
		record("Chi era Garibaldi?", "Un generale.", "", 0, 1, 0, 0),
		record("Quanto fa 7x8?", "56.", "negative", 0, 0, 1, 0),
	}
	for _, r := range recs {
		if err := store.Add(ctx, r); err != nil {
			t.Fatalf("Add %q: %v", r.Question, err)
		}
	}

	got, err := store.Nearest(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Nearest k=2: want 2 results, got %d", len(got))
	}
	if got[0].Record.ID != recs[0].ID {
		t.Errorf("closest record: want %s, got %s (distance %.4f)", recs[0].ID, got[0].Record.ID, got[0].Distance)
	}
	if got[0].Distance > 1e-6 {
		t.Errorf("self distance = %v, want ≈0", got[0].Distance)
	}
	if got[0].Record.Tags != "neutral" {
		t.Errorf("tags = %q, want neutral", got[0].Record.Tags)
	}
	if got[1].Distance < got[0].Distance {
		t.Error("results not ordered by ascending distance")
	}
}

func TestStore_EmptyIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.Nearest(ctx, []float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Nearest on empty index = %#v, want empty slice", got)
	}
	n, err := store.Count(ctx)
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v; want 0, nil", n, err)
	}
}

func TestStore_AllAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := record("prima", "a", "positive", 1, 1, 0, 0)
	first.CreatedAt = time.Now().Add(-time.Hour).UTC()
	second := record("seconda", "b", "", 0, 1, 1, 0)
	for _, r := range []memory.Record{second, first} {
		if err := store.Add(ctx, r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].Question != "prima" || all[1].Question != "seconda" {
		t.Errorf("All = %+v, want oldest first", all)
	}
	if all[0].Tags != "positive" || all[1].Tags != "" {
		t.Errorf("tags round trip failed: %+v", all)
	}

	n, err := store.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("Count = %d, %v; want 2, nil", n, err)
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	if err := store.Add(context.Background(), record("q", "a", "", 1, 0)); err == nil {
		t.Fatal("expected error for wrong embedding dimension")
	}
}

func TestStore_ConcurrentAdds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Add(ctx, record(fmt.Sprintf("q%d", i), "a", "", 1, float32(i), 0, 0)); err != nil {
				t.Errorf("Add: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count, err := store.Count(ctx)
	if err != nil || count != n {
		t.Errorf("Count = %d, %v; want %d", count, err, n)
	}
}

func TestStore_WithCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emb := staticEmbedder{
		"Cos'è un vulcano?":     {1, 0.1, 0, 0},
		"Che cos'è un vulcano?": {1, 0.12, 0, 0},
	}
	cache := memory.NewCache(store, emb)
	if _, err := cache.Insert(ctx, "Cos'è un vulcano?", "Una montagna che erutta.", "neutral"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	matches := cache.Search(ctx, "Che cos'è un vulcano?", 1)
	if len(matches) != 1 || matches[0].Similarity < 0.99 {
		t.Errorf("matches = %+v, want one near-identical match", matches)
	}
}

// staticEmbedder is a tiny embeddings.Provider keyed by exact text.
type staticEmbedder map[string][]float32

func (s staticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (s staticEmbedder) Dimensions() int { return testEmbeddingDim }
func (s staticEmbedder) ModelID() string { return "static" }
