// Package postgres provides a PostgreSQL-backed [memory.Index] using the
// pgvector extension for cosine nearest-neighbour search.
//
// Records live in a single append-only table with an HNSW index over the
// question embedding. The pgvector extension must be available in the target
// database; [Migrate] installs it automatically via CREATE EXTENSION IF NOT
// EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1024)
//	if err != nil { … }
//	defer store.Close()
//
//	cache := memory.NewCache(store, embedder)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlRecords returns the DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlRecords(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_records (
    id          UUID         PRIMARY KEY,
    question    TEXT         NOT NULL,
    answer      TEXT         NOT NULL,
    embedding   vector(%d)   NOT NULL,
    tags        TEXT,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memory_records_created_at
    ON memory_records (created_at);

CREATE INDEX IF NOT EXISTS idx_memory_records_embedding
    ON memory_records USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for your
// deployment (e.g., 1024 for bge-m3, 1536 for OpenAI text-embedding-3-small).
// Changing this value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	if _, err := pool.Exec(ctx, ddlRecords(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
