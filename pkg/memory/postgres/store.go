package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/elia/pkg/memory"
)

var _ memory.Index = (*Store)(nil)

// Store is the PostgreSQL-backed memory index. It holds a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewStore opens a pool on dsn and migrates the schema for vectors of
// embeddingDimensions, the width of the configured embedding model.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// vector columns scan into pgvector.Vector.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool, dimensions: embeddingDimensions}, nil
}

// Close closes the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Add implements [memory.Index].
func (s *Store) Add(ctx context.Context, rec memory.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return fmt.Errorf("postgres store: add: embedding has %d dimensions, index expects %d", len(rec.Embedding), s.dimensions)
	}

	const q = `
		INSERT INTO memory_records (id, question, answer, embedding, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var tags *string
	if rec.Tags != "" {
		tags = &rec.Tags
	}
	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.Question,
		rec.Answer,
		pgvector.NewVector(rec.Embedding),
		tags,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: add: %w", err)
	}
	return nil
}

// Nearest implements [memory.Index]. Results are ordered by ascending cosine
// distance (most similar first).
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int) ([]memory.Neighbor, error) {
	if k <= 0 {
		return []memory.Neighbor{}, nil
	}

	const q = `
		SELECT id, question, answer, tags, created_at,
		       embedding <=> $1 AS distance
		FROM   memory_records
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("postgres store: nearest: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Neighbor, error) {
		var (
			n    memory.Neighbor
			tags *string
		)
		if err := row.Scan(
			&n.Record.ID,
			&n.Record.Question,
			&n.Record.Answer,
			&tags,
			&n.Record.CreatedAt,
			&n.Distance,
		); err != nil {
			return memory.Neighbor{}, err
		}
		if tags != nil {
			n.Record.Tags = *tags
		}
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.Neighbor{}
	}
	return results, nil
}

// All implements [memory.Index]. Embeddings are not loaded.
func (s *Store) All(ctx context.Context) ([]memory.Record, error) {
	const q = `
		SELECT id, question, answer, tags, created_at
		FROM   memory_records
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: all: %w", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Record, error) {
		var (
			r    memory.Record
			tags *string
		)
		if err := row.Scan(&r.ID, &r.Question, &r.Answer, &tags, &r.CreatedAt); err != nil {
			return memory.Record{}, err
		}
		if tags != nil {
			r.Tags = *tags
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	return recs, nil
}

// Count implements [memory.Index].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM memory_records`).Scan(&n)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres store: count: %w", err)
	}
	return n, nil
}
