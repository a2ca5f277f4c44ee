// Package sqlite provides an embedded [memory.Index] backed by a pure-Go
// SQLite database (modernc.org/sqlite), for single-node deployments that do
// not run PostgreSQL.
//
// Embeddings are stored as little-endian float32 BLOBs. Nearest performs an
// exact cosine scan over all rows, which is adequate for the few thousand
// records a classroom deployment accumulates.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MrWong99/elia/pkg/memory"
)

var _ memory.Index = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS memory_records (
	id          TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	answer      TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	tags        TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_records_created ON memory_records(created_at);
`

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements memory.Index using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path. The special path
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create db dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open db: %w", err)
	}
	// Single connection: SQLite has one writer, and a ":memory:" database
	// exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is usable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Add implements [memory.Index].
func (s *Store) Add(ctx context.Context, rec memory.Record) error {
	var tags sql.NullString
	if rec.Tags != "" {
		tags = sql.NullString{String: rec.Tags, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_records (id, question, answer, embedding, tags, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Question, rec.Answer, encodeVector(rec.Embedding), tags,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: add: %w", err)
	}
	return nil
}

// Nearest implements [memory.Index] with an exact cosine scan.
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int) ([]memory.Neighbor, error) {
	if k <= 0 {
		return []memory.Neighbor{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, embedding, tags, created_at FROM memory_records`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: nearest: %w", err)
	}
	defer rows.Close()

	out := []memory.Neighbor{}
	for rows.Next() {
		rec, err := scanRecord(rows, true)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: nearest: %w", err)
		}
		out = append(out, memory.Neighbor{
			Record:   rec,
			Distance: memory.CosineDistance(embedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: nearest: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// All implements [memory.Index]. Embeddings are not loaded.
func (s *Store) All(ctx context.Context) ([]memory.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, NULL, tags, created_at FROM memory_records ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: all: %w", err)
	}
	defer rows.Close()

	out := []memory.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, false)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: all: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: all: %w", err)
	}
	return out, nil
}

// Count implements [memory.Index].
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memory_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite store: count: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows, withEmbedding bool) (memory.Record, error) {
	var (
		id, created string
		blob        []byte
		tags        sql.NullString
		rec         memory.Record
	)
	if err := rows.Scan(&id, &rec.Question, &rec.Answer, &blob, &tags, &created); err != nil {
		return memory.Record{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return memory.Record{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Tags = tags.String
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return memory.Record{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if withEmbedding {
		rec.Embedding = decodeVector(blob)
	}
	return rec, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
