// Package memory implements Elia's semantic memory cache: an append-only store
// of past question/answer pairs, retrievable by embedding similarity.
//
// The package is split in two layers:
//
//   - [Index] is the storage backend. It persists [Record] values with their
//     pre-computed embeddings and answers nearest-neighbour queries by cosine
//     distance. Backends live in sub-packages (postgres, sqlite, mock).
//   - [Cache] sits on top of an Index and an embeddings provider. It embeds
//     query text, converts distances into similarities, and creates new
//     records with fresh identifiers.
//
// Records are write-once. Deduplication is a policy of the caller, not of the
// store: [Cache.Insert] always appends.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
)

// ErrEmptyQuestion is returned by Cache.Insert when the question is blank.
var ErrEmptyQuestion = errors.New("memory: question must not be empty")

// Index is the storage backend behind a [Cache].
//
// Implementations must tolerate concurrent Add and Nearest calls: the turn
// pipeline searches from one goroutine while detached writes from earlier
// turns may still be in flight.
type Index interface {
	// Add appends rec. rec.ID is assigned by the caller and must be unique.
	Add(ctx context.Context, rec Record) error

	// Nearest returns up to k records ordered by ascending cosine distance to
	// embedding. An empty index yields an empty slice and no error.
	Nearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error)

	// All returns every stored record, oldest first. Embeddings may be omitted.
	All(ctx context.Context) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
