// Package mock provides an in-memory test double for [memory.Index].
//
// Unlike a pure stub, Index really stores records and answers Nearest with an
// exact cosine scan, so tests can exercise write-then-read behaviour of the
// turn pipeline. It also records every method call for assertion and exposes
// exported *Err fields to inject failures. All methods are safe for concurrent
// use via an internal [sync.Mutex].
//
// Typical usage:
//
//	idx := &mock.Index{}
//	cache := memory.NewCache(idx, embedder)
//
//	// run the system under test …
//
//	if got := idx.CallCount("Add"); got != 1 {
//	    t.Errorf("expected 1 Add call, got %d", got)
//	}
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/MrWong99/elia/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Index is a configurable in-memory [memory.Index].
type Index struct {
	mu sync.Mutex

	calls   []Call
	records []memory.Record

	// AddErr is returned by [Index.Add] when non-nil; the record is not stored.
	AddErr error

	// NearestErr is returned by [Index.Nearest] when non-nil.
	NearestErr error

	// AllErr is returned by [Index.All] and [Index.Count] when non-nil.
	AllErr error

	// NearestFunc, if set, replaces the cosine scan in [Index.Nearest].
	NearestFunc func(embedding []float32, k int) ([]memory.Neighbor, error)
}

// Seed stores recs directly without recording calls.
func (m *Index) Seed(recs ...memory.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recs...)
}

// Records returns a copy of everything stored so far.
func (m *Index) Records() []memory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Record, len(m.records))
	copy(out, m.records)
	return out
}

// Calls returns a copy of all recorded method invocations.
func (m *Index) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Index) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and stored records.
func (m *Index) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.records = nil
}

// Add implements [memory.Index].
func (m *Index) Add(_ context.Context, rec memory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Add", Args: []any{rec}})
	if m.AddErr != nil {
		return m.AddErr
	}
	m.records = append(m.records, rec)
	return nil
}

// Nearest implements [memory.Index].
func (m *Index) Nearest(_ context.Context, embedding []float32, k int) ([]memory.Neighbor, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Nearest", Args: []any{embedding, k}})
	fn, err := m.NearestFunc, m.NearestErr
	recs := make([]memory.Record, len(m.records))
	copy(recs, m.records)
	m.mu.Unlock()

	if fn != nil {
		return fn(embedding, k)
	}
	if err != nil {
		return nil, err
	}

	out := make([]memory.Neighbor, 0, len(recs))
	for _, r := range recs {
		out = append(out, memory.Neighbor{Record: r, Distance: memory.CosineDistance(embedding, r.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// All implements [memory.Index].
func (m *Index) All(_ context.Context) ([]memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "All"})
	if m.AllErr != nil {
		return nil, m.AllErr
	}
	out := make([]memory.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

// Count implements [memory.Index].
func (m *Index) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Count"})
	if m.AllErr != nil {
		return 0, m.AllErr
	}
	return len(m.records), nil
}

var _ memory.Index = (*Index)(nil)
