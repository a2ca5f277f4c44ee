// Package workpool provides the bounded worker pool shared by every turn.
//
// At most Size tasks run at once, across all concurrent turns. Two kinds of
// task exist:
//
//   - Awaited tasks, started with [Submit], return a [Future] that the caller
//     joins with [Future.Wait]. Enrichment subtasks and speech synthesis are
//     awaited.
//   - Detached tasks, started with [Pool.Detach], run on a fresh context with
//     their own timeout and outlive the request that created them. Cache
//     writes are detached. [Pool.Drain] waits for them during shutdown.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the pool size used when a non-positive size is requested.
const DefaultSize = 4

// ErrDraining is reported for detached tasks submitted after Drain started.
var ErrDraining = errors.New("workpool: pool is draining")

// Pool is a fixed-size bounded worker pool. It is safe for concurrent use.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	// mu orders wg.Add in Detach against the draining flip in Drain.
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup

	inflight atomic.Int64
	onDone   func(name string, elapsed time.Duration, err error)
}

// Option configures a Pool.
type Option func(*Pool)

// WithDetachedHook registers fn to be called after every detached task
// finishes, with the task's error (nil on success). Used for metrics.
func WithDetachedHook(fn func(name string, elapsed time.Duration, err error)) Option {
	return func(p *Pool) {
		p.onDone = fn
	}
}

// New creates a Pool running at most size tasks concurrently.
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Size returns the maximum number of concurrently running tasks.
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of detached tasks not yet finished.
func (p *Pool) InFlight() int { return int(p.inflight.Load()) }

// Future is the pending result of an awaited task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the task finishes or ctx is done, whichever comes first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Submit runs fn on p and returns its Future. fn receives ctx; it waits for a
// free slot first, and if ctx ends before one frees up the Future resolves to
// ctx.Err() without running fn. A panic in fn resolves the Future to an error.
func Submit[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("workpool: acquire slot: %w", err)
			return
		}
		defer p.sem.Release(1)
		f.val, f.err = run(ctx, fn)
	}()
	return f
}

// Detach runs fn in the background on a fresh context bounded by timeout. The
// caller does not wait for it: failures are logged, never returned. name
// identifies the task in logs.
func (p *Pool) Detach(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		p.finish(name, 0, ErrDraining)
		return
	}
	p.wg.Add(1)
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.inflight.Add(-1)

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.finish(name, time.Since(start), fmt.Errorf("workpool: acquire slot: %w", err))
			return
		}
		defer p.sem.Release(1)

		_, err := run(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		p.finish(name, time.Since(start), err)
	}()
}

// Drain stops accepting detached tasks and waits for the running ones to
// finish or for ctx to end.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workpool: drain: %d task(s) still running: %w", p.InFlight(), ctx.Err())
	}
}

func (p *Pool) finish(name string, elapsed time.Duration, err error) {
	if err != nil {
		slog.Warn("workpool: detached task failed", "task", name, "elapsed", elapsed, "err", err)
	} else {
		slog.Debug("workpool: detached task finished", "task", name, "elapsed", elapsed)
	}
	if p.onDone != nil {
		p.onDone(name, elapsed, err)
	}
}

// run calls fn, converting a panic into an error.
func run[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workpool: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
