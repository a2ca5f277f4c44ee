package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/elia/internal/observe"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] produced a
// result. The members' own errors are joined behind it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig tunes a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for every member's breaker. Its Name is
	// replaced with "kind/member".
	CircuitBreaker CircuitBreakerConfig

	// Kind labels the collaborator in logs and metrics ("llm", "tts", "asr",
	// "sentiment").
	Kind string

	// Metrics, if set, receives one provider request sample per attempt.
	Metrics *observe.Metrics
}

type member[T any] struct {
	name     string
	provider T
	cb       *CircuitBreaker
}

// FallbackGroup is an ordered chain of interchangeable providers, each behind
// its own [CircuitBreaker]. [Run] walks the chain until a member succeeds.
//
// Members must all be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends p to the end of the chain.
func (g *FallbackGroup[T]) AddFallback(name string, p T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	if g.cfg.Kind != "" {
		bc.Name = g.cfg.Kind + "/" + name
	}
	g.members = append(g.members, member[T]{name: name, provider: p, cb: NewCircuitBreaker(bc)})
}

// Names returns the member names in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	out := make([]string, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.name)
	}
	return out
}

// Run calls fn with each member of g in turn and returns the first success.
// Members whose breaker is open are skipped. Once ctx is done the chain stops
// and the member's error is returned as is, since a later member would fail
// the same way.
func Run[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.members {
		m := &g.members[i]
		var out R
		err := m.cb.Execute(func() (err error) {
			out, err = fn(ctx, m.provider)
			return err
		})
		g.observe(ctx, m.name, err)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			observe.Logger(ctx).Debug("provider skipped, circuit open", "kind", g.cfg.Kind, "provider", m.name)
			continue
		}
		observe.Logger(ctx).Warn("provider failed", "kind", g.cfg.Kind, "provider", m.name,
			"remaining", len(g.members)-i-1, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func (g *FallbackGroup[T]) observe(ctx context.Context, name string, err error) {
	m := g.cfg.Metrics
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, name, g.cfg.Kind, "ok")
	case errors.Is(err, ErrCircuitOpen):
		m.RecordProviderRequest(ctx, name, g.cfg.Kind, "circuit_open")
	default:
		m.RecordProviderRequest(ctx, name, g.cfg.Kind, "error")
		m.RecordProviderError(ctx, name, g.cfg.Kind)
	}
}

// ignoring returns a failure classifier that also excludes the given caller
// errors, which say nothing about the provider's health.
func ignoring(callerErrs ...error) func(error) bool {
	return func(err error) bool {
		if !CountsAsFailure(err) {
			return false
		}
		for _, e := range callerErrs {
			if errors.Is(err, e) {
				return false
			}
		}
		return true
	}
}

// defaults fills the kind and, unless set, a classifier ignoring callerErrs.
func (cfg FallbackConfig) defaults(kind string, callerErrs ...error) FallbackConfig {
	if cfg.Kind == "" {
		cfg.Kind = kind
	}
	if cfg.CircuitBreaker.IsFailure == nil && len(callerErrs) > 0 {
		cfg.CircuitBreaker.IsFailure = ignoring(callerErrs...)
	}
	return cfg
}
