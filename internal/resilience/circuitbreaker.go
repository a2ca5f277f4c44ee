// Package resilience keeps a turn answerable when a collaborator misbehaves.
//
// Every configured provider is guarded by a [CircuitBreaker]: after a run of
// failures the breaker opens and calls are refused immediately instead of
// waiting out another timeout, and after a cool-down a few probe calls decide
// whether the provider is healthy again. A [FallbackGroup] chains a primary
// with its configured fallbacks, each behind its own breaker, and the typed
// wrappers (LLM, ASR, TTS, sentiment) present the chain as a single provider.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open or its probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call and counts consecutive failures.
	StateClosed State = iota

	// StateOpen refuses every call until the reset timeout has elapsed.
	StateOpen

	// StateHalfOpen admits up to HalfOpenMax probe calls. All of them must
	// succeed to close the breaker; any failure opens it again.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks.
	Name string

	// MaxFailures consecutive failures open a closed breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker refuses calls.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int

	// IsFailure decides which errors count against the provider. Others are
	// returned unchanged and leave the breaker untouched. Default:
	// [CountsAsFailure].
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// Now replaces the clock. Nil uses [time.Now].
	Now func() time.Time
}

// CountsAsFailure is the default classifier. A caller cancelling its own
// request says nothing about the provider, so [context.Canceled] is ignored;
// deadlines still count.
func CountsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// transition is a state change waiting to be reported.
type transition struct{ from, to State }

// CircuitBreaker is a three-state breaker guarding one provider.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int       // consecutive failures while closed
	openedAt  time.Time // when the breaker last opened
	probes    int       // probes admitted in the current half-open window
	successes int       // probes that succeeded in that window
}

// NewCircuitBreaker returns a closed breaker. Zero fields of cfg take the
// package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = CountsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker refuses it with [ErrCircuitOpen], and
// returns fn's error unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	var changes []transition
	defer func() { cb.report(changes) }()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		changes = append(changes, cb.moveTo(StateHalfOpen))
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle books the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	var changes []transition
	defer func() { cb.report(changes) }()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		if !probe {
			cb.failures = 0
			return
		}
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.cfg.HalfOpenMax {
			changes = append(changes, cb.moveTo(StateClosed))
		}

	case !cb.cfg.IsFailure(err):
		if probe && cb.state == StateHalfOpen {
			cb.probes--
		}

	case probe:
		if cb.state == StateHalfOpen {
			changes = append(changes, cb.moveTo(StateOpen))
		}

	default:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			changes = append(changes, cb.moveTo(StateOpen))
		}
	}
}

// moveTo switches state and resets the per-state counters. Caller holds mu.
func (cb *CircuitBreaker) moveTo(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	cb.probes, cb.successes = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Now()
	case StateClosed:
		cb.failures = 0
	}
	return t
}

// report logs transitions and fires the callback. Caller must not hold mu.
func (cb *CircuitBreaker) report(changes []transition) {
	for _, t := range changes {
		level := slog.LevelInfo
		if t.to == StateOpen {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "circuit breaker state changed",
			"name", cb.cfg.Name, "from", t.from, "to", t.to)
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the switch itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	var changes []transition
	cb.mu.Lock()
	if cb.state != StateClosed {
		changes = append(changes, cb.moveTo(StateClosed))
	}
	cb.failures = 0
	cb.mu.Unlock()
	cb.report(changes)
}
