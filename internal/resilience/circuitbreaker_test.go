package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock for breaker tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newBreaker returns a breaker on a fake clock that records its transitions.
func newBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock, *[]string) {
	clock := newFakeClock()
	var (
		mu  sync.Mutex
		log []string
	)
	cfg.Now = clock.Now
	cfg.OnStateChange = func(_ string, from, to State) {
		mu.Lock()
		log = append(log, fmt.Sprintf("%s->%s", from, to))
		mu.Unlock()
	}
	return NewCircuitBreaker(cfg), clock, &log
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.cfg.MaxFailures != DefaultMaxFailures || cb.cfg.ResetTimeout != DefaultResetTimeout || cb.cfg.HalfOpenMax != DefaultHalfOpenMax {
		t.Errorf("defaults not applied: %+v", cb.cfg)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	t.Parallel()
	cb, clock, log := newBreaker(CircuitBreakerConfig{Name: "llm/openai", MaxFailures: 3, ResetTimeout: time.Minute, HalfOpenMax: 2})

	// A success in between resets the failure run.
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatalf("state = %s after interrupted failure run, want closed", cb.State())
	}

	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s after %d failures, want open", cb.State(), 3)
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v, called = %v", err, called)
	}

	clock.Advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s after reset timeout, want half-open", cb.State())
	}

	// Two successful probes close it.
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s after one probe, want half-open", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %s after probes, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if !slices.Equal(*log, want) {
		t.Errorf("transitions = %v, want %v", *log, want)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	cb, clock, log := newBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})

	_ = cb.Execute(fail)
	clock.Advance(time.Minute)
	if err := cb.Execute(fail); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v, want the provider error", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s after failed probe, want open", cb.State())
	}

	// The cool-down restarts from the failed probe.
	clock.Advance(30 * time.Second)
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v before second cool-down ended, want ErrCircuitOpen", err)
	}

	want := []string{"closed->open", "open->half-open", "half-open->open"}
	if !slices.Equal(*log, want) {
		t.Errorf("transitions = %v, want %v", *log, want)
	}
}

func TestCircuitBreaker_ProbeBudget(t *testing.T) {
	t.Parallel()
	cb, clock, _ := newBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second concurrent probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Classifier(t *testing.T) {
	t.Parallel()
	errBadInput := errors.New("empty text")
	tests := []struct {
		name     string
		cfg      CircuitBreakerConfig
		err      error
		wantOpen bool
	}{
		{name: "cancellation ignored", err: context.Canceled},
		{name: "wrapped cancellation ignored", err: fmt.Errorf("tts: %w", context.Canceled)},
		{name: "deadline counted", err: context.DeadlineExceeded, wantOpen: true},
		{name: "plain error counted", err: errTest, wantOpen: true},
		{
			name: "custom classifier ignores caller errors",
			cfg:  CircuitBreakerConfig{IsFailure: func(err error) bool { return !errors.Is(err, errBadInput) }},
			err:  errBadInput,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := tc.cfg
			cfg.MaxFailures = 2
			cb, _, _ := newBreaker(cfg)
			for range 2 {
				if err := cb.Execute(func() error { return tc.err }); !errors.Is(err, tc.err) {
					t.Fatalf("Execute returned %v, want %v", err, tc.err)
				}
			}
			if got := cb.State() == StateOpen; got != tc.wantOpen {
				t.Errorf("open = %v, want %v", got, tc.wantOpen)
			}
		})
	}
}

func TestCircuitBreaker_IgnoredProbeErrorFreesSlot(t *testing.T) {
	t.Parallel()
	cb, clock, _ := newBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	_ = cb.Execute(func() error { return context.Canceled })
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("probe after cancelled probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _, log := newBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(fail)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %s after Reset, want closed", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
	cb.Reset()
	if want := []string{"closed->open", "open->closed"}; !slices.Equal(*log, want) {
		t.Errorf("transitions = %v, want %v", *log, want)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
