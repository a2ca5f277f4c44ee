package turn

import (
	"errors"
	"fmt"
)

// State is a step of the per-turn state machine.
//
//	Init → Gated → (Clarifying | Enriching) → Responding → Synthesizing → Done
//
// Errored is absorbing and reachable from every non-terminal state.
type State int

const (
	Init State = iota
	Gated
	Clarifying
	Enriching
	Responding
	Synthesizing
	Done
	Errored
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Gated:
		return "gated"
	case Clarifying:
		return "clarifying"
	case Enriching:
		return "enriching"
	case Responding:
		return "responding"
	case Synthesizing:
		return "synthesizing"
	case Done:
		return "done"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is the externally visible outcome of a turn.
type Status string

const (
	StatusOK      Status = "ok"
	StatusClarify Status = "clarify"
	StatusError   Status = "error"
)

// ErrUpstream matches every [*UpstreamError] via [errors.Is].
var ErrUpstream = errors.New("turn: upstream failure")

// UpstreamError reports that the language model or speech synthesis failed,
// so no usable answer could be produced.
type UpstreamError struct {
	// Stage is the failing collaborator: "llm" or "tts".
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("turn: %s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrUpstream].
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
