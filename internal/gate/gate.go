// Package gate decides whether a transcript is trustworthy enough to answer.
//
// A turn whose transcript falls under the confidence threshold is answered
// with a request to repeat the question instead of a real answer. A missing
// confidence never triggers a clarification: only a reported low score does.
package gate

import (
	"fmt"

	"github.com/MrWong99/elia/pkg/types"
)

// Decision is the outcome of the gate.
type Decision int

const (
	// Proceed means the transcript is answered normally.
	Proceed Decision = iota

	// Clarify means the student is asked to repeat.
	Clarify
)

// String implements [fmt.Stringer].
func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Clarify:
		return "clarify"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Decide returns Clarify iff t carries a confidence and that confidence is
// strictly below threshold.
func Decide(t types.Transcript, threshold float64) Decision {
	if t.HasConfidence && t.Confidence < threshold {
		return Clarify
	}
	return Proceed
}

// Gate is the configurable form of [Decide].
//
// MinWords adds a word-count check on top of the confidence check: when
// positive, transcripts with fewer words are clarified too. The zero value
// disables it.
type Gate struct {
	Threshold float64
	MinWords  int
}

// Decide applies the confidence check and, when enabled, the word-count check.
func (g Gate) Decide(t types.Transcript) Decision {
	if Decide(t, g.Threshold) == Clarify {
		return Clarify
	}
	if g.MinWords > 0 && t.WordCount() < g.MinWords {
		return Clarify
	}
	return Proceed
}
