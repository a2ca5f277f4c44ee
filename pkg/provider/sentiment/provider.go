// Package sentiment defines the Provider interface for emotional-tone
// classifiers.
//
// The turn pipeline classifies every gated transcript and, when the
// classifier succeeds, tells the language model how the student seems to be
// feeling. The winning label is also stored as the tag of the memory record
// written for the turn, which is what the emotional report later aggregates.
//
// Implementations must be safe for concurrent use.
package sentiment

import (
	"context"

	"github.com/MrWong99/elia/pkg/types"
)

// Labels are the three classes produced by the default Italian classifier
// (neuraly/bert-base-italian-cased-sentiment).
var Labels = []string{"positive", "neutral", "negative"}

// Provider is the abstraction over any sentiment classifier.
type Provider interface {
	// Classify returns the label distribution for text, with Label set to the
	// highest-scoring class. Blank text yields the zero Sentiment and no
	// error, without contacting the backend.
	Classify(ctx context.Context, text string) (types.Sentiment, error)
}
