// Package promptctx composes the system prompt sent to the language model for
// one turn.
//
// The prompt is built fresh for every turn from the persona prompt and the
// enrichment results. [Build] is pure: it performs no I/O, has no side
// effects, and is safe for concurrent use. Equal inputs always produce equal
// output.
package promptctx

import (
	"fmt"
	"strings"

	"github.com/MrWong99/elia/pkg/memory"
	"github.com/MrWong99/elia/pkg/types"
)

// TurnContext holds everything the system prompt of one turn is built from.
type TurnContext struct {
	// BasePrompt is the persona and instruction prompt. Always rendered first.
	BasePrompt string

	// SentimentLabel is the detected emotional state. Omitted when empty.
	SentimentLabel string

	// Matches are the memory matches accepted into context, in the order the
	// enrichment step returned them.
	Matches []memory.Match

	// ContinuityNote closes the prompt. Omitted when empty.
	ContinuityNote string
}

// New returns the TurnContext for the given enrichment results, closed by
// [ContinuityNote].
func New(basePrompt string, sentiment types.Sentiment, matches []memory.Match) TurnContext {
	return TurnContext{
		BasePrompt:     basePrompt,
		SentimentLabel: sentiment.Label,
		Matches:        matches,
		ContinuityNote: ContinuityNote,
	}
}

// String renders the context as a system prompt. Sections are joined with a
// single newline in fixed order: base prompt, sentiment sentence, one line per
// memory match, continuity note.
func (c TurnContext) String() string {
	lines := make([]string, 0, len(c.Matches)+3)
	lines = append(lines, c.BasePrompt)

	if c.SentimentLabel != "" {
		lines = append(lines, fmt.Sprintf("Stato emotivo rilevato dello studente: %s.", c.SentimentLabel))
	}
	for _, m := range c.Matches {
		lines = append(lines, MatchLine(m))
	}
	if c.ContinuityNote != "" {
		lines = append(lines, c.ContinuityNote)
	}
	return strings.Join(lines, "\n")
}

// Build returns the system prompt for a turn. It is shorthand for
// New(basePrompt, sentiment, matches).String().
func Build(basePrompt string, sentiment types.Sentiment, matches []memory.Match) string {
	return New(basePrompt, sentiment, matches).String()
}

// MatchLine renders one remembered exchange.
func MatchLine(m memory.Match) string {
	return fmt.Sprintf("Domanda passata: %s | Risposta: %s", m.Question, m.Answer)
}
