// Package types defines the shared types used across all Elia packages.
//
// These types form the lingua franca between providers, the turn pipeline, the
// memory cache, and the HTTP surface. They are intentionally minimal: each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import (
	"strings"
	"time"
)

// Transcript represents a speech-to-text result from an ASR provider.
//
// A confidence that was never reported is not the same as a low confidence:
// HasConfidence distinguishes the two. Downstream gating only ever compares
// Confidence when HasConfidence is true.
type Transcript struct {
	// Text is the transcribed speech content. May be empty when the speech was
	// unintelligible or the ASR call failed.
	Text string

	// Confidence is the overall confidence score in [0.0, 1.0]. Only meaningful
	// when HasConfidence is true.
	Confidence float64

	// HasConfidence reports whether the provider produced a confidence score.
	HasConfidence bool

	// Language is the detected language code (e.g., "it"). Empty if unknown.
	Language string

	// Words contains per-word detail when available. May be nil for providers
	// that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KnownConfidence returns a Transcript carrying text and a reported confidence.
func KnownConfidence(text string, confidence float64) Transcript {
	return Transcript{Text: text, Confidence: confidence, HasConfidence: true}
}

// UnknownConfidence returns a Transcript carrying text without a confidence.
func UnknownConfidence(text string) Transcript {
	return Transcript{Text: text}
}

// WordCount returns the number of whitespace-separated words in Text.
func (t Transcript) WordCount() int {
	return len(strings.Fields(t.Text))
}

// WordDetail holds per-word metadata from ASR providers that support it.
type WordDetail struct {
	Word        string
	Start       time.Duration
	End         time.Duration
	Probability float64
}

// Sentiment is the result of classifying the emotional tone of a transcript.
//
// An empty Label means "unknown": the classifier failed, timed out, or was
// given empty text. Consumers must treat the empty label as absent.
type Sentiment struct {
	// Label is the winning sentiment label (e.g., "positive", "negative",
	// "neutral"). Empty when unknown.
	Label string

	// Scores holds the per-label scores as returned by the classifier, in the
	// order the classifier reported them. Nil when unavailable.
	Scores []LabelScore
}

// Known reports whether the sentiment carries a label.
func (s Sentiment) Known() bool {
	return s.Label != ""
}

// LabelScore is a single (label, score) pair from a classifier.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// TopLabel returns the label with the highest score, or "" for an empty slice.
// Ties keep the first label in slice order.
func TopLabel(scores []LabelScore) string {
	best := -1
	for i, s := range scores {
		if best < 0 || s.Score > scores[best].Score {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return scores[best].Label
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}
