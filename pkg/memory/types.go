package memory

import (
	"time"

	"github.com/google/uuid"
)

// Record is one remembered exchange. It is created by a cache write and never
// mutated afterwards.
type Record struct {
	// ID uniquely identifies the record.
	ID uuid.UUID

	// Question is the student's transcribed question; its embedding is what
	// similarity is measured against.
	Question string

	// Answer is the final, normalised answer Elia gave.
	Answer string

	// Embedding is the vector representation of Question.
	Embedding []float32

	// Tags is optional free text attached at write time. The turn pipeline
	// stores the detected sentiment label here. Empty means absent.
	Tags string

	// CreatedAt is when the record was written.
	CreatedAt time.Time
}

// Neighbor pairs a record with its cosine distance from a query embedding.
// Lower Distance means more similar.
type Neighbor struct {
	Record   Record
	Distance float64
}

// Match is a search hit as seen by the turn pipeline. Only the fields that
// feed the prompt are kept.
type Match struct {
	Question string

	Answer string

	// Similarity is 1 - cosine distance, rounded to three decimals, so it lies
	// in [-1, 1]. An exact repeat of a stored question scores 1.0.
	Similarity float64
}
