// Package asr defines the Provider interface for automatic speech recognition
// backends.
//
// Elia works on complete utterances: the student records a question, the
// client uploads it as a WAV file, and the provider returns a single
// transcript. Providers report a confidence estimate when their backend
// exposes enough signal to compute one; otherwise the transcript carries no
// confidence at all, which the confidence gate treats as "proceed".
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"errors"

	"github.com/MrWong99/elia/pkg/types"
)

// ErrNoAudio is returned by Transcribe when the audio payload is empty.
var ErrNoAudio = errors.New("asr: audio must not be empty")

// Provider is the abstraction over any ASR backend.
type Provider interface {
	// Transcribe converts a complete WAV file into text. The returned
	// transcript's HasConfidence is false when the backend gave no usable
	// confidence signal.
	Transcribe(ctx context.Context, wav []byte) (types.Transcript, error)
}
