// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Coqui server
// or the OpenAI speech API) and turns the assistant's final answer into a
// complete WAV file that the HTTP surface returns base64-encoded.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by Synthesize when there is nothing to speak.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Audio is a synthesised utterance.
type Audio struct {
	// WAV is a complete RIFF/WAVE file.
	WAV []byte

	// SampleRate is the sample rate of WAV in Hz.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the provider's configured voice and returns
	// the full audio once synthesis has completed. Empty text yields
	// ErrEmptyText without contacting the backend.
	Synthesize(ctx context.Context, text string) (Audio, error)
}
