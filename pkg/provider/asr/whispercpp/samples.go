// Package whispercpp provides an in-process ASR provider backed by the
// whisper.cpp CGO bindings. The model is loaded once and every Transcribe
// call decodes on its own whisper context, so no HTTP server is needed.
//
// The provider itself is only compiled with the "whispercpp" build tag, since
// linking requires libwhisper.a and whisper.h (set LIBRARY_PATH and
// C_INCLUDE_PATH):
//
//	go build -tags whispercpp ./cmd/elia
package whispercpp

import (
	"encoding/binary"
	"strings"

	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/types"
)

// SampleRate is the only rate whisper.cpp accepts.
const SampleRate = 16000

// pcmToFloat32 converts mono 16-bit little-endian PCM to float32 samples in
// [-1, 1]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// token is the subset of a decoded whisper token used for confidence.
type token struct {
	text string
	p    float32
}

// segment is one decoded span with its tokens.
type segment struct {
	text   string
	tokens []token
}

// special reports whether a token is a control token such as [_BEG_] or
// <|endoftext|>, which carry no speech.
func special(text string) bool {
	return strings.HasPrefix(text, "[_") || strings.HasPrefix(text, "<|")
}

// buildTranscript joins the segment texts and turns the mean probability of
// the speech tokens into the transcript confidence. Without any speech token
// the confidence is unknown.
func buildTranscript(segments []segment, language string) types.Transcript {
	var (
		parts []string
		probs []float64
	)
	for _, s := range segments {
		if t := strings.TrimSpace(s.text); t != "" {
			parts = append(parts, t)
		}
		for _, tok := range s.tokens {
			if special(tok.text) {
				continue
			}
			probs = append(probs, float64(tok.p))
		}
	}

	text := strings.Join(parts, " ")
	var t types.Transcript
	if len(probs) > 0 {
		v := asr.Verbose{Segments: []asr.Segment{{Words: make([]asr.Word, len(probs))}}}
		for i := range probs {
			v.Segments[0].Words[i].Probability = &probs[i]
		}
		conf, _ := v.Confidence()
		t = types.KnownConfidence(text, conf)
	} else {
		t = types.UnknownConfidence(text)
	}
	t.Language = language
	return t
}
