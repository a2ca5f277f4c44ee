package asr

import (
	"math"
	"strings"
	"time"

	"github.com/MrWong99/elia/pkg/types"
)

// Verbose is the "verbose_json" transcription payload shared by whisper.cpp's
// server, faster-whisper frontends and the OpenAI whisper-1 endpoint. Every
// probability field is optional because each server fills a different subset.
type Verbose struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`

	// whisper.cpp reports detected_language_probability, faster-whisper
	// based servers report language_probability.
	DetectedLanguageProbability *float64 `json:"detected_language_probability"`
	LanguageProbability         *float64 `json:"language_probability"`
}

// Segment is one decoded span of a verbose transcription.
type Segment struct {
	Text         string   `json:"text"`
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	AvgLogprob   *float64 `json:"avg_logprob"`
	NoSpeechProb *float64 `json:"no_speech_prob"`
	Words        []Word   `json:"words"`
}

// Word is a single word with its timing and decoder probability.
type Word struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

// Transcript converts v into a types.Transcript, computing the aggregated
// confidence. The text is the segment texts joined by single spaces, falling
// back to the top-level text when there are no segments.
func (v Verbose) Transcript() types.Transcript {
	text := strings.TrimSpace(v.Text)
	if len(v.Segments) > 0 {
		parts := make([]string, 0, len(v.Segments))
		for _, s := range v.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}

	var t types.Transcript
	if conf, ok := v.Confidence(); ok {
		t = types.KnownConfidence(text, conf)
	} else {
		t = types.UnknownConfidence(text)
	}
	t.Language = v.Language
	t.Duration = time.Duration(v.Duration * float64(time.Second))
	for _, s := range v.Segments {
		for _, w := range s.Words {
			d := types.WordDetail{
				Word:  strings.TrimSpace(w.Word),
				Start: time.Duration(w.Start * float64(time.Second)),
				End:   time.Duration(w.End * float64(time.Second)),
			}
			if w.Probability != nil {
				d.Probability = *w.Probability
			}
			t.Words = append(t.Words, d)
		}
	}
	return t
}

// Confidence aggregates the per-word and per-segment signals into a single
// score in [0, 1]. In order of preference it uses the mean word probability,
// the mean of sigmoid(avg_logprob) over segments, or 1 - mean(no_speech_prob).
// The result is blended 0.8/0.2 with the language probability when the server
// reports one. ok is false when none of the signals is present.
func (v Verbose) Confidence() (conf float64, ok bool) {
	var words, logprobs, noSpeech []float64
	for _, s := range v.Segments {
		for _, w := range s.Words {
			if w.Probability != nil {
				words = append(words, *w.Probability)
			}
		}
		if s.AvgLogprob != nil {
			logprobs = append(logprobs, sigmoid(*s.AvgLogprob))
		}
		if s.NoSpeechProb != nil {
			noSpeech = append(noSpeech, *s.NoSpeechProb)
		}
	}

	switch {
	case len(words) > 0:
		conf = mean(words)
	case len(logprobs) > 0:
		conf = mean(logprobs)
	case len(noSpeech) > 0:
		conf = math.Max(0, 1-mean(noSpeech))
	default:
		return 0, false
	}

	lp := v.LanguageProbability
	if lp == nil {
		lp = v.DetectedLanguageProbability
	}
	if lp != nil {
		conf = 0.8*conf + 0.2*(*lp)
	}
	return clamp01(conf), true
}

// LogprobConfidence turns token log-probabilities into a confidence score: the
// mean token probability. ok is false for an empty slice.
func LogprobConfidence(logprobs []float64) (conf float64, ok bool) {
	if len(logprobs) == 0 {
		return 0, false
	}
	probs := make([]float64, len(logprobs))
	for i, lp := range logprobs {
		probs[i] = math.Exp(lp)
	}
	return clamp01(mean(probs)), true
}

// sigmoid maps a logit into (0, 1); x is clamped to [-10, 10].
func sigmoid(x float64) float64 {
	x = math.Max(-10, math.Min(10, x))
	return 1 / (1 + math.Exp(-x))
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
