package types_test

import (
	"testing"

	"github.com/MrWong99/elia/pkg/types"
)

func TestTopLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scores []types.LabelScore
		want   string
	}{
		{name: "empty", scores: nil, want: ""},
		{name: "single", scores: []types.LabelScore{{Label: "neutral", Score: 0.2}}, want: "neutral"},
		{
			name: "highest wins",
			scores: []types.LabelScore{
				{Label: "negative", Score: 0.1},
				{Label: "positive", Score: 0.7},
				{Label: "neutral", Score: 0.2},
			},
			want: "positive",
		},
		{
			name: "tie keeps first",
			scores: []types.LabelScore{
				{Label: "negative", Score: 0.5},
				{Label: "positive", Score: 0.5},
			},
			want: "negative",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := types.TopLabel(tc.scores); got != tc.want {
				t.Errorf("TopLabel: want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestTranscript_Confidence(t *testing.T) {
	t.Parallel()

	known := types.KnownConfidence("ciao", 0)
	if !known.HasConfidence {
		t.Error("KnownConfidence: expected HasConfidence=true even for a zero score")
	}
	unknown := types.UnknownConfidence("ciao")
	if unknown.HasConfidence {
		t.Error("UnknownConfidence: expected HasConfidence=false")
	}
}

func TestTranscript_WordCount(t *testing.T) {
	t.Parallel()

	tr := types.UnknownConfidence("  che cos'è  la fotosintesi ")
	if got := tr.WordCount(); got != 4 {
		t.Errorf("WordCount: want 4, got %d", got)
	}
	if got := (types.Transcript{}).WordCount(); got != 0 {
		t.Errorf("WordCount(empty): want 0, got %d", got)
	}
}

func TestSentiment_Known(t *testing.T) {
	t.Parallel()

	if (types.Sentiment{}).Known() {
		t.Error("zero Sentiment should not be known")
	}
	if !(types.Sentiment{Label: "negative"}).Known() {
		t.Error("labelled Sentiment should be known")
	}
}
