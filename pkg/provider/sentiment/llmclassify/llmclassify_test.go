package llmclassify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/elia/pkg/provider/llm"
	llmmock "github.com/MrWong99/elia/pkg/provider/llm/mock"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer  string
		want    string
		wantErr bool
	}{
		{answer: "negative", want: "negative"},
		{answer: "Positive.", want: "positive"},
		{answer: "Direi: neutro", want: "neutral"},
		{answer: "NEGATIVA", want: "negative"},
		{answer: "non saprei", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.answer, func(t *testing.T) {
			t.Parallel()
			m := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: tc.answer}}
			p, err := New(m)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			s, err := p.Classify(context.Background(), "Questa lezione è bellissima")
			if tc.wantErr {
				if !errors.Is(err, ErrUnparseable) {
					t.Fatalf("err = %v, want ErrUnparseable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if s.Label != tc.want {
				t.Errorf("Label = %q, want %q", s.Label, tc.want)
			}
			req := m.LastRequest()
			if !strings.Contains(req.SystemPrompt, "positive, neutral, negative") {
				t.Errorf("system prompt does not list labels: %q", req.SystemPrompt)
			}
			if len(req.Messages) != 1 || req.Messages[0].Content != "Questa lezione è bellissima" {
				t.Errorf("unexpected messages %+v", req.Messages)
			}
		})
	}
}

func TestClassify_BlankTextHasNoLabel(t *testing.T) {
	t.Parallel()

	m := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "neutral"}}
	p, _ := New(m)
	s, err := p.Classify(context.Background(), " \n ")
	if err != nil || s.Label != "" {
		t.Fatalf("Classify = %+v, %v; want empty sentiment, nil", s, err)
	}
	if m.CallCount() != 0 {
		t.Error("model asked to classify blank text")
	}
}

func TestClassify_LLMError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p, _ := New(&llmmock.Provider{CompleteErr: boom})
	if _, err := p.Classify(context.Background(), "ciao"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestNew_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}
