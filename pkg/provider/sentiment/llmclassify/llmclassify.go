// Package llmclassify provides a zero-shot sentiment provider that asks a
// language model to pick one of a fixed set of labels. It is meant for
// deployments without a dedicated classification model.
package llmclassify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/types"
)

var _ sentiment.Provider = (*Provider)(nil)

// ErrUnparseable is returned when the model answers with none of the labels.
var ErrUnparseable = errors.New("llmclassify: answer contains no known label")

const systemPrompt = `Sei un classificatore di sentiment per frasi di studenti in italiano.
Rispondi con una sola parola, scelta tra: %s.
Non aggiungere spiegazioni.`

// synonyms maps Italian answers back to the canonical labels.
var synonyms = map[string]string{
	"positivo": "positive",
	"positiva": "positive",
	"neutro":   "neutral",
	"neutrale": "neutral",
	"negativo": "negative",
	"negativa": "negative",
}

// Provider implements sentiment.Provider on top of an llm.Provider.
type Provider struct {
	llm    llm.Provider
	labels []string
}

// New creates a Provider. When labels is empty sentiment.Labels is used.
func New(p llm.Provider, labels ...string) (*Provider, error) {
	if p == nil {
		return nil, errors.New("llmclassify: llm provider must not be nil")
	}
	if len(labels) == 0 {
		labels = sentiment.Labels
	}
	return &Provider{llm: p, labels: labels}, nil
}

// Classify implements sentiment.Provider.
func (p *Provider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return types.Sentiment{}, nil
	}

	req := llm.UserRequest(fmt.Sprintf(systemPrompt, strings.Join(p.labels, ", ")), text)
	req.Temperature = 0
	req.MaxTokens = 8

	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("llmclassify: %w", err)
	}
	if resp == nil {
		return types.Sentiment{}, ErrUnparseable
	}

	label, ok := p.parse(resp.Content)
	if !ok {
		return types.Sentiment{}, fmt.Errorf("%w: %q", ErrUnparseable, resp.Content)
	}
	return types.Sentiment{
		Label:  label,
		Scores: []types.LabelScore{{Label: label, Score: 1}},
	}, nil
}

// parse returns the first configured label found among the words of answer.
func (p *Provider) parse(answer string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '_' || r == '-')
	})
	for _, w := range words {
		if canon, ok := synonyms[w]; ok {
			w = canon
		}
		for _, l := range p.labels {
			if w == strings.ToLower(l) {
				return l, true
			}
		}
	}
	return "", false
}
