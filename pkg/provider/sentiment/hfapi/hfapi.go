// Package hfapi provides a sentiment provider backed by a Hugging Face style
// text-classification endpoint: the hosted Inference API, a dedicated
// Inference Endpoint, or a self-hosted text-embeddings-inference /predict
// route. All of them accept {"inputs": "..."} and answer with a list of
// {label, score} objects, optionally nested one level deep.
//
// Usage:
//
//	p, err := hfapi.New("https://api-inference.huggingface.co/models/neuraly/bert-base-italian-cased-sentiment",
//	    hfapi.WithToken(os.Getenv("HF_TOKEN")),
//	)
//	s, err := p.Classify(ctx, "Non capisco niente di matematica")
package hfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/types"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

var _ sentiment.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithToken sets the bearer token sent in the Authorization header.
func WithToken(token string) Option {
	return func(p *Provider) {
		p.token = token
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithLabelMap renames labels returned by the model (e.g. "LABEL_0" →
// "negative"). Labels missing from the map are lower-cased and kept.
func WithLabelMap(m map[string]string) Option {
	return func(p *Provider) {
		p.labelMap = m
	}
}

// Provider implements sentiment.Provider over HTTP.
type Provider struct {
	endpoint   string
	token      string
	labelMap   map[string]string
	httpClient *http.Client
}

// New creates a Provider that POSTs to endpoint. endpoint must be non-empty.
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("hfapi: endpoint must not be empty")
	}
	p := &Provider{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type request struct {
	Inputs string `json:"inputs"`
}

// Classify implements sentiment.Provider.
func (p *Provider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return types.Sentiment{}, nil
	}

	data, err := json.Marshal(request{Inputs: text})
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("hfapi: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("hfapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("hfapi: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("hfapi: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Sentiment{}, fmt.Errorf("hfapi: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scores, err := parseScores(body)
	if err != nil {
		return types.Sentiment{}, err
	}
	for i := range scores {
		scores[i].Label = p.mapLabel(scores[i].Label)
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	return types.Sentiment{Label: types.TopLabel(scores), Scores: scores}, nil
}

// parseScores accepts both [{label,score}] and [[{label,score}]].
func parseScores(body []byte) ([]types.LabelScore, error) {
	var nested [][]types.LabelScore
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 || len(nested[0]) == 0 {
			return nil, errors.New("hfapi: empty classification result")
		}
		return nested[0], nil
	}
	var flat []types.LabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("hfapi: parse response: %w", err)
	}
	if len(flat) == 0 {
		return nil, errors.New("hfapi: empty classification result")
	}
	return flat, nil
}

func (p *Provider) mapLabel(label string) string {
	if m, ok := p.labelMap[label]; ok {
		return m
	}
	return strings.ToLower(label)
}
