package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		model       string
		opts        []Option
		wantModel   string
		wantDims    int
		wantShorten bool
	}{
		{name: "default model", wantModel: DefaultModel, wantDims: 1536},
		{name: "large", model: "text-embedding-3-large", wantModel: "text-embedding-3-large", wantDims: 3072},
		{name: "bge-m3", model: "BAAI/bge-m3", wantModel: "BAAI/bge-m3", wantDims: 1024},
		{name: "unknown model", model: "some-future-model", wantModel: "some-future-model", wantDims: 1536},
		{
			name: "shortened text-embedding-3", model: "text-embedding-3-small", opts: []Option{WithDimensions(256)},
			wantModel: "text-embedding-3-small", wantDims: 256, wantShorten: true,
		},
		{
			name: "pinned width on another model", model: "BAAI/bge-m3", opts: []Option{WithDimensions(768)},
			wantModel: "BAAI/bge-m3", wantDims: 768,
		},
		{
			name: "native width is not sent", model: "text-embedding-3-small", opts: []Option{WithDimensions(1536)},
			wantModel: "text-embedding-3-small", wantDims: 1536,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("sk-test", tc.model, tc.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.ModelID() != tc.wantModel || p.Dimensions() != tc.wantDims || p.shorten != tc.wantShorten {
				t.Errorf("got model %q dims %d shorten %v, want %q %d %v",
					p.ModelID(), p.Dimensions(), p.shorten, tc.wantModel, tc.wantDims, tc.wantShorten)
			}
		})
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", "text-embedding-3-small"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// fakeEmbeddings serves /v1/embeddings with vec and records the request body.
func fakeEmbeddings(t *testing.T, vec []float64, body *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  (*body)["model"],
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed_CompatibleServer(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := fakeEmbeddings(t, []float64{0.25, -0.5, 1}, &body)

	p, err := New("sk-test", "BAAI/bge-m3", WithBaseURL(srv.URL+"/v1/"), WithDimensions(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := p.Embed(context.Background(), "che cos'è un atomo")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if want := []float32{0.25, -0.5, 1}; !slices.Equal(vec, want) {
		t.Errorf("vector = %v, want %v", vec, want)
	}
	if body["model"] != "BAAI/bge-m3" || body["input"] != "che cos'è un atomo" {
		t.Errorf("request body = %v", body)
	}
	if _, sent := body["dimensions"]; sent {
		t.Error("dimensions sent to a model that cannot shorten")
	}
}

func TestEmbed_Shortened(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := fakeEmbeddings(t, []float64{1, 0}, &body)

	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL(srv.URL+"/v1/"), WithDimensions(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "ciao"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if body["dimensions"] != float64(2) {
		t.Errorf("dimensions = %v, want 2", body["dimensions"])
	}
}

func TestEmbed_WrongWidth(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := fakeEmbeddings(t, []float64{1, 0, 0}, &body)

	p, err := New("sk-test", "BAAI/bge-m3", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "ciao"); err == nil {
		t.Fatal("expected error for a 3-wide vector from a 1024-wide model")
	}
}
