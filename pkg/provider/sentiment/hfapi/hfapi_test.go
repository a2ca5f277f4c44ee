package hfapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		opts      []Option
		wantLabel string
		wantN     int
	}{
		{
			name:      "nested list",
			body:      `[[{"label":"negative","score":0.8},{"label":"neutral","score":0.15},{"label":"positive","score":0.05}]]`,
			wantLabel: "negative",
			wantN:     3,
		},
		{
			name:      "flat unsorted list",
			body:      `[{"label":"NEUTRAL","score":0.2},{"label":"POSITIVE","score":0.7}]`,
			wantLabel: "positive",
			wantN:     2,
		},
		{
			name:      "label map",
			body:      `[[{"label":"LABEL_2","score":0.9},{"label":"LABEL_0","score":0.1}]]`,
			opts:      []Option{WithLabelMap(map[string]string{"LABEL_0": "negative", "LABEL_2": "positive"})},
			wantLabel: "positive",
			wantN:     2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req request
				raw, _ := io.ReadAll(r.Body)
				if err := json.Unmarshal(raw, &req); err != nil || req.Inputs == "" {
					t.Errorf("bad request body %q", raw)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer hf-test" {
					t.Errorf("Authorization = %q", got)
				}
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			p, err := New(srv.URL, append([]Option{WithToken("hf-test")}, tc.opts...)...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			s, err := p.Classify(context.Background(), "Non capisco le frazioni")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if s.Label != tc.wantLabel {
				t.Errorf("Label = %q, want %q", s.Label, tc.wantLabel)
			}
			if len(s.Scores) != tc.wantN {
				t.Errorf("len(Scores) = %d, want %d", len(s.Scores), tc.wantN)
			}
			if s.Scores[0].Label != tc.wantLabel {
				t.Errorf("scores not sorted: %+v", s.Scores)
			}
		})
	}
}

func TestClassify_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"loading model", http.StatusServiceUnavailable, `{"error":"Model is currently loading"}`},
		{"empty result", http.StatusOK, `[[]]`},
		{"garbage", http.StatusOK, `{"foo":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			if _, err := p.Classify(context.Background(), "ciao"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClassify_BlankTextHasNoLabel(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"", "  ", "\n\t"} {
		got, err := p.Classify(context.Background(), text)
		if err != nil || got.Label != "" || len(got.Scores) != 0 {
			t.Errorf("Classify(%q) = %+v, %v; want empty sentiment, nil", text, got, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("endpoint called %d times for blank text", n)
	}
}

func TestNew_EmptyEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
