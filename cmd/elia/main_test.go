package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/elia/internal/config"
	"github.com/MrWong99/elia/internal/server"
)

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAsk_WritesAudio(t *testing.T) {
	t.Parallel()
	wav := []byte("RIFF-fake-wav")
	var gotField []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ask" {
			http.NotFound(w, r)
			return
		}
		f, _, err := r.FormFile(server.AudioField)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotField, _ = io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(server.AskResponse{
			Success: true,
			Message: "La fotosintesi trasforma la luce in energia.",
			Audio:   base64.StdEncoding.EncodeToString([]byte("answer-wav")),
		})
	}))
	defer srv.Close()

	in := writeTemp(t, "q.wav", wav)
	outPath := filepath.Join(t.TempDir(), "a.wav")
	stdout, err := run(t, "ask", in, "--server", srv.URL, "--out", outPath)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !bytes.Equal(gotField, wav) {
		t.Errorf("uploaded %q, want %q", gotField, wav)
	}
	if !strings.Contains(stdout, "fotosintesi") {
		t.Errorf("stdout missing message: %s", stdout)
	}
	if strings.Contains(stdout, base64.StdEncoding.EncodeToString([]byte("answer-wav"))) {
		t.Errorf("stdout should not contain the raw audio payload: %s", stdout)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "answer-wav" {
		t.Errorf("audio file: got %q", got)
	}
}

func TestAsk_ErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(server.AskResponse{Error: "missing audio"})
	}))
	defer srv.Close()

	in := writeTemp(t, "q.wav", []byte("x"))
	_, err := run(t, "ask", in, "--server", srv.URL)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "missing audio") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestAsk_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := run(t, "ask", filepath.Join(t.TempDir(), "nope.wav"), "--server", "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReportAndTranscribe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/emotional_report":
			_ = json.NewEncoder(w).Encode(server.ReportResponse{Success: true, Report: "La classe è curiosa."})
		case r.Method == http.MethodPost && r.URL.Path == "/transcribe":
			_ = json.NewEncoder(w).Encode(server.TranscribeResponse{Success: true, Text: "che cos'è un atomo"})
		case r.Method == http.MethodPost && r.URL.Path == "/attention":
			_ = json.NewEncoder(w).Encode(server.AskResponse{Success: true, Status: "ok", Message: "Attenzione!"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "report", args: []string{"report", "--server", srv.URL}, want: "curiosa"},
		{name: "transcribe", args: []string{"transcribe", writeTemp(t, "a.wav", []byte("x")), "--server", srv.URL}, want: "atomo"},
		{name: "attention", args: []string{"attention", "--server", srv.URL + "/"}, want: "Attenzione"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := run(t, tc.args...)
			if err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("output %q missing %q", out, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	good := writeTemp(t, "good.yaml", []byte(`
providers:
  asr: {name: whisper, base_url: "http://localhost:8081"}
  llm: {name: ollama, model: llama3.2}
  tts: {name: coqui, base_url: "http://localhost:5002"}
  embeddings: {name: ollama, model: nomic-embed-text}
memory:
  backend: sqlite
  embedding_dimensions: 768
`))
	out, err := run(t, "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok") || !strings.Contains(out, "asr=whisper") {
		t.Errorf("unexpected output: %q", out)
	}

	_, err = run(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing config: got %v", err)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tests := []struct {
		kind string
		want []string
	}{
		{kind: "llm", want: []string{"openai", "anthropic", "ollama"}},
		{kind: "asr", want: []string{"whisper", "openai"}},
		{kind: "tts", want: []string{"openai", "coqui"}},
		{kind: "sentiment", want: []string{"llm", "hfapi"}},
		{kind: "embeddings", want: []string{"openai", "ollama"}},
	}
	for _, tc := range tests {
		names := reg.Names(tc.kind)
		for _, w := range tc.want {
			if !slices.Contains(names, w) {
				t.Errorf("%s: %q not registered (have %v)", tc.kind, w, names)
			}
		}
	}

	p, err := reg.CreateASR(config.ProviderEntry{
		Name:    "whisper",
		BaseURL: "http://localhost:8081",
		Options: map[string]any{"language": "it", "timeout": "10s"},
	})
	if err != nil || p == nil {
		t.Fatalf("CreateASR(whisper): %v", err)
	}
}

func TestOptionHelpers(t *testing.T) {
	t.Parallel()
	entry := config.ProviderEntry{
		Name: "x",
		Options: map[string]any{
			"timeout":     "2s",
			"bad":         "soon",
			"labels":      []any{"happy", "sad"},
			"label_map":   map[string]any{"LABEL_0": "sad"},
			"system_role": false,
			"temperature": 0.2,
			"max_tokens":  300,
		},
	}
	if d := durationOption(entry, "timeout"); d.String() != "2s" {
		t.Errorf("durationOption: got %v", d)
	}
	if d := durationOption(entry, "bad"); d != 0 {
		t.Errorf("malformed duration should be ignored, got %v", d)
	}
	if got := stringsOption(entry, "labels"); !slices.Equal(got, []string{"happy", "sad"}) {
		t.Errorf("stringsOption: got %v", got)
	}
	if got := stringMapOption(entry, "label_map"); got["LABEL_0"] != "sad" {
		t.Errorf("stringMapOption: got %v", got)
	}
	if on, ok := boolOption(entry, "system_role"); !ok || on {
		t.Errorf("boolOption(system_role) = %v, %v; want false, true", on, ok)
	}
	if _, ok := boolOption(entry, "timeout"); ok {
		t.Error("boolOption accepted a string")
	}
	if d := samplingDefaults(entry); d.Temperature != 0.2 || d.MaxTokens != 300 {
		t.Errorf("samplingDefaults = %+v", d)
	}
}
