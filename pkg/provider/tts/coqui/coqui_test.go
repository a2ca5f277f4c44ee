package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/elia/pkg/audio"
	"github.com/MrWong99/elia/pkg/provider/tts"
)

// tenMillis returns 10ms of mono 16-bit WAV at rate.
func tenMillis(t *testing.T, rate int) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV(make([]byte, 2*rate/100), rate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		url      string
		opts     []Option
		wantErr  bool
		wantBase string
		wantLang string
	}{
		{name: "defaults", url: "http://localhost:5002", wantBase: "http://localhost:5002", wantLang: "it"},
		{name: "trailing slash", url: "http://localhost:5002/", wantBase: "http://localhost:5002", wantLang: "it"},
		{name: "language", url: "http://x", opts: []Option{WithLanguage("en")}, wantBase: "http://x", wantLang: "en"},
		{name: "xtts with speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS), WithSpeaker("elia.wav")}, wantBase: "http://x", wantLang: "it"},
		{name: "empty url", wantErr: true},
		{name: "xtts without speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS)}, wantErr: true},
		{name: "unknown mode", url: "http://x", opts: []Option{WithAPIMode("piper")}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.url, tc.opts...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.base != tc.wantBase || p.language != tc.wantLang || p.client.Timeout != defaultTimeout {
				t.Errorf("got base %q lang %q timeout %v", p.base, p.language, p.client.Timeout)
			}
		})
	}
}

func TestSynthesize_Standard(t *testing.T) {
	t.Parallel()
	wav := tenMillis(t, 22050)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method != http.MethodGet || r.URL.Path != standardPath {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		if q.Get("text") != "Ciao a tutti." || q.Get("speaker_id") != "p225" || q.Get("language_id") != "it" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithSpeaker("p225"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Synthesize(context.Background(), "  Ciao a tutti. ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.SampleRate != 22050 || len(out.WAV) != len(wav) {
		t.Errorf("got %d Hz, %d bytes", out.SampleRate, len(out.WAV))
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()
	wav := tenMillis(t, 24000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != xttsPath {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		var body xttsBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body != (xttsBody{Text: "Buongiorno", SpeakerWav: "elia.wav", Language: "it"}) {
			t.Errorf("body = %+v", body)
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("elia.wav"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Synthesize(context.Background(), "Buongiorno")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", out.SampleRate)
	}
}

func TestSynthesize_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name:  "blank text",
			text:  "   ",
			check: func(err error) bool { return errors.Is(err, tts.ErrEmptyText) },
		},
		{
			name: "server error carries body",
			text: "ciao",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			check: func(err error) bool { return err != nil && strings.Contains(err.Error(), "model not loaded") },
		},
		{
			name: "not a wav",
			text: "ciao",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("definitely not audio"))
			},
			check: func(err error) bool { return err != nil },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			url := "http://127.0.0.1:1"
			if tc.handler != nil {
				srv := httptest.NewServer(tc.handler)
				defer srv.Close()
				url = srv.URL
			}
			p, err := New(url)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.Synthesize(context.Background(), tc.text); !tc.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p, err := New(srv.URL, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(ctx, "ciao"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
