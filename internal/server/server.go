// Package server exposes Elia over HTTP.
//
// Routes:
//
//   - POST /ask              multipart "audio" WAV → spoken answer
//   - POST /transcribe       multipart "audio" WAV → transcript only
//   - POST /attention        spoken call to attention
//   - GET  /emotional_report LLM analysis of remembered exchanges
//   - GET  /healthz, /readyz liveness and readiness
//   - GET  /metrics          Prometheus exposition
//
// Input problems are answered with 400 before any provider is called.
// Upstream failures are answered with 500 and a generic message.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/elia/internal/health"
	"github.com/MrWong99/elia/internal/observe"
	"github.com/MrWong99/elia/internal/report"
	"github.com/MrWong99/elia/internal/turn"
	"github.com/MrWong99/elia/pkg/audio"
	"github.com/MrWong99/elia/pkg/types"
)

// ErrInput marks a request whose audio upload is missing or malformed.
var ErrInput = errors.New("server: invalid input")

// DefaultMaxUploadBytes caps the size of an uploaded WAV.
const DefaultMaxUploadBytes = 32 << 20

// AudioField is the multipart field carrying the WAV upload.
const AudioField = "audio"

// Turns runs the voice pipeline. [*turn.Orchestrator] satisfies it.
type Turns interface {
	HandleAudio(ctx context.Context, wav []byte) turn.Result
	Transcribe(ctx context.Context, wav []byte) (types.Transcript, error)
	Attention(ctx context.Context) turn.Result
}

// Reporter generates emotional reports. [*report.Generator] satisfies it.
type Reporter interface {
	Generate(ctx context.Context) (report.Report, error)
}

// ── response bodies ──────────────────────────────────────────────────────────

// AskResponse is the body of /ask and /attention.
type AskResponse struct {
	Success    bool     `json:"success"`
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Audio      string   `json:"audio,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Error      string   `json:"error,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// TranscribeResponse is the body of /transcribe.
type TranscribeResponse struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Language   string   `json:"language,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ReportResponse is the body of /emotional_report.
type ReportResponse struct {
	Success    bool               `json:"success"`
	Report     string             `json:"report,omitempty"`
	Statistics *report.Statistics `json:"statistics,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// ── server ───────────────────────────────────────────────────────────────────

// Option is a functional option for [New].
type Option func(*Server)

// WithReporter enables GET /emotional_report.
func WithReporter(r Reporter) Option {
	return func(s *Server) { s.reports = r }
}

// WithHealth serves /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics wraps every route in the metrics middleware and serves
// exposition at /metrics when exposition is non-nil.
func WithMetrics(m *observe.Metrics, exposition http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.exposition = exposition
	}
}

// WithASRSampleRate converts uploads to mono 16-bit WAV at rate before
// transcription. Zero leaves uploads untouched.
func WithASRSampleRate(rate int) Option {
	return func(s *Server) { s.asrSampleRate = rate }
}

// WithMaxUploadBytes caps the request body size.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// Server holds the HTTP handlers. It is safe for concurrent use.
type Server struct {
	turns         Turns
	reports       Reporter
	health        *health.Handler
	metrics       *observe.Metrics
	exposition    http.Handler
	asrSampleRate int
	maxUpload     int64
}

// New creates a Server running turns.
func New(turns Turns, opts ...Option) *Server {
	s := &Server{turns: turns, maxUpload: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /attention", s.handleAttention)
	if s.reports != nil {
		mux.HandleFunc("GET /emotional_report", s.handleReport)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.exposition != nil {
		mux.Handle("GET /metrics", s.exposition)
	}
	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// ── handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	wav, err := s.readAudio(w, r)
	if err != nil {
		s.inputError(w, r, err)
		return
	}
	res := s.turns.HandleAudio(r.Context(), wav)
	body := askBody(res)
	if res.Transcript.HasConfidence {
		c := res.Transcript.Confidence
		body.Confidence = &c
	}
	writeJSON(w, resultStatus(res), body)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	wav, err := s.readAudio(w, r)
	if err != nil {
		s.inputError(w, r, err)
		return
	}
	t, err := s.turns.Transcribe(r.Context(), wav)
	if err != nil {
		observe.Logger(r.Context()).Error("server: transcribe failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, TranscribeResponse{Error: "trascrizione non riuscita"})
		return
	}
	body := TranscribeResponse{Success: true, Text: t.Text, Language: t.Language}
	if t.HasConfidence {
		c := t.Confidence
		body.Confidence = &c
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAttention(w http.ResponseWriter, r *http.Request) {
	res := s.turns.Attention(r.Context())
	body := askBody(res)
	body.Status = ""
	writeJSON(w, resultStatus(res), body)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Generate(r.Context())
	switch {
	case errors.Is(err, report.ErrNoData):
		writeJSON(w, http.StatusBadRequest, ReportResponse{Error: report.NoDataMessage})
	case err != nil:
		observe.Logger(r.Context()).Error("server: emotional report failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ReportResponse{Error: turn.ErrorMessage})
	default:
		stats := rep.Statistics
		writeJSON(w, http.StatusOK, ReportResponse{Success: true, Report: rep.Text, Statistics: &stats})
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

// readAudio extracts and validates the uploaded WAV. Every failure wraps
// [ErrInput].
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, fmt.Errorf("%w: parse multipart form: %v", ErrInput, err)
	}
	f, hdr, err := r.FormFile(AudioField)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %q file", ErrInput, AudioField)
	}
	defer f.Close()
	if hdr.Filename == "" {
		return nil, fmt.Errorf("%w: empty filename", ErrInput)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", ErrInput, err)
	}
	if _, err := audio.Inspect(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}
	if s.asrSampleRate > 0 {
		if data, err = audio.ToMono16(data, s.asrSampleRate); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInput, err)
		}
	}
	return data, nil
}

func (s *Server) inputError(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context()).Warn("server: rejected request", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusBadRequest, AskResponse{Status: string(turn.StatusError), Error: err.Error()})
}

func askBody(res turn.Result) AskResponse {
	body := AskResponse{
		Success: res.Status != turn.StatusError,
		Status:  string(res.Status),
		Message: res.Message,
		Error:   res.ErrorDetail,
	}
	if len(res.Audio) > 0 {
		body.Audio = base64.StdEncoding.EncodeToString(res.Audio)
		body.SampleRate = res.SampleRate
	}
	return body
}

func resultStatus(res turn.Result) int {
	if res.Status == turn.StatusError {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encode response", "status", status, "err", err)
	}
}
