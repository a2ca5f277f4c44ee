// Package report produces the emotional report: an LLM-written summary of how
// students felt across every remembered exchange.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/elia/internal/observe"
	"github.com/MrWong99/elia/pkg/memory"
	"github.com/MrWong99/elia/pkg/provider/llm"
)

// ErrNoData is returned by [Generator.Generate] when memory is empty.
var ErrNoData = errors.New("report: no remembered exchanges")

// NoDataMessage is the user-facing text for [ErrNoData].
const NoDataMessage = "Nessun dato disponibile per il report"

// Sample limits.
const (
	DefaultMaxSamples = 50
	questionPreview   = 100
	tagPreview        = 150
)

// DefaultTimeout bounds the report completion.
const DefaultTimeout = 60 * time.Second

// Source lists remembered exchanges. [*memory.Cache] satisfies it.
type Source interface {
	Records(ctx context.Context) ([]memory.Record, error)
}

// Statistics summarise the records a report was built from.
type Statistics struct {
	TotalInteractions     int            `json:"total_interactions"`
	ValidEmotionalReports int            `json:"valid_emotional_reports"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
}

// Report is a generated emotional report.
type Report struct {
	Text       string
	Statistics Statistics
}

// Option is a functional option for [New].
type Option func(*Generator)

// WithMaxSamples caps the number of exchanges quoted in the prompt.
func WithMaxSamples(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxSamples = n
		}
	}
}

// WithTimeout bounds the LLM call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// Generator builds emotional reports. It is safe for concurrent use.
type Generator struct {
	source     Source
	llm        llm.Provider
	maxSamples int
	timeout    time.Duration
}

// New creates a Generator reading from source and writing with model.
func New(source Source, model llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		source:     source,
		llm:        model,
		maxSamples: DefaultMaxSamples,
		timeout:    DefaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate reads every record, asks the model for an analysis and returns it
// together with the statistics the prompt quoted.
func (g *Generator) Generate(ctx context.Context) (Report, error) {
	ctx, span := observe.StartSpan(ctx, "report.generate")
	defer span.End()

	recs, err := g.source.Records(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("report: read records: %w", err)
	}
	if len(recs) == 0 {
		return Report{}, ErrNoData
	}

	stats := Summarize(recs)
	prompt := BuildPrompt(recs, stats, g.maxSamples)

	observe.Logger(ctx).Info("report: generating",
		"total", stats.TotalInteractions,
		"valid", stats.ValidEmotionalReports,
	)

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.llm.Complete(cctx, llm.UserRequest(AnalysisPrompt, prompt))
	if err != nil {
		return Report{}, fmt.Errorf("report: complete: %w", err)
	}
	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Content)
	}
	return Report{Text: text, Statistics: stats}, nil
}

// Summarize counts records and their sentiment tags.
func Summarize(recs []memory.Record) Statistics {
	s := Statistics{
		TotalInteractions:     len(recs),
		SentimentDistribution: make(map[string]int),
	}
	for _, r := range recs {
		tag := strings.TrimSpace(r.Tags)
		if tag == "" {
			continue
		}
		s.ValidEmotionalReports++
		s.SentimentDistribution[tag]++
	}
	return s
}

// BuildPrompt renders the user prompt: the report instruction, the
// statistics and up to maxSamples tagged exchanges, oldest first.
func BuildPrompt(recs []memory.Record, stats Statistics, maxSamples int) string {
	var b strings.Builder
	b.WriteString(ReportInstruction)
	b.WriteString("\n\nSTATISTICHE GENERALI:\n")
	fmt.Fprintf(&b, "- Totale interazioni: %d\n", stats.TotalInteractions)
	fmt.Fprintf(&b, "- Report emotivi validi: %d\n", stats.ValidEmotionalReports)
	b.WriteString("\nSAMPLE DELLE INTERAZIONI CON REPORT EMOTIVI:\n")

	n := 0
	for _, r := range recs {
		if n >= maxSamples {
			break
		}
		tag := strings.TrimSpace(r.Tags)
		if tag == "" {
			continue
		}
		fmt.Fprintf(&b, "Domanda: %s | Report emotivo: %s\n",
			preview(r.Question, questionPreview), preview(tag, tagPreview))
		n++
	}
	return strings.TrimRight(b.String(), "\n")
}

// preview truncates s to limit runes, marking the cut with "...".
func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
