// Package app wires all Elia subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order, draining background memory writes first.
//
// For testing, inject doubles via functional options (WithIndex,
// WithTelemetry, WithListener). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/elia/internal/config"
	"github.com/MrWong99/elia/internal/enrich"
	"github.com/MrWong99/elia/internal/health"
	"github.com/MrWong99/elia/internal/observe"
	"github.com/MrWong99/elia/internal/report"
	"github.com/MrWong99/elia/internal/server"
	"github.com/MrWong99/elia/internal/turn"
	"github.com/MrWong99/elia/internal/workpool"
	"github.com/MrWong99/elia/pkg/memory"
	"github.com/MrWong99/elia/pkg/memory/postgres"
	"github.com/MrWong99/elia/pkg/memory/sqlite"
	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/provider/embeddings"
	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/provider/tts"
)

// Providers holds one interface value per collaborator. Populated by
// [BuildProviders] or injected directly by tests.
type Providers struct {
	ASR        asr.Provider
	Sentiment  sentiment.Provider
	Embeddings embeddings.Provider
	LLM        llm.Provider
	TTS        tts.Provider

	// Closers are released after the memory store on shutdown.
	Closers []io.Closer
}

// pinger is implemented by memory backends that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	level     *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	index     memory.Index
	cache     *memory.Cache
	pool      *workpool.Pool
	turns     *turn.Orchestrator
	reports   *report.Generator
	telemetry *observe.Telemetry
	handler   http.Handler
	http      *http.Server
	listener  net.Listener

	// closers run in order during Shutdown, after the pool drained.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithIndex injects a memory index instead of opening the configured backend.
func WithIndex(idx memory.Index) Option {
	return func(a *App) { a.index = idx }
}

// WithTelemetry injects telemetry instead of initialising the OTel SDK.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithLogLevel lets [App.ApplyConfig] change the log level at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already be
// validated and providers must carry every collaborator.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if a.telemetry == nil {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "elia"})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.telemetry = tel
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(sctx)
		})
	}

	// ── 2. Memory ────────────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init memory: %w", err)
	}
	for _, c := range providers.Closers {
		a.closers = append(a.closers, c.Close)
	}
	a.cache = memory.NewCache(a.index, providers.Embeddings)

	// ── 3. Worker pool ───────────────────────────────────────────────────
	a.pool = workpool.New(cfg.Pipeline.WorkerPoolSize, workpool.WithDetachedHook(logDetached))

	// ── 4. Turn pipeline ─────────────────────────────────────────────────
	t := cfg.Pipeline.Timeouts
	enricher := enrich.New(a.pool, providers.Sentiment, a.cache,
		enrich.WithSentimentTimeout(t.Sentiment),
		enrich.WithMemoryTimeout(t.Memory),
		enrich.WithMetrics(a.telemetry.Metrics),
	)
	a.turns = turn.New(a.pool, turn.Collaborators{
		ASR:      providers.ASR,
		LLM:      providers.LLM,
		TTS:      providers.TTS,
		Enricher: enricher,
		Memory:   a.cache,
	},
		turn.WithSettings(SettingsFrom(cfg.Pipeline)),
		turn.WithTimeouts(TimeoutsFrom(cfg.Pipeline.Timeouts)),
		turn.WithMetrics(a.telemetry.Metrics),
	)
	a.reports = report.New(a.cache, providers.LLM, report.WithTimeout(t.Report))

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	checks := []health.Checker{{
		Name: "memory",
		Check: func(ctx context.Context) error {
			if p, ok := a.index.(pinger); ok {
				return p.Ping(ctx)
			}
			_, err := a.index.Count(ctx)
			return err
		},
	}}
	srv := server.New(a.turns,
		server.WithReporter(a.reports),
		server.WithHealth(health.New(checks)),
		server.WithMetrics(a.telemetry.Metrics, a.telemetry.Handler),
		server.WithASRSampleRate(cfg.Pipeline.ASRSampleRate),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	a.handler = srv.Handler()

	return a, nil
}

func (p *Providers) validate() error {
	var errs []error
	if p == nil {
		return errors.New("providers are required")
	}
	for name, missing := range map[string]bool{
		"asr":        p.ASR == nil,
		"sentiment":  p.Sentiment == nil,
		"embeddings": p.Embeddings == nil,
		"llm":        p.LLM == nil,
		"tts":        p.TTS == nil,
	} {
		if missing {
			errs = append(errs, fmt.Errorf("%s provider is required", name))
		}
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMemory opens the configured memory backend unless one was injected.
func (a *App) initMemory(ctx context.Context) error {
	if a.index != nil {
		return nil
	}

	switch a.cfg.Memory.Backend {
	case config.MemoryPostgres:
		store, err := postgres.NewStore(ctx, a.cfg.Memory.PostgresDSN, a.cfg.Memory.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.index = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	case config.MemorySQLite:
		store, err := sqlite.Open(a.cfg.Memory.SQLitePath)
		if err != nil {
			return err
		}
		a.index = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unknown memory backend %q", a.cfg.Memory.Backend)
	}

	n, err := a.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	slog.Info("memory ready", "backend", a.cfg.Memory.Backend, "records", n)
	return nil
}

func logDetached(name string, elapsed time.Duration, err error) {
	if err != nil {
		slog.Warn("background task failed", "task", name, "elapsed", elapsed, "err", err)
		return
	}
	slog.Debug("background task finished", "task", name, "elapsed", elapsed)
}

// SettingsFrom converts the hot-reloadable pipeline config to turn settings.
// Nil thresholds fall back to [turn.DefaultSettings].
func SettingsFrom(p config.PipelineConfig) turn.Settings {
	s := turn.DefaultSettings()
	if p.ASRConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ASRConfidenceThreshold
	}
	if p.SimilarityThreshold != nil {
		s.SimilarityThreshold = *p.SimilarityThreshold
	}
	if p.DedupThreshold != nil {
		s.DedupThreshold = *p.DedupThreshold
	}
	s.MinWords = p.MinWords
	if p.BasePrompt != "" {
		s.BasePrompt = p.BasePrompt
	}
	return s
}

// TimeoutsFrom converts configured timeouts to turn timeouts.
func TimeoutsFrom(t config.TimeoutsConfig) turn.Timeouts {
	return turn.Timeouts{
		ASR:         t.ASR,
		LLM:         t.LLM,
		TTS:         t.TTS,
		MemoryWrite: t.MemoryWrite,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Turns returns the turn orchestrator.
func (a *App) Turns() *turn.Orchestrator { return a.turns }

// Reports returns the emotional report generator.
func (a *App) Reports() *report.Generator { return a.reports }

// Cache returns the semantic memory cache.
func (a *App) Cache() *memory.Cache { return a.cache }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a new config: log level,
// thresholds, min words and the base prompt. Everything else is logged as
// requiring a restart. Suitable as a [config.Watcher] callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PipelineChanged {
		s := SettingsFrom(new.Pipeline)
		if err := s.Validate(); err != nil {
			slog.Warn("ignoring invalid pipeline settings", "err", err)
		} else {
			a.turns.SetSettings(s)
			slog.Info("pipeline settings reloaded",
				"confidence_threshold", s.ConfidenceThreshold,
				"similarity_threshold", s.SimilarityThreshold,
				"dedup_threshold", s.DedupThreshold,
				"min_words", s.MinWords,
			)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// On cancellation it stops accepting requests and waits for in-flight ones
// within cfg.Server.ShutdownTimeout; call [App.Shutdown] afterwards.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	a.http = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.http.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.http.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.http.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains background memory writes and closes every subsystem in
// order. If ctx expires first, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.pool != nil {
			if err := a.pool.Drain(ctx); err != nil {
				slog.Warn("background writes did not finish", "err", err)
				shutdownErr = err
			}
		}
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the registered closers after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
