package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/elia/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini", Options: map[string]any{"x": 1}},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level needs no restart, got %v", d.RestartRequired)
	}
}

func TestDiff_Pipeline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.PipelineConfig)
	}{
		{"confidence", func(p *config.PipelineConfig) { v := 0.9; p.ASRConfidenceThreshold = &v }},
		{"similarity", func(p *config.PipelineConfig) { v := 0.5; p.SimilarityThreshold = &v }},
		{"dedup", func(p *config.PipelineConfig) { v := 0.97; p.DedupThreshold = &v }},
		{"min words", func(p *config.PipelineConfig) { p.MinWords = 3 }},
		{"base prompt", func(p *config.PipelineConfig) { p.BasePrompt = "Sei un assistente." }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(&new.Pipeline)
			d := config.Diff(old, new)
			if !d.PipelineChanged {
				t.Error("expected PipelineChanged=true")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("hot-reloadable change flagged for restart: %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9999"
	new.Providers.LLM.Options = map[string]any{"x": 2}
	new.Memory.EmbeddingDimensions = 768
	new.Pipeline.WorkerPoolSize = 8

	d := config.Diff(old, new)
	want := []string{"memory", "pipeline.worker_pool_size", "providers.llm", "server.listen_addr"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.PipelineChanged {
		t.Error("worker pool size is not hot-reloadable")
	}
}
