package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks a configuration that cannot be started with. Every error
// returned by [Validate] wraps it.
var ErrConfig = errors.New("config: invalid configuration")

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":        {"openai", "whisper", "whispercpp"},
	"sentiment":  {"llm", "hfapi"},
	"embeddings": {"openai", "ollama"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"openai", "coqui"},
}

// keyless lists provider names that run without an API key.
var keyless = map[string]bool{
	"whisper":    true,
	"whispercpp": true,
	"ollama":     true,
	"coqui":      true,
	"llm":        true,
	"hfapi":      true,
	"llamacpp":   true,
	"llamafile":  true,
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ELIA_"

// LoadOption configures [Load] and [LoadFromReader].
type LoadOption func(*loadOptions)

type loadOptions struct {
	lookupEnv func(string) (string, bool)
}

// WithLookupEnv replaces [os.LookupEnv] as the source of environment
// overrides. Pass a function that always reports false to disable them.
func WithLookupEnv(fn func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) { o.lookupEnv = fn }
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none are
// given) into the process environment without overriding variables that are
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string, opts ...LoadOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader, opts ...LoadOption) (*Config, error) {
	o := loadOptions{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg, o.lookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from environment variables:
//
//	ELIA_LISTEN_ADDR, ELIA_LOG_LEVEL, ELIA_LOG_FILE
//	ELIA_CONFIDENCE_THRESHOLD, ELIA_SIMILARITY_THRESHOLD, ELIA_DEDUP_THRESHOLD
//	ELIA_MIN_WORDS, ELIA_WORKER_POOL_SIZE
//	ELIA_MEMORY_BACKEND, ELIA_POSTGRES_DSN, ELIA_SQLITE_PATH
//	ELIA_<KIND>_API_KEY, ELIA_<KIND>_BASE_URL, ELIA_<KIND>_MODEL
//
// where KIND is ASR, SENTIMENT, EMBEDDINGS, LLM or TTS. Providers named
// "openai" without any key also pick up OPENAI_API_KEY.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	var errs []error

	if v, ok := get("LISTEN_ADDR"); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := get("LOG_FILE"); ok {
		cfg.Server.LogFile = v
	}

	for name, dst := range map[string]**float64{
		"CONFIDENCE_THRESHOLD": &cfg.Pipeline.ASRConfidenceThreshold,
		"SIMILARITY_THRESHOLD": &cfg.Pipeline.SimilarityThreshold,
		"DEDUP_THRESHOLD":      &cfg.Pipeline.DedupThreshold,
	} {
		v, ok := get(name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			continue
		}
		*dst = &f
	}
	for name, dst := range map[string]*int{
		"MIN_WORDS":        &cfg.Pipeline.MinWords,
		"WORKER_POOL_SIZE": &cfg.Pipeline.WorkerPoolSize,
	} {
		v, ok := get(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			continue
		}
		*dst = n
	}

	if v, ok := get("MEMORY_BACKEND"); ok {
		cfg.Memory.Backend = MemoryBackend(strings.ToLower(v))
	}
	if v, ok := get("POSTGRES_DSN"); ok {
		cfg.Memory.PostgresDSN = v
	}
	if v, ok := get("SQLITE_PATH"); ok {
		cfg.Memory.SQLitePath = v
	}

	for kind, entry := range cfg.Providers.entries() {
		k := strings.ToUpper(kind)
		if v, ok := get(k + "_API_KEY"); ok {
			entry.APIKey = v
		}
		if v, ok := get(k + "_BASE_URL"); ok {
			entry.BaseURL = v
		}
		if v, ok := get(k + "_MODEL"); ok {
			entry.Model = v
		}
		if entry.Name == "openai" && entry.APIKey == "" {
			if v, ok := lookup("OPENAI_API_KEY"); ok {
				entry.APIKey = strings.TrimSpace(v)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: environment: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// entries returns the provider slots keyed by kind.
func (p *ProvidersConfig) entries() map[string]*ProviderEntry {
	return map[string]*ProviderEntry{
		"asr":        &p.ASR,
		"sentiment":  &p.Sentiment,
		"embeddings": &p.Embeddings,
		"llm":        &p.LLM,
		"tts":        &p.TTS,
	}
}

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to be applied already and returns an error wrapping [ErrConfig]
// that lists all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	for _, kind := range []string{"asr", "llm", "tts", "embeddings"} {
		entry := cfg.Providers.entries()[kind]
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
		}
	}
	for kind, entry := range cfg.Providers.entries() {
		validateProviderName(kind, entry.Name)
		if entry.Name == "openai" && entry.APIKey == "" && entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s: openai requires an api_key (or OPENAI_API_KEY)", kind))
		}
		if entry.Name != "" && !keyless[entry.Name] && entry.Name != "openai" && entry.APIKey == "" && entry.BaseURL == "" {
			slog.Warn("provider has no api_key; relying on the backend's own environment", "kind", kind, "name", entry.Name)
		}
		for i, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			}
		}
	}
	if cfg.Providers.Sentiment.Name == "hfapi" && cfg.Providers.Sentiment.BaseURL == "" {
		errs = append(errs, errors.New("providers.sentiment: hfapi requires base_url"))
	}
	for _, kind := range []string{"asr", "tts"} {
		entry := cfg.Providers.entries()[kind]
		if (entry.Name == "whisper" || entry.Name == "coqui") && entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s: %s requires base_url", kind, entry.Name))
		}
	}
	if cfg.Providers.ASR.Name == "whispercpp" && cfg.Providers.ASR.Model == "" {
		errs = append(errs, errors.New("providers.asr: whispercpp requires model (path to a ggml model file)"))
	}

	// Pipeline
	p := cfg.Pipeline
	for name, v := range map[string]*float64{
		"asr_confidence_threshold": p.ASRConfidenceThreshold,
		"similarity_threshold":     p.SimilarityThreshold,
		"dedup_threshold":          p.DedupThreshold,
	} {
		switch {
		case v == nil:
			errs = append(errs, fmt.Errorf("pipeline.%s is required", name))
		case *v < 0 || *v > 1:
			errs = append(errs, fmt.Errorf("pipeline.%s %.2f is out of range [0, 1]", name, *v))
		}
	}
	if p.MinWords < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_words %d must not be negative", p.MinWords))
	}
	if p.WorkerPoolSize < 2 {
		// Enrichment runs two subtasks side by side.
		errs = append(errs, fmt.Errorf("pipeline.worker_pool_size %d must be at least 2", p.WorkerPoolSize))
	}
	if p.ASRSampleRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.asr_sample_rate %d must not be negative", p.ASRSampleRate))
	}
	if p.SimilarityThreshold != nil && p.DedupThreshold != nil && *p.DedupThreshold < *p.SimilarityThreshold {
		slog.Warn("pipeline.dedup_threshold is below similarity_threshold; most answered questions will not be stored",
			"dedup_threshold", *p.DedupThreshold,
			"similarity_threshold", *p.SimilarityThreshold,
		)
	}

	// Memory
	switch cfg.Memory.Backend {
	case MemoryPostgres:
		if cfg.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory.postgres_dsn is required when memory.backend is postgres"))
		}
	case MemorySQLite:
		if cfg.Memory.SQLitePath == "" {
			errs = append(errs, errors.New("memory.sqlite_path is required when memory.backend is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend %q is invalid; valid values: postgres, sqlite", cfg.Memory.Backend))
	}
	if cfg.Memory.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("memory.embedding_dimensions %d must be positive", cfg.Memory.EmbeddingDimensions))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
