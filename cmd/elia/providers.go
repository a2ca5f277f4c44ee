package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/elia/internal/config"
	"github.com/MrWong99/elia/pkg/provider/asr"
	asropenai "github.com/MrWong99/elia/pkg/provider/asr/openai"
	"github.com/MrWong99/elia/pkg/provider/asr/whisper"
	"github.com/MrWong99/elia/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/elia/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/elia/pkg/provider/embeddings/openai"
	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/elia/pkg/provider/llm/openai"
	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/provider/sentiment/hfapi"
	"github.com/MrWong99/elia/pkg/provider/sentiment/llmclassify"
	"github.com/MrWong99/elia/pkg/provider/tts"
	"github.com/MrWong99/elia/pkg/provider/tts/coqui"
	ttsopenai "github.com/MrWong99/elia/pkg/provider/tts/openai"
)

// optionalProviders holds registrations compiled in by build tags.
var optionalProviders []func(*config.Registry)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the Chat Completions API directly; every other backend,
	// local or hosted, goes through any-llm.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization", ""); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, llmopenai.WithTimeout(d))
		}
		if _, ok := entry.Options["max_retries"]; ok {
			opts = append(opts, llmopenai.WithMaxRetries(int(entry.FloatOption("max_retries", 0))))
		}
		if on, ok := boolOption(entry, "system_role"); ok {
			opts = append(opts, llmopenai.WithSystemRole(on))
		}
		opts = append(opts, llmopenai.WithDefaults(samplingDefaults(entry)))
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var client []anyllmlib.Option
			if entry.APIKey != "" {
				client = append(client, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				client = append(client, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			opts := []anyllm.Option{anyllm.WithBackendOptions(client...), anyllm.WithDefaults(samplingDefaults(entry))}
			if on, ok := boolOption(entry, "system_role"); ok {
				opts = append(opts, anyllm.WithSystemRole(on))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if _, ok := entry.Options["temperature"]; ok {
			opts = append(opts, whisper.WithTemperature(entry.FloatOption("temperature", 0)))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterASR("openai", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []asropenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, asropenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, asropenai.WithModel(entry.Model))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, asropenai.WithLanguage(lang))
		}
		if prompt := entry.Option("prompt", ""); prompt != "" {
			opts = append(opts, asropenai.WithPrompt(prompt))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, asropenai.WithTimeout(d))
		}
		return asropenai.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if voice := entry.Option("voice", ""); voice != "" {
			opts = append(opts, ttsopenai.WithVoice(voice))
		}
		if instr := entry.Option("instructions", ""); instr != "" {
			opts = append(opts, ttsopenai.WithInstructions(instr))
		}
		if speed := entry.FloatOption("speed", 0); speed > 0 {
			opts = append(opts, ttsopenai.WithSpeed(speed))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := entry.Option("speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := entry.Option("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Sentiment ─────────────────────────────────────────────────────────────

	reg.RegisterSentiment("llm", func(entry config.ProviderEntry, model llm.Provider) (sentiment.Provider, error) {
		return llmclassify.New(model, stringsOption(entry, "labels")...)
	})

	reg.RegisterSentiment("hfapi", func(entry config.ProviderEntry, _ llm.Provider) (sentiment.Provider, error) {
		var opts []hfapi.Option
		if entry.APIKey != "" {
			opts = append(opts, hfapi.WithToken(entry.APIKey))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, hfapi.WithTimeout(d))
		}
		if m := stringMapOption(entry, "label_map"); len(m) > 0 {
			opts = append(opts, hfapi.WithLabelMap(m))
		}
		return hfapi.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := int(entry.FloatOption("dimensions", 0)); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := int(entry.FloatOption("dimensions", 0)); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		if ka := durationOption(entry, "keep_alive"); ka != 0 {
			opts = append(opts, ollamaembed.WithKeepAlive(ka))
		}
		if d := durationOption(entry, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, register := range optionalProviders {
		register(reg)
	}

	for _, kind := range []string{"llm", "asr", "tts", "sentiment", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Option helpers ────────────────────────────────────────────────────────────

// durationOption parses Options[key] as a Go duration string ("30s").
// Malformed values are logged and ignored.
func durationOption(entry config.ProviderEntry, key string) time.Duration {
	s := entry.Option(key, "")
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring malformed duration option", "provider", entry.Name, "key", key, "value", s, "err", err)
		return 0
	}
	return d
}

// boolOption returns Options[key] when it is set to a YAML boolean.
func boolOption(entry config.ProviderEntry, key string) (value, ok bool) {
	value, ok = entry.Options[key].(bool)
	return value, ok
}

// samplingDefaults reads the optional temperature and max_tokens settings of
// an LLM entry.
func samplingDefaults(entry config.ProviderEntry) llm.Defaults {
	return llm.Defaults{
		Temperature: entry.FloatOption("temperature", 0),
		MaxTokens:   int(entry.FloatOption("max_tokens", 0)),
	}
}

// stringsOption returns Options[key] as a string list.
func stringsOption(entry config.ProviderEntry, key string) []string {
	raw, ok := entry.Options[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// stringMapOption returns Options[key] as a string map.
func stringMapOption(entry config.ProviderEntry, key string) map[string]string {
	raw, ok := entry.Options[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}
