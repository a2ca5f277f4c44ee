package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/provider/embeddings"
	"github.com/MrWong99/elia/pkg/provider/llm"
	"github.com/MrWong99/elia/pkg/provider/sentiment"
	"github.com/MrWong99/elia/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods for a name with
// no registered factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds one provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// SentimentFactory builds a sentiment classifier. model is the configured
// LLM chain, for classifiers that prompt it.
type SentimentFactory func(entry ProviderEntry, model llm.Provider) (sentiment.Provider, error)

// Registry maps provider names to factories, per collaborator kind. Safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]Factory[llm.Provider]
	asr        map[string]Factory[asr.Provider]
	tts        map[string]Factory[tts.Provider]
	embeddings map[string]Factory[embeddings.Provider]
	sentiment  map[string]SentimentFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:        map[string]Factory[llm.Provider]{},
		asr:        map[string]Factory[asr.Provider]{},
		tts:        map[string]Factory[tts.Provider]{},
		embeddings: map[string]Factory[embeddings.Provider]{},
		sentiment:  map[string]SentimentFactory{},
	}
}

func register[F any](r *Registry, table map[string]F, name string, f F) {
	r.mu.Lock()
	table[name] = f
	r.mu.Unlock()
}

func lookup[F any](r *Registry, table map[string]F, kind, name string) (F, error) {
	r.mu.RLock()
	f, ok := table[name]
	r.mu.RUnlock()
	if !ok {
		return f, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return f, nil
}

func create[P any](r *Registry, table map[string]Factory[P], kind string, entry ProviderEntry) (P, error) {
	f, err := lookup(r, table, kind, entry.Name)
	if err != nil {
		var zero P
		return zero, err
	}
	return f(entry)
}

// RegisterLLM registers an LLM factory, replacing any under the same name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { register(r, r.llm, name, f) }

// RegisterASR registers a speech recognition factory.
func (r *Registry) RegisterASR(name string, f Factory[asr.Provider]) { register(r, r.asr, name, f) }

// RegisterTTS registers a speech synthesis factory.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { register(r, r.tts, name, f) }

// RegisterEmbeddings registers an embeddings factory.
func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	register(r, r.embeddings, name, f)
}

// RegisterSentiment registers a sentiment classifier factory.
func (r *Registry) RegisterSentiment(name string, f SentimentFactory) {
	register(r, r.sentiment, name, f)
}

// CreateLLM builds the LLM named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateASR builds the speech recogniser named by entry.Name.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.Provider, error) {
	return create(r, r.asr, "asr", entry)
}

// CreateTTS builds the speech synthesiser named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateEmbeddings builds the embeddings provider named by entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return create(r, r.embeddings, "embeddings", entry)
}

// CreateSentiment builds the classifier named by entry.Name, handing it model.
func (r *Registry) CreateSentiment(entry ProviderEntry, model llm.Provider) (sentiment.Provider, error) {
	f, err := lookup(r, r.sentiment, "sentiment", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry, model)
}

// Names returns the sorted provider names registered for kind ("llm", "asr",
// "tts", "embeddings" or "sentiment").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return slices.Sorted(maps.Keys(r.llm))
	case "asr":
		return slices.Sorted(maps.Keys(r.asr))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts))
	case "embeddings":
		return slices.Sorted(maps.Keys(r.embeddings))
	case "sentiment":
		return slices.Sorted(maps.Keys(r.sentiment))
	}
	return nil
}
