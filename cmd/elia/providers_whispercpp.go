//go:build whispercpp

package main

import (
	"github.com/MrWong99/elia/internal/config"
	"github.com/MrWong99/elia/pkg/provider/asr"
	"github.com/MrWong99/elia/pkg/provider/asr/whispercpp"
)

func init() {
	optionalProviders = append(optionalProviders, func(reg *config.Registry) {
		// Model is the path to a ggml model file, e.g. models/ggml-medium.bin.
		reg.RegisterASR("whispercpp", func(entry config.ProviderEntry) (asr.Provider, error) {
			var opts []whispercpp.Option
			if lang := entry.Option("language", ""); lang != "" {
				opts = append(opts, whispercpp.WithLanguage(lang))
			}
			if n := int(entry.FloatOption("threads", 0)); n > 0 {
				opts = append(opts, whispercpp.WithThreads(n))
			}
			return whispercpp.New(entry.Model, opts...)
		})
	})
}
