package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// changes are flagged individually; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when any hot-reloadable pipeline setting
	// changed: thresholds, min words or the base prompt.
	PipelineChanged bool

	// RestartRequired names the sections whose changes only apply after a
	// restart, in a stable order.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PipelineChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Pipeline, new.Pipeline
	if !floatPtrEqual(op.ASRConfidenceThreshold, np.ASRConfidenceThreshold) ||
		!floatPtrEqual(op.SimilarityThreshold, np.SimilarityThreshold) ||
		!floatPtrEqual(op.DedupThreshold, np.DedupThreshold) ||
		op.MinWords != np.MinWords ||
		op.BasePrompt != np.BasePrompt {
		d.PipelineChanged = true
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.log_file", old.Server.LogFile != new.Server.LogFile)
	restart("server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS))
	for _, kind := range []string{"asr", "embeddings", "llm", "sentiment", "tts"} {
		o := old.Providers.entries()[kind]
		n := new.Providers.entries()[kind]
		restart("providers."+kind, !reflect.DeepEqual(o, n))
	}
	restart("pipeline.worker_pool_size", op.WorkerPoolSize != np.WorkerPoolSize)
	restart("pipeline.asr_sample_rate", op.ASRSampleRate != np.ASRSampleRate)
	restart("pipeline.timeouts", op.Timeouts != np.Timeouts)
	restart("memory", old.Memory != new.Memory)
	restart("resilience", old.Resilience != new.Resilience)
	slices.Sort(d.RestartRequired)

	return d
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
