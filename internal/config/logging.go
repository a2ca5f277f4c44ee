package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the process logger: a text handler on w plus, when
// cfg.LogFile is set, a JSON handler appending to that file. Both share
// level so hot reloads take effect on every sink. The returned closer
// releases the log file.
func NewLogger(cfg ServerConfig, level *slog.LevelVar, w io.Writer) (*slog.Logger, func() error, error) {
	level.Set(cfg.LogLevel.Slog())
	opts := &slog.HandlerOptions{Level: level}
	console := slog.NewTextHandler(w, opts)

	if cfg.LogFile == "" {
		return slog.New(console), func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("config: open log file %q: %w", cfg.LogFile, err)
	}
	logger := slog.New(slogmulti.Fanout(console, slog.NewJSONHandler(f, opts)))
	return logger, f.Close, nil
}
