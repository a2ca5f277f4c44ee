package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrUnchanged is returned by [Watcher.Reload] when the file content equals
// the config already in effect.
var ErrUnchanged = errors.New("config: file unchanged")

// Watcher keeps a config file's latest valid content current. It polls the
// file's modification time and size; a change that also alters the content
// and passes validation replaces the current config and is handed to
// onChange. Invalid edits are logged and the previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	loadOpts []LoadOption

	// reloadMu serialises reloads so onChange sees configs in order.
	reloadMu sync.Mutex

	mu      sync.Mutex
	current *Config
	stamp   stamp

	quit     chan struct{}
	finished chan struct{}
	stop     sync.Once
}

// stamp identifies one version of the file.
type stamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLoadOptions passes opts to every load.
func WithWatchLoadOptions(opts ...LoadOption) WatcherOption {
	return func(w *Watcher) { w.loadOpts = append(w.loadOpts, opts...) }
}

// NewWatcher loads path and starts polling it. The initial load must succeed.
// onChange may be nil. Call [Watcher.Stop] to end polling.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.stamp = cfg, st

	go w.loop()
	return w, nil
}

// Current returns the config in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload reads the file now, whatever its modification time, and applies it
// when the content changed. It returns [ErrUnchanged] for identical content
// and the load or validation error for a bad file.
func (w *Watcher) Reload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, st, err := w.read()
	if err != nil {
		return err
	}
	w.mu.Lock()
	if st.sum == w.stamp.sum {
		w.stamp = st
		w.mu.Unlock()
		return ErrUnchanged
	}
	old := w.current
	w.current, w.stamp = cfg, st
	w.mu.Unlock()

	slog.Info("configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return nil
}

// Stop ends polling and waits for a running reload to finish. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stop.Do(func() { close(w.quit) })
	<-w.finished
}

func (w *Watcher) loop() {
	defer close(w.finished)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-t.C:
			info, ok := w.modified()
			if !ok {
				continue
			}
			if err := w.Reload(); err != nil && !errors.Is(err, ErrUnchanged) {
				slog.Warn("config edit rejected, keeping previous config", "path", w.path, "err", err)
				// Warn once per edit.
				w.mu.Lock()
				w.stamp.mtime, w.stamp.size = info.ModTime(), info.Size()
				w.mu.Unlock()
			}
		}
	}
}

// modified reports whether the file's metadata moved since the last read.
func (w *Watcher) modified() (os.FileInfo, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config file unreadable", "path", w.path, "err", err)
		return nil, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return info, !info.ModTime().Equal(w.stamp.mtime) || info.Size() != w.stamp.size
}

func (w *Watcher) read() (*Config, stamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), w.loadOpts...)
	if err != nil {
		return nil, stamp{}, err
	}
	return cfg, stamp{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
