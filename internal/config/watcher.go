package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrNoChange is returned by [Watcher.Reload] when the file parses to a
// configuration that behaves exactly like the running one.
var ErrNoChange = errors.New("config: no effective change")

// ChangeFunc receives a validated configuration together with the diff
// against the one it replaces.
type ChangeFunc func(next *Config, d ConfigDiff)

// revision is one validated version of the watched file.
type revision struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher follows a config file on disk. Edits that validate and change
// behaviour are handed to a [ChangeFunc]; comment-only edits are absorbed
// silently and broken edits leave the running configuration in place.
type Watcher struct {
	path     string
	interval time.Duration
	apply    ChangeFunc
	log      *slog.Logger

	mu   sync.Mutex
	rev  revision
	seen time.Time         // mtime of the last file examined, valid or not
	bad  [sha256.Size]byte // content last rejected, so it is reported once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Default: slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher reads and validates path. Polling starts with [Watcher.Run];
// apply may be nil.
func NewWatcher(path string, apply ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		apply:    apply,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	rev, err := readRevision(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.rev = rev
	w.seen = rev.mtime
	return w, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rev.cfg
}

// Run polls the file's modification time until ctx is done and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.touched() {
				continue
			}
			if err := w.Reload(); err != nil && !errors.Is(err, ErrNoChange) {
				w.reject(err)
			}
		}
	}
}

// Reload reads the file regardless of its modification time. It returns
// [ErrNoChange] when nothing effective changed, a validation error when the
// file is rejected, and nil once the new configuration has been applied.
func (w *Watcher) Reload() error {
	next, err := readRevision(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.seen = next.mtime
	if next.sum == w.rev.sum {
		w.mu.Unlock()
		return ErrNoChange
	}
	prev := w.rev.cfg
	w.rev = next
	w.bad = [sha256.Size]byte{}
	w.mu.Unlock()

	d := Diff(prev, next.cfg)
	if d.Empty() {
		w.log.Debug("config: edit has no effect", "path", w.path)
		return ErrNoChange
	}
	w.log.Info("config: reloaded", "path", w.path,
		"trigger_changes", len(d.TriggerChanges),
		"log_level_changed", d.LogLevelChanged,
		"restart_required", d.RestartRequired)

	// Unlocked so apply may call Current.
	if w.apply != nil {
		w.apply(next.cfg, d)
	}
	return nil
}

// touched reports whether the file's mtime moved since it was last read.
func (w *Watcher) touched() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.reject(err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.seen)
}

// reject logs a failed reload unless the same content was already reported.
func (w *Watcher) reject(err error) {
	sum := sha256.Sum256([]byte(err.Error()))
	if data, rerr := os.ReadFile(w.path); rerr == nil {
		sum = sha256.Sum256(data)
	}
	w.mu.Lock()
	if info, serr := os.Stat(w.path); serr == nil {
		w.seen = info.ModTime()
	}
	repeat := sum == w.bad
	w.bad = sum
	w.mu.Unlock()
	if !repeat {
		w.log.Warn("config: keeping running configuration", "path", w.path, "err", err)
	}
}

func readRevision(path string) (revision, error) {
	info, err := os.Stat(path)
	if err != nil {
		return revision{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return revision{}, err
	}
	return revision{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
