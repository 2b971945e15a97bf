package config_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicetrigger/internal/config"
)

const robotYAML = `
server:
  log_level: info
sources:
  - name: mic
    kind: microphone
triggers:
  - name: robot
    source: mic
    trigger_phrase: robot
`

// robotRenamedYAML changes the phrase, which is hot-reloadable.
const robotRenamedYAML = `
server:
  log_level: info
sources:
  - name: mic
    kind: microphone
triggers:
  - name: robot
    source: mic
    trigger_phrase: computer
`

// robotCommentedYAML parses to the same configuration as robotYAML.
const robotCommentedYAML = `
# the kitchen microphone
server:
  log_level: info
sources:
  - name: mic
    kind: microphone
triggers:
  - name: robot
    source: mic
    trigger_phrase: robot   # say it loud
`

const brokenYAML = `
server:
  log_level: bananas
`

type change struct {
	next *config.Config
	diff config.ConfigDiff
}

// recorder collects every ChangeFunc invocation.
type recorder struct {
	mu    sync.Mutex
	calls []change
}

func (r *recorder) apply(next *config.Config, d config.ConfigDiff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, change{next, d})
}

func (r *recorder) snapshot() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.calls...)
}

// writeConfig replaces path atomically so a poll never sees a partial file.
func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename %s: %v", tmp, err)
	}
}

// bumpMtime moves the modification time forward so coarse filesystems
// still register the edit.
func bumpMtime(t *testing.T, path string, by time.Duration) {
	t.Helper()
	at := time.Now().Add(by)
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func watch(t *testing.T, opts ...config.WatcherOption) (string, *config.Watcher, *recorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicetrigger.yaml")
	writeConfig(t, path, robotYAML)
	rec := &recorder{}
	w, err := config.NewWatcher(path, rec.apply, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return path, w, rec
}

func TestWatcher_CurrentAfterStart(t *testing.T) {
	t.Parallel()
	_, w, _ := watch(t)
	cur := w.Current()
	if cur == nil || len(cur.Triggers) != 1 || cur.Triggers[0].TriggerPhrase != "robot" {
		t.Fatalf("Current() = %+v, want the robot trigger", cur)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestWatcher_ReloadHandsOverDiff(t *testing.T) {
	t.Parallel()
	path, w, rec := watch(t)

	writeConfig(t, path, robotRenamedYAML)
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("apply called %d times, want 1", len(calls))
	}
	d := calls[0].diff
	if d.RestartRequired || len(d.TriggerChanges) != 1 {
		t.Fatalf("diff = %+v, want one hot trigger change", d)
	}
	if td := d.TriggerChanges[0]; td.Name != "robot" || !td.PhraseChanged || !td.HotReloadable() {
		t.Errorf("trigger diff = %+v", td)
	}
	if got := w.Current().Triggers[0].TriggerPhrase; got != "computer" {
		t.Errorf("Current() phrase = %q, want computer", got)
	}
	if calls[0].next != w.Current() {
		t.Error("apply got a different config than Current() reports")
	}

	if err := w.Reload(); !errors.Is(err, config.ErrNoChange) {
		t.Errorf("second Reload() = %v, want ErrNoChange", err)
	}
}

func TestWatcher_CommentOnlyEditIsAbsorbed(t *testing.T) {
	t.Parallel()
	path, w, rec := watch(t)

	writeConfig(t, path, robotCommentedYAML)
	if err := w.Reload(); !errors.Is(err, config.ErrNoChange) {
		t.Fatalf("Reload() = %v, want ErrNoChange", err)
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("apply called %d times for a comment edit", n)
	}
}

func TestWatcher_TouchOnly(t *testing.T) {
	t.Parallel()
	path, w, rec := watch(t)

	bumpMtime(t, path, time.Second)
	if err := w.Reload(); !errors.Is(err, config.ErrNoChange) {
		t.Fatalf("Reload() = %v, want ErrNoChange", err)
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("apply called %d times after a touch", n)
	}
}

func TestWatcher_RejectedEditKeepsRunningConfig(t *testing.T) {
	t.Parallel()
	path, w, rec := watch(t)
	before := w.Current()

	writeConfig(t, path, brokenYAML)
	err := w.Reload()
	if err == nil || errors.Is(err, config.ErrNoChange) {
		t.Fatalf("Reload() = %v, want a validation error", err)
	}
	if w.Current() != before {
		t.Error("Current() changed after a rejected edit")
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("apply called %d times for a rejected edit", n)
	}

	// Fixing the file afterwards is picked up.
	writeConfig(t, path, robotRenamedYAML)
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload after fix: %v", err)
	}
}

func TestWatcher_RunPicksUpEdit(t *testing.T) {
	t.Parallel()
	path, w, rec := watch(t, config.WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeConfig(t, path, robotRenamedYAML)
	bumpMtime(t, path, 2*time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not apply the edit in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

// syncBuffer is a bytes.Buffer safe for the Run goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatcher_RunReportsBrokenFileOnce(t *testing.T) {
	t.Parallel()
	var logs syncBuffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	path, w, rec := watch(t,
		config.WithInterval(10*time.Millisecond),
		config.WithWatcherLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The same broken content saved twice.
	writeConfig(t, path, brokenYAML)
	bumpMtime(t, path, 2*time.Second)
	time.Sleep(60 * time.Millisecond)
	bumpMtime(t, path, 4*time.Second)
	time.Sleep(60 * time.Millisecond)

	cancel()
	<-done

	if n := strings.Count(logs.String(), "keeping running configuration"); n != 1 {
		t.Errorf("rejection logged %d times, want 1\n%s", n, logs.String())
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("apply called %d times", n)
	}
}
