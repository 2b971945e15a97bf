// Package jsonl appends segment decisions to a local file as JSON lines.
// It suits single-host deployments without a database; use
// events/postgres when decisions need to be queried.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/MrWong99/voicetrigger/internal/events"
)

var _ events.Sink = (*FileSink)(nil)

// FileSink appends one line per decision. It is safe for concurrent use.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// Open opens (or creates) path for appending.
func Open(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonl events: open %q: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

// Write implements [events.Sink].
func (s *FileSink) Write(_ context.Context, d events.Decision) error {
	data, err := json.Marshal(d.Record())
	if err != nil {
		return fmt.Errorf("jsonl events: marshal: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("jsonl events: sink closed")
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("jsonl events: write: %w", err)
	}
	return nil
}

// Close closes the file. Later writes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
