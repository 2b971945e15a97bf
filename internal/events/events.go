// Package events records the outcome of every segment decision so that
// operators can audit which utterances opened the gate and why.
//
// A [Recorder] receives one [Decision] per completed segment. Recording must
// never stall the audio path, so [Async] decouples a slow sink (a database)
// from the streaming callback with a bounded queue that drops on overflow.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Reason names why a segment was closed.
type Reason string

const (
	// ReasonSilence marks a segment closed by the trailing-silence boundary.
	ReasonSilence Reason = "silence"

	// ReasonOverflow marks a segment force-closed by the size cap.
	ReasonOverflow Reason = "overflow"
)

// Outcome names what happened to a segment's audio.
type Outcome string

const (
	OutcomeForwarded Outcome = "forwarded"
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeCancelled means the consumer stopped the stream mid-forward.
	OutcomeCancelled Outcome = "cancelled"
)

// Decision describes one decided segment.
type Decision struct {
	Trigger     string
	Reason      Reason
	Outcome     Outcome
	Text        string
	Matched     bool
	RecognizeOK bool
	Chunks      int
	Bytes       int
	Forwarded   int
	Latency     time.Duration
	At          time.Time
}

// Record is the JSON form of a [Decision], shared by the file log and the
// HTTP history endpoint.
type Record struct {
	DecidedAt   time.Time `json:"decided_at"`
	Trigger     string    `json:"trigger"`
	Reason      string    `json:"reason"`
	Outcome     string    `json:"outcome"`
	Transcript  string    `json:"transcript,omitempty"`
	Matched     bool      `json:"matched"`
	RecognizeOK bool      `json:"recognize_ok"`
	Chunks      int       `json:"chunks"`
	Bytes       int       `json:"bytes"`
	Forwarded   int       `json:"forwarded"`
	LatencyMs   int64     `json:"latency_ms"`
}

// Record converts d to its JSON form.
func (d Decision) Record() Record {
	return Record{
		DecidedAt:   d.At.UTC(),
		Trigger:     d.Trigger,
		Reason:      string(d.Reason),
		Outcome:     string(d.Outcome),
		Transcript:  d.Text,
		Matched:     d.Matched,
		RecognizeOK: d.RecognizeOK,
		Chunks:      d.Chunks,
		Bytes:       d.Bytes,
		Forwarded:   d.Forwarded,
		LatencyMs:   d.Latency.Milliseconds(),
	}
}

// Recorder receives segment decisions. Implementations must be safe for
// concurrent use and must not block for long.
type Recorder interface {
	Record(ctx context.Context, d Decision)
}

// Nop discards every decision.
type Nop struct{}

// Record implements [Recorder].
func (Nop) Record(context.Context, Decision) {}

// Sink is a blocking destination such as a database table.
type Sink interface {
	Write(ctx context.Context, d Decision) error
}

// Tee writes every decision to each sink in turn. A failing sink does not
// stop the others.
type Tee []Sink

// Write implements [Sink].
func (t Tee) Write(ctx context.Context, d Decision) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async forwards decisions to a [Sink] from a background goroutine.
type Async struct {
	sink    Sink
	queue   chan Decision
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// AsyncOption configures an [Async] recorder.
type AsyncOption func(*Async)

// WithQueueSize sets the number of decisions buffered before new ones are
// dropped. Default: 256.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) { a.queue = make(chan Decision, n) }
}

// WithWriteTimeout bounds every sink write. Default: 5 s.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.timeout = d }
}

// NewAsync starts the background writer. Call Close to drain and stop it.
func NewAsync(sink Sink, opts ...AsyncOption) *Async {
	a := &Async{
		sink:    sink,
		queue:   make(chan Decision, 256),
		timeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Record enqueues d. When the queue is full, or the recorder is closed, the
// decision is dropped and a warning is logged.
func (a *Async) Record(_ context.Context, d Decision) {
	a.mu.Lock()
	if !a.closed {
		select {
		case a.queue <- d:
			a.mu.Unlock()
			return
		default:
		}
	}
	a.dropped++
	n, closed := a.dropped, a.closed
	a.mu.Unlock()
	if closed {
		slog.Warn("events: recorder closed, dropping decision", "trigger", d.Trigger, "dropped_total", n)
		return
	}
	slog.Warn("events: queue full, dropping decision", "trigger", d.Trigger, "dropped_total", n)
}

// Dropped returns how many decisions were discarded because the queue was
// full or the recorder was closed.
func (a *Async) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting decisions, drains the queue and waits for the writer.
// Decisions recorded afterwards are dropped.
func (a *Async) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		a.wg.Wait()
	})
	return nil
}

func (a *Async) run() {
	defer a.wg.Done()
	for d := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Write(ctx, d); err != nil {
			slog.Error("events: write decision", "trigger", d.Trigger, "error", err)
		}
		cancel()
	}
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Async)(nil)
)
