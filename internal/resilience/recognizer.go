package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

// ErrAllFailed is returned when every recognizer in a [RecognizerChain]
// failed or had its circuit open.
var ErrAllFailed = errors.New("resilience: all recognizers failed")

type link struct {
	name    string
	rec     stt.Recognizer
	breaker *Breaker
}

// RecognizerChain is an [stt.Recognizer] that tries its recognizers in
// registration order. Each recognizer sits behind its own [Breaker], so a
// failing primary is skipped until its cool-down elapses.
type RecognizerChain struct {
	opts []BreakerOption
	log  *slog.Logger

	mu    sync.RWMutex
	links []link

	closeOnce sync.Once
	closeErr  error
}

var _ stt.Recognizer = (*RecognizerChain)(nil)

// NewRecognizerChain returns a chain with primary as its first recognizer.
// opts configure the breaker created for every recognizer.
func NewRecognizerChain(primaryName string, primary stt.Recognizer, opts ...BreakerOption) *RecognizerChain {
	c := &RecognizerChain{opts: opts, log: slog.Default()}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback recognizer.
func (c *RecognizerChain) Add(name string, rec stt.Recognizer) {
	opts := append([]BreakerOption{WithBreakerLogger(c.log.With("recognizer", name))}, c.opts...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link{name: name, rec: rec, breaker: NewBreaker(name, opts...)})
}

// Names returns the recognizer names in failover order.
func (c *RecognizerChain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.name
	}
	return names
}

// States returns the breaker state of each recognizer keyed by name.
func (c *RecognizerChain) States() map[string]State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]State, len(c.links))
	for _, l := range c.links {
		out[l.name] = l.breaker.State()
	}
	return out
}

// Healthy returns nil while at least one recognizer's circuit is not open.
func (c *RecognizerChain) Healthy(context.Context) error {
	for _, st := range c.States() {
		if st != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("%w: every circuit is open", ErrAllFailed)
}

// Recognize implements [stt.Recognizer]. Cancellation of ctx stops the
// failover immediately and is not counted against any recognizer.
func (c *RecognizerChain) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcript, error) {
	c.mu.RLock()
	links := c.links
	c.mu.RUnlock()

	var errs []error
	for _, l := range links {
		if err := ctx.Err(); err != nil {
			return stt.Transcript{}, err
		}
		var tr stt.Transcript
		err := l.breaker.Do(func() error {
			var err error
			tr, err = l.rec.Recognize(ctx, pcm, sampleRate)
			return err
		}, isCancellation)
		if err == nil {
			return tr, nil
		}
		if isCancellation(err) && ctx.Err() != nil {
			return stt.Transcript{}, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			c.log.Debug("skipping recognizer, circuit open", "recognizer", l.name)
		} else {
			c.log.Warn("recognizer failed, trying next", "recognizer", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return stt.Transcript{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// Close closes every recognizer once and joins their errors.
func (c *RecognizerChain) Close() error {
	c.closeOnce.Do(func() {
		c.mu.RLock()
		defer c.mu.RUnlock()
		var errs []error
		for _, l := range c.links {
			if err := l.rec.Close(); err != nil {
				errs = append(errs, fmt.Errorf("resilience: close %s: %w", l.name, err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
