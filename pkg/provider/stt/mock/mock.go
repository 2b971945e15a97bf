// Package mock provides a test double for the stt.Recognizer interface.
//
// Set Result/Err for a fixed answer or Texts for a per-call script, then
// inspect Calls to see which buffers were submitted.
//
// Example:
//
//	rec := &mock.Recognizer{Result: stt.Transcript{Text: "HELLO ROBOT"}}
//	tr, _ := rec.Recognize(ctx, pcm, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// PCM is a copy of the buffer passed to Recognize.
	PCM []byte

	// SampleRate is the rate passed to Recognize.
	SampleRate int
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Texts, if non-empty, supplies the text of successive calls. Once
	// exhausted the last entry repeats.
	Texts []string

	// Result is returned when Texts is empty.
	Result stt.Transcript

	// Err, if non-nil, is returned by every Recognize call.
	Err error

	// CloseErr is returned by Close.
	CloseErr error

	// Calls records every call to Recognize in order.
	Calls []RecognizeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Recognize records the call and returns the scripted transcript.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Calls = append(r.Calls, RecognizeCall{PCM: cp, SampleRate: sampleRate})
	if r.Err != nil {
		return stt.Transcript{}, r.Err
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if len(r.Texts) > 0 {
		i := min(len(r.Calls), len(r.Texts)) - 1
		return stt.Transcript{Text: r.Texts[i], Duration: stt.AudioDuration(pcm, sampleRate)}, nil
	}
	return r.Result, nil
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return r.CloseErr
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
	r.CloseCallCount = 0
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
