// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (WebRTC VAD, a plain energy
// threshold, or a custom model) and surfaces it as a stateful, per-stream
// session. Each session keeps its own adaptive state so that multiple
// concurrent audio streams can be classified independently.
//
// ProcessFrame returns immediately with a classification, making it suitable
// for the synchronous per-chunk callback that gates speech recognition.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines.
package vad

import (
	"errors"
	"fmt"
)

// ErrNativeUnavailable is returned by engines whose native library was not
// compiled into the binary.
var ErrNativeUnavailable = errors.New("vad: native engine not compiled in")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame. WebRTC VAD accepts 8000, 16000, 32000 and
	// 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. WebRTC
	// VAD accepts 10, 20 or 30 ms. ProcessFrame returns an error if the supplied
	// frame does not match this size.
	FrameSizeMs int

	// Aggressiveness selects how eagerly non-speech is filtered out, from
	// 0 (least aggressive) to 3 (most aggressive).
	Aggressiveness int
}

// FrameBytes returns the expected byte length of one mono PCM16 frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate reports whether c holds usable values.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame size must be positive, got %d ms", c.FrameSizeMs))
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad: aggressiveness must be in [0, 3], got %d", c.Aggressiveness))
	}
	return errors.Join(errs...)
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations without
// a live engine. Reset clears detection state without closing the session.
type SessionHandle interface {
	// ProcessFrame classifies a single frame of little-endian PCM16 at the
	// SampleRate and FrameSizeMs configured when the session was created.
	// Returns an error if the frame size is wrong or the engine fails.
	ProcessFrame(frame []byte) (Result, error)

	// Reset clears all accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources. Both are fatal at initialisation time.
	NewSession(cfg Config) (SessionHandle, error)
}
