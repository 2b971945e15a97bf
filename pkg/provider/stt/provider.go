// Package stt defines the Recognizer interface for single-shot Speech-to-Text
// backends.
//
// A Recognizer wraps a batch transcription engine (Vosk, whisper.cpp, or a
// cloud transcription API) and turns one complete PCM16 buffer into one
// transcript. There are no partials: the caller hands over a finished speech
// segment and blocks until the text for the whole segment is available.
//
// Implementations must be safe for concurrent use. Engines whose native
// decoder state is not thread-safe create one decoder per Recognize call from
// a shared, read-only model.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrNativeUnavailable is returned by recognizers whose native library was not
// compiled into the binary.
var ErrNativeUnavailable = errors.New("stt: native recognizer not compiled in")

// Transcript is the result of recognising one speech segment.
type Transcript struct {
	// Text is the transcribed speech content as returned by the engine.
	// Callers normalise case themselves.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// engine does not report confidence.
	Confidence float64

	// Duration is the length of the recognised audio.
	Duration time.Duration
}

// Recognizer is the abstraction over any single-shot STT backend.
type Recognizer interface {
	// Recognize transcribes pcm, a complete buffer of mono little-endian PCM16
	// sampled at sampleRate. An empty buffer yields an empty transcript.
	//
	// Returns an error if the engine fails or ctx is cancelled. Callers treat
	// any error as "nothing recognised".
	Recognize(ctx context.Context, pcm []byte, sampleRate int) (Transcript, error)

	// Close releases the engine's model. Calling Close more than once is safe.
	Close() error
}

// AudioDuration returns the playback length of a mono PCM16 buffer.
func AudioDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
}
