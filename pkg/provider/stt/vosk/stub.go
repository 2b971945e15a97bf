//go:build !vosk

// Package vosk provides an offline recognizer backed by the Vosk speech
// recognition toolkit (cgo). Build with -tags vosk and make libvosk available
// at link time.
package vosk

import (
	"context"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

// Available reports that the Vosk bindings are not compiled in.
func Available() bool { return false }

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLogLevel is accepted and ignored.
func WithLogLevel(int) Option { return func(*Recognizer) {} }

// WithWords is accepted and ignored.
func WithWords(bool) Option { return func(*Recognizer) {} }

// Recognizer is a placeholder so callers compile without the vosk tag.
type Recognizer struct{}

// New returns [stt.ErrNativeUnavailable] when built without the vosk tag.
func New(string, ...Option) (*Recognizer, error) {
	return nil, stt.ErrNativeUnavailable
}

// Recognize always fails.
func (r *Recognizer) Recognize(context.Context, []byte, int) (stt.Transcript, error) {
	return stt.Transcript{}, stt.ErrNativeUnavailable
}

// Close is a no-op.
func (r *Recognizer) Close() error { return nil }

var _ stt.Recognizer = (*Recognizer)(nil)
