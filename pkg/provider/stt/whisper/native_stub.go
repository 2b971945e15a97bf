//go:build !whisper

package whisper

import (
	"context"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

// NativeAvailable reports that the whisper.cpp bindings are not compiled in.
func NativeAvailable() bool { return false }

// NativeRecognizer is a placeholder so callers compile without the whisper
// tag.
type NativeRecognizer struct{}

// NativeOption is a functional option for configuring a NativeRecognizer.
type NativeOption func(*NativeRecognizer)

// WithNativeLanguage is accepted and ignored.
func WithNativeLanguage(string) NativeOption {
	return func(*NativeRecognizer) {}
}

// NewNative returns [stt.ErrNativeUnavailable] when built without the whisper
// tag.
func NewNative(string, ...NativeOption) (*NativeRecognizer, error) {
	return nil, stt.ErrNativeUnavailable
}

// Recognize always fails.
func (r *NativeRecognizer) Recognize(context.Context, []byte, int) (stt.Transcript, error) {
	return stt.Transcript{}, stt.ErrNativeUnavailable
}

// Close is a no-op.
func (r *NativeRecognizer) Close() error { return nil }

var _ stt.Recognizer = (*NativeRecognizer)(nil)
