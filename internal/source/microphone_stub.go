//go:build !portaudio

package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// MicrophoneAvailable reports whether PortAudio support is compiled in.
func MicrophoneAvailable() bool { return false }

// Microphone stub when portaudio is not available.
type Microphone struct{}

// NewMicrophone returns [ErrMicrophoneUnavailable].
func NewMicrophone(int, time.Duration, *slog.Logger) (*Microphone, error) {
	return nil, ErrMicrophoneUnavailable
}

// GetAudio returns [ErrMicrophoneUnavailable].
func (m *Microphone) GetAudio(context.Context, audio.StreamRequest, audio.ChunkHandler) error {
	return ErrMicrophoneUnavailable
}

// Properties returns [ErrMicrophoneUnavailable].
func (m *Microphone) Properties(context.Context) (audio.Properties, error) {
	return audio.Properties{}, ErrMicrophoneUnavailable
}

var _ audio.Provider = (*Microphone)(nil)
