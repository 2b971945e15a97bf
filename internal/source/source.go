// Package source provides the upstream audio providers a trigger can listen
// to: a live microphone, a WAV file replayed in real time and a remote
// websocket stream. Every source delivers mono PCM16 chunks and implements
// [audio.Provider].
package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// Source kinds as named in the configuration file.
const (
	KindMicrophone = "microphone"
	KindWAV        = "wav"
	KindWebsocket  = "websocket"
)

// DefaultChunkDuration is the audio length of one emitted chunk.
const DefaultChunkDuration = 100 * time.Millisecond

// ErrMicrophoneUnavailable is returned when the binary was built without
// PortAudio support.
var ErrMicrophoneUnavailable = errors.New("source: microphone not available: rebuild with -tags portaudio")

// checkCodec rejects requests for anything but PCM16. Sources always emit
// PCM16 regardless of what they receive.
func checkCodec(codec string) error {
	if codec != "" && codec != audio.CodecPCM16 {
		return fmt.Errorf("source: codec %q not supported, only %q", codec, audio.CodecPCM16)
	}
	return nil
}

// budget caps the bytes a stream may deliver when the request has a finite
// duration. A zero duration means unbounded.
type budget struct {
	remaining int
	bounded   bool
}

func newBudget(req audio.StreamRequest, sampleRate int) budget {
	if req.Duration <= 0 {
		return budget{}
	}
	return budget{remaining: audio.FrameBytes(sampleRate, req.Duration), bounded: true}
}

// take trims data to the remaining budget and reports whether anything is
// left to deliver.
func (b *budget) take(data []byte) ([]byte, bool) {
	if !b.bounded {
		return data, true
	}
	if b.remaining <= 0 {
		return nil, false
	}
	if len(data) > b.remaining {
		data = data[:b.remaining]
	}
	b.remaining -= len(data)
	return data, true
}
