//go:build portaudio

package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// MicrophoneAvailable reports whether PortAudio support is compiled in.
func MicrophoneAvailable() bool { return true }

// Microphone captures the default input device through PortAudio.
type Microphone struct {
	rate  int
	chunk time.Duration
	log   *slog.Logger
}

// NewMicrophone returns a microphone source capturing mono PCM16 at rate Hz
// in chunks of the given duration. Zero values select 16 kHz and 100 ms.
func NewMicrophone(rate int, chunk time.Duration, log *slog.Logger) (*Microphone, error) {
	if rate <= 0 {
		rate = audio.DefaultProperties.SampleRate
	}
	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	if log == nil {
		log = slog.Default()
	}
	return &Microphone{rate: rate, chunk: chunk, log: log}, nil
}

// GetAudio implements [audio.Provider]. The device is opened per call and
// released when the stream ends. Cancellation is observed between reads.
func (m *Microphone) GetAudio(ctx context.Context, req audio.StreamRequest, handler audio.ChunkHandler) error {
	if err := checkCodec(req.Codec); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("source: microphone: initialise portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]int16, audio.FrameBytes(m.rate, m.chunk)/audio.BytesPerSample)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.rate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("source: microphone: open stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("source: microphone: start stream: %w", err)
	}
	defer stream.Stop()
	m.log.Info("microphone started", "sample_rate", m.rate, "chunk", m.chunk)

	limit := newBudget(req, m.rate)
	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(); err != nil {
			return fmt.Errorf("source: microphone: read: %w", err)
		}
		data, ok := limit.take(audio.PCMBytes(buf))
		if !ok {
			return nil
		}
		seq++
		if !handler(audio.Chunk{Data: data, Codec: audio.CodecPCM16, Timestamp: time.Now(), Sequence: seq}) {
			return nil
		}
	}
}

// Properties implements [audio.Provider].
func (m *Microphone) Properties(context.Context) (audio.Properties, error) {
	return audio.Properties{SampleRate: m.rate, Channels: 1}, nil
}

var _ audio.Provider = (*Microphone)(nil)
