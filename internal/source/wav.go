package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// WAV replays a PCM16 WAV file as a live stream. The file is decoded and
// converted to mono at the target rate once, at construction.
type WAV struct {
	path     string
	rate     int
	chunk    time.Duration
	loop     bool
	realtime bool
	log      *slog.Logger

	pcm []byte
}

// WAVOption configures a [WAV] source.
type WAVOption func(*WAV)

// WithLoop restarts playback at the end of the file.
func WithLoop(loop bool) WAVOption {
	return func(w *WAV) { w.loop = loop }
}

// WithChunkDuration sets the audio length of each chunk. Default: 100 ms.
func WithChunkDuration(d time.Duration) WAVOption {
	return func(w *WAV) {
		if d > 0 {
			w.chunk = d
		}
	}
}

// WithRealtime paces chunks at the rate they would arrive from a microphone.
// Default: true. Tests disable it to replay instantly.
func WithRealtime(on bool) WAVOption {
	return func(w *WAV) { w.realtime = on }
}

// WithSampleRate sets the output rate. Default: 16000.
func WithSampleRate(rate int) WAVOption {
	return func(w *WAV) {
		if rate > 0 {
			w.rate = rate
		}
	}
}

// WithWAVLogger sets the logger. Default: slog.Default().
func WithWAVLogger(l *slog.Logger) WAVOption {
	return func(w *WAV) { w.log = l }
}

// NewWAV reads and converts the file at path.
func NewWAV(path string, opts ...WAVOption) (*WAV, error) {
	w := &WAV{
		path:     path,
		rate:     audio.DefaultProperties.SampleRate,
		chunk:    DefaultChunkDuration,
		realtime: true,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: wav: %w", err)
	}
	pcm, info, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("source: wav %s: %w", path, err)
	}
	w.pcm, err = audio.ToMono(pcm, info.Channels, info.SampleRate, w.rate)
	if err != nil {
		return nil, fmt.Errorf("source: wav %s: %w", path, err)
	}
	w.log.Info("wav source loaded",
		"path", path,
		"source_rate", info.SampleRate,
		"source_channels", info.Channels,
		"duration", time.Duration(len(w.pcm)/audio.BytesPerSample)*time.Second/time.Duration(w.rate),
	)
	return w, nil
}

// GetAudio implements [audio.Provider]. It returns nil at the end of the file
// (unless looping), when handler returns false, or once req.Duration of audio
// was delivered.
func (w *WAV) GetAudio(ctx context.Context, req audio.StreamRequest, handler audio.ChunkHandler) error {
	if err := checkCodec(req.Codec); err != nil {
		return err
	}
	size := audio.FrameBytes(w.rate, w.chunk)
	if size == 0 || len(w.pcm) == 0 {
		return nil
	}

	var tick <-chan time.Time
	if w.realtime {
		t := time.NewTicker(w.chunk)
		defer t.Stop()
		tick = t.C
	}

	limit := newBudget(req, w.rate)
	start := time.Now()
	var seq uint64
	for {
		for off := 0; off < len(w.pcm); off += size {
			if tick != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tick:
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}

			data, ok := limit.take(w.pcm[off:min(off+size, len(w.pcm))])
			if !ok {
				return nil
			}
			seq++
			c := audio.Chunk{
				Data:      append([]byte(nil), data...),
				Codec:     audio.CodecPCM16,
				Timestamp: start.Add(time.Duration(seq-1) * w.chunk),
				Sequence:  seq,
			}
			if !handler(c) {
				return nil
			}
		}
		if !w.loop {
			return nil
		}
		w.log.Debug("wav source looping", "path", w.path)
	}
}

// Properties implements [audio.Provider].
func (w *WAV) Properties(context.Context) (audio.Properties, error) {
	return audio.Properties{SampleRate: w.rate, Channels: 1}, nil
}

var _ audio.Provider = (*WAV)(nil)
