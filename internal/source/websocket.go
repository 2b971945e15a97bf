package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// opusMaxFrameMs is the longest frame an Opus packet can carry.
const opusMaxFrameMs = 120

// Websocket pulls chunks from a remote websocket endpoint. Each binary
// message carries the 16-byte header described by [audio.EncodeWire] followed
// by either PCM16 or one Opus packet. Output is always mono PCM16 at the
// configured rate.
type Websocket struct {
	url      string
	codec    string
	inRate   int
	channels int
	rate     int
	header   http.Header
	log      *slog.Logger
}

// WebsocketOption configures a [Websocket] source.
type WebsocketOption func(*Websocket)

// WithRemoteCodec sets the payload codec sent by the remote end: "pcm16"
// (default) or "opus".
func WithRemoteCodec(codec string) WebsocketOption {
	return func(w *Websocket) { w.codec = codec }
}

// WithRemoteFormat sets the sample rate and channel count of the remote
// payload. Default: the output rate, mono.
func WithRemoteFormat(rate, channels int) WebsocketOption {
	return func(w *Websocket) {
		w.inRate = rate
		w.channels = channels
	}
}

// WithOutputRate sets the rate of emitted chunks. Default: 16000.
func WithOutputRate(rate int) WebsocketOption {
	return func(w *Websocket) {
		if rate > 0 {
			w.rate = rate
		}
	}
}

// WithHeader adds HTTP headers to the websocket handshake.
func WithHeader(h http.Header) WebsocketOption {
	return func(w *Websocket) { w.header = h }
}

// WithWebsocketLogger sets the logger. Default: slog.Default().
func WithWebsocketLogger(l *slog.Logger) WebsocketOption {
	return func(w *Websocket) { w.log = l }
}

// NewWebsocket validates rawURL and the options. The connection is opened per
// GetAudio call.
func NewWebsocket(rawURL string, opts ...WebsocketOption) (*Websocket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: websocket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("source: websocket url %q: scheme must be ws or wss", rawURL)
	}
	w := &Websocket{
		url:   rawURL,
		codec: audio.CodecPCM16,
		rate:  audio.DefaultProperties.SampleRate,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.inRate == 0 {
		w.inRate = w.rate
	}
	if w.channels == 0 {
		w.channels = 1
	}
	if w.channels != 1 && w.channels != 2 {
		return nil, fmt.Errorf("source: websocket: unsupported channel count %d", w.channels)
	}
	switch w.codec {
	case audio.CodecPCM16, audio.CodecOpus:
	default:
		return nil, fmt.Errorf("source: websocket: unknown remote codec %q", w.codec)
	}
	return w, nil
}

// GetAudio implements [audio.Provider]. It returns nil when the remote end
// closes normally, when handler returns false or once req.Duration of audio
// was delivered.
func (w *Websocket) GetAudio(ctx context.Context, req audio.StreamRequest, handler audio.ChunkHandler) error {
	if err := checkCodec(req.Codec); err != nil {
		return err
	}
	decode, err := w.decoder()
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{HTTPHeader: w.header})
	if err != nil {
		return fmt.Errorf("source: websocket: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)
	w.log.Info("websocket source connected", "url", w.url, "codec", w.codec)

	limit := newBudget(req, w.rate)
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("source: websocket: read: %w", err)
		}
		if typ != websocket.MessageBinary {
			w.log.Debug("ignoring non-binary websocket message", "bytes", len(msg))
			continue
		}
		c, err := audio.DecodeWire(msg, audio.CodecPCM16)
		if err != nil {
			w.log.Warn("dropping malformed websocket message", "error", err)
			continue
		}
		pcm, err := decode(c.Data)
		if err != nil {
			w.log.Warn("dropping undecodable websocket payload", "sequence", c.Sequence, "error", err)
			continue
		}
		data, ok := limit.take(pcm)
		if !ok {
			_ = conn.Close(websocket.StatusNormalClosure, "duration reached")
			return nil
		}
		c.Data = data
		if !handler(c) {
			_ = conn.Close(websocket.StatusNormalClosure, "consumer stopped")
			return nil
		}
	}
}

// decoder returns a function turning one payload into mono PCM16 at the
// output rate. Opus decoders keep state across packets, so one is created per
// stream.
func (w *Websocket) decoder() (func([]byte) ([]byte, error), error) {
	toMono := func(pcm []byte) ([]byte, error) {
		return audio.ToMono(pcm, w.channels, w.inRate, w.rate)
	}
	if w.codec != audio.CodecOpus {
		return toMono, nil
	}
	dec, err := gopus.NewDecoder(w.inRate, w.channels)
	if err != nil {
		return nil, fmt.Errorf("source: websocket: create opus decoder: %w", err)
	}
	maxFrame := w.inRate * opusMaxFrameMs / 1000
	return func(packet []byte) ([]byte, error) {
		if len(packet) == 0 {
			return nil, errors.New("empty opus packet")
		}
		samples, err := dec.Decode(packet, maxFrame, false)
		if err != nil {
			return nil, fmt.Errorf("opus decode: %w", err)
		}
		return toMono(audio.PCMBytes(samples))
	}, nil
}

// Properties implements [audio.Provider].
func (w *Websocket) Properties(context.Context) (audio.Properties, error) {
	return audio.Properties{SampleRate: w.rate, Channels: 1}, nil
}

var _ audio.Provider = (*Websocket)(nil)
