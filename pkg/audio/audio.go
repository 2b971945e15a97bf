// Package audio defines the pull-style audio provider contract shared by the
// upstream sources, the trigger component and every downstream consumer.
//
// The central abstraction is [Provider]: a caller opens a stream with
// [Provider.GetAudio] and receives one [Chunk] at a time through a
// [ChunkHandler]. The handler's boolean result is the only cancellation
// channel between stages. Returning false stops the stream and unwinds the
// whole call chain synchronously. Providers never deliver a chunk while a
// previous handler invocation is still running.
//
// This package lives under pkg/ because external code (third-party sources
// and consumers) is expected to implement and consume [Provider].
package audio

import (
	"context"
	"time"
)

// Well-known codec identifiers accepted by [StreamRequest.Codec].
const (
	CodecPCM16 = "pcm16"
	CodecOpus  = "opus"
)

// Chunk is one unit of mono PCM16 audio plus the transport metadata a
// downstream consumer expects to receive unmodified.
//
// Ownership passes with the value: the producer must not mutate Data after
// handing the chunk to a [ChunkHandler].
type Chunk struct {
	// Data is little-endian signed 16-bit PCM.
	Data []byte

	// Codec names the encoding the chunk was requested with (e.g., "pcm16").
	Codec string

	// Timestamp marks when the chunk was captured.
	Timestamp time.Time

	// Sequence is the position of the chunk within its stream, starting at 0.
	Sequence uint64
}

// Properties describes the audio format a [Provider] delivers.
type Properties struct {
	SampleRate int `json:"sample_rate_hz"`
	Channels   int `json:"channel_count"`
}

// DefaultProperties is the format used when no upstream provider can be asked:
// 16 kHz mono.
var DefaultProperties = Properties{SampleRate: 16000, Channels: 1}

// StreamRequest holds the parameters of a [Provider.GetAudio] call.
type StreamRequest struct {
	// Codec is the requested encoding. Empty means [CodecPCM16].
	Codec string

	// Duration bounds the stream length. Zero means unbounded.
	Duration time.Duration

	// PreviousTimestamp resumes the stream after the given capture time in
	// Unix nanoseconds. Zero starts from the current position.
	PreviousTimestamp int64

	// Extra carries provider-specific parameters. May be nil.
	Extra map[string]any
}

// ChunkHandler receives one chunk per call. It returns false to stop the
// stream.
type ChunkHandler func(Chunk) bool

// Provider is a source of pull-style audio streams.
//
// Implementations must be safe for concurrent use: several GetAudio calls may
// run at the same time, each with its own handler.
type Provider interface {
	// GetAudio streams chunks to handler until the handler returns false
	// (GetAudio returns nil), the stream ends (the provider's terminal error,
	// or nil), or ctx is cancelled (ctx.Err()). The handler is always invoked
	// synchronously from a single goroutine per call.
	GetAudio(ctx context.Context, req StreamRequest, handler ChunkHandler) error

	// Properties reports the sample rate and channel count of the stream.
	Properties(ctx context.Context) (Properties, error)
}
