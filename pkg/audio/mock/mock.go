// Package mock provides an in-memory implementation of [audio.Provider] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every GetAudio call so that
// tests can assert on the request it was opened with and how many chunks the
// handler accepted. Exported fields control the scripted stream and the return
// values.
//
// Typical usage:
//
//	src := &mock.Provider{
//	    Chunks: []audio.Chunk{{Data: speech}, {Data: silence}},
//	}
//	err := trig.GetAudio(ctx, audio.StreamRequest{}, handler)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// GetAudioCall records a single invocation of [Provider.GetAudio].
type GetAudioCall struct {
	// Req is the StreamRequest passed to GetAudio.
	Req audio.StreamRequest

	// Delivered is the number of chunks handed to the handler.
	Delivered int

	// Stopped is true when the handler returned false.
	Stopped bool
}

// Provider is a mock implementation of [audio.Provider].
// Set the exported fields before use; inspect Calls afterwards.
type Provider struct {
	mu sync.Mutex

	// Chunks is the scripted stream delivered in order by every GetAudio call.
	// Sequence numbers are assigned from the slice index when left zero.
	Chunks []audio.Chunk

	// StreamErr is returned by GetAudio once all chunks were delivered.
	StreamErr error

	// BlockAfterChunks keeps GetAudio open after the script is exhausted until
	// ctx is cancelled, imitating a live source.
	BlockAfterChunks bool

	// PropertiesResult is returned by Properties. The zero value reports
	// [audio.DefaultProperties].
	PropertiesResult audio.Properties

	// PropertiesErr is returned by Properties.
	PropertiesErr error

	// Calls records every GetAudio invocation in order.
	Calls []GetAudioCall
}

// GetAudio implements [audio.Provider].
func (p *Provider) GetAudio(ctx context.Context, req audio.StreamRequest, handler audio.ChunkHandler) error {
	p.mu.Lock()
	chunks := append([]audio.Chunk(nil), p.Chunks...)
	streamErr := p.StreamErr
	block := p.BlockAfterChunks
	p.Calls = append(p.Calls, GetAudioCall{Req: req})
	idx := len(p.Calls) - 1
	p.mu.Unlock()

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Sequence == 0 {
			c.Sequence = uint64(i)
		}
		if c.Codec == "" {
			c.Codec = req.Codec
		}
		ok := handler(c)
		p.mu.Lock()
		p.Calls[idx].Delivered++
		if !ok {
			p.Calls[idx].Stopped = true
		}
		p.mu.Unlock()
		if !ok {
			return nil
		}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return streamErr
}

// Properties implements [audio.Provider].
func (p *Provider) Properties(context.Context) (audio.Properties, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PropertiesErr != nil {
		return audio.Properties{}, p.PropertiesErr
	}
	if p.PropertiesResult == (audio.Properties{}) {
		return audio.DefaultProperties, nil
	}
	return p.PropertiesResult, nil
}

// CallsSnapshot returns a copy of the recorded calls. Thread-safe.
func (p *Provider) CallsSnapshot() []GetAudioCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]GetAudioCall(nil), p.Calls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Recorder is a downstream [audio.ChunkHandler] that stores every chunk it
// receives. It stops the stream after StopAfter chunks when StopAfter > 0.
type Recorder struct {
	mu sync.Mutex

	// StopAfter makes Handle return false on the StopAfter-th chunk.
	StopAfter int

	// Received holds every chunk passed to Handle.
	Received []audio.Chunk
}

// Handle implements [audio.ChunkHandler].
func (r *Recorder) Handle(c audio.Chunk) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Received = append(r.Received, c)
	return r.StopAfter <= 0 || len(r.Received) < r.StopAfter
}

// Chunks returns a copy of the received chunks. Thread-safe.
func (r *Recorder) Chunks() []audio.Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.Chunk(nil), r.Received...)
}

// Ensure Provider implements audio.Provider at compile time.
var _ audio.Provider = (*Provider)(nil)
