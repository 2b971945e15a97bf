package trigger_test

import (
	"context"
	"sync"

	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/pkg/audio"
)

const frameBytes = 960

// speechFrame is a constant-amplitude frame that mock.Loud(500) treats
// as speech.
func speechFrame() []byte {
	s := make([]int16, frameBytes/2)
	for i := range s {
		s[i] = 1000
	}
	return audio.PCMBytes(s)
}

func silenceFrame() []byte { return make([]byte, frameBytes) }

func frames(f func() []byte, n int) []byte {
	out := make([]byte, 0, n*frameBytes)
	for range n {
		out = append(out, f()...)
	}
	return out
}

// chunksOf returns n single-frame chunks produced by f.
func chunksOf(f func() []byte, n int) []audio.Chunk {
	out := make([]audio.Chunk, n)
	for i := range out {
		out[i] = audio.Chunk{Data: f(), Codec: audio.CodecPCM16}
	}
	return out
}

// sequenced numbers chunks from 1 so the provider mock keeps them as given.
func sequenced(groups ...[]audio.Chunk) []audio.Chunk {
	var out []audio.Chunk
	for _, g := range groups {
		out = append(out, g...)
	}
	for i := range out {
		out[i].Sequence = uint64(i + 1)
	}
	return out
}

type decisionLog struct {
	mu        sync.Mutex
	decisions []events.Decision
}

func (l *decisionLog) Record(_ context.Context, d events.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
}

func (l *decisionLog) all() []events.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Decision(nil), l.decisions...)
}
