package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

func TestBuffer_LenMatchesChunkSum(t *testing.T) {
	t.Parallel()

	var b Buffer
	sizes := []int{960, 1, 4800, 0, 961}
	want := 0
	for i, n := range sizes {
		b.Append(audio.Chunk{Data: make([]byte, n), Sequence: uint64(i)})
		want += n

		sum := 0
		for _, c := range b.Chunks() {
			sum += len(c.Data)
		}
		if b.Len() != sum || b.Len() != want {
			t.Fatalf("after %d appends: Len() = %d, chunk sum = %d, want %d", i+1, b.Len(), sum, want)
		}
	}
	if b.Count() != len(sizes) {
		t.Errorf("Count() = %d, want %d", b.Count(), len(sizes))
	}

	b.Reset()
	if b.Len() != 0 || b.Count() != 0 || b.Bytes() != nil || b.Chunks() != nil {
		t.Errorf("after Reset: Len=%d Count=%d", b.Len(), b.Count())
	}
}

func TestBuffer_PreservesOrderAndContent(t *testing.T) {
	t.Parallel()

	var b Buffer
	b.Append(audio.Chunk{Data: []byte{1, 2}, Sequence: 7})
	b.Append(audio.Chunk{Data: []byte{3, 4}, Sequence: 8})

	if got := b.Bytes(); string(got) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("Bytes() = %v, want [1 2 3 4]", got)
	}
	chunks := b.Chunks()
	if chunks[0].Sequence != 7 || chunks[1].Sequence != 8 {
		t.Errorf("sequences = %d, %d; want 7, 8", chunks[0].Sequence, chunks[1].Sequence)
	}
}

func TestPhaseMachine_Cycle(t *testing.T) {
	t.Parallel()

	var seen [][2]string
	p := newPhaseMachine(func(from, to string) { seen = append(seen, [2]string{from, to}) })
	ctx := context.Background()

	if p.current() != PhaseIdle {
		t.Fatalf("initial phase = %q, want %q", p.current(), PhaseIdle)
	}
	for _, ev := range []string{eventSpeech, eventDecide, eventReset} {
		if err := p.fire(ctx, ev); err != nil {
			t.Fatalf("fire(%s): %v", ev, err)
		}
	}

	want := [][2]string{
		{PhaseIdle, PhaseBuffering},
		{PhaseBuffering, PhaseDeciding},
		{PhaseDeciding, PhaseIdle},
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestPhaseMachine_InvalidEventsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name  string
		setup []string
		event string
		stays string
	}{
		{"decide while idle", nil, eventDecide, PhaseIdle},
		{"reset while idle", nil, eventReset, PhaseIdle},
		{"speech while buffering", []string{eventSpeech}, eventSpeech, PhaseBuffering},
		{"speech while deciding", []string{eventSpeech, eventDecide}, eventSpeech, PhaseDeciding},
	}
	for _, tt := range tests {
		p := newPhaseMachine(nil)
		for _, ev := range tt.setup {
			if err := p.fire(ctx, ev); err != nil {
				t.Fatalf("%s: setup %s: %v", tt.name, ev, err)
			}
		}
		var invalid fsm.InvalidEventError
		if err := p.fire(ctx, tt.event); !errors.As(err, &invalid) {
			t.Errorf("%s: err = %v, want InvalidEventError", tt.name, err)
		}
		if !p.is(tt.stays) {
			t.Errorf("%s: phase = %q, want %q", tt.name, p.current(), tt.stays)
		}
	}
}
