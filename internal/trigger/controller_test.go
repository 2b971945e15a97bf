package trigger

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/internal/observe"
	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	vadmock "github.com/MrWong99/voicetrigger/pkg/provider/vad/mock"
)

// phaseRecorder is a recognizer that notes the controller phase it runs in.
type phaseRecorder struct {
	ctrl  *Controller
	text  string
	calls int
	phase string
}

func (r *phaseRecorder) Recognize(context.Context, []byte, int) (stt.Transcript, error) {
	r.calls++
	r.phase = r.ctrl.Phase()
	return stt.Transcript{Text: r.text}, nil
}

func (r *phaseRecorder) Close() error { return nil }

type decisions struct {
	mu  sync.Mutex
	got []events.Decision
}

func (d *decisions) Record(_ context.Context, dec events.Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, dec)
}

func pcmChunk(amplitude int16) audio.Chunk {
	s := make([]int16, 480)
	for i := range s {
		s[i] = amplitude
	}
	return audio.Chunk{Data: audio.PCMBytes(s), Codec: audio.CodecPCM16}
}

func newPhaseController(t *testing.T, text string) (*Controller, *phaseRecorder, *decisions) {
	t.Helper()
	cfg := Config{Name: "robot", TriggerPhrase: "robot"}.Normalize()
	settings, err := NewSettings(cfg)
	if err != nil {
		t.Fatalf("NewSettings: %v", err)
	}
	rec := &phaseRecorder{text: text}
	log := &decisions{}
	c := newController(cfg, settings, &vadmock.Session{Classify: vadmock.Loud(500)}, deps{
		recognizer:     rec,
		recognizerName: "phase",
		metrics:        observe.DefaultMetrics(),
		recorder:       log,
		log:            slog.New(slog.DiscardHandler),
	})
	rec.ctrl = c
	return c, rec, log
}

func TestController_PhaseGovernsBuffering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, rec, log := newPhaseController(t, "hello robot")

	var forwarded []audio.Chunk
	out := func(ch audio.Chunk) bool { forwarded = append(forwarded, ch); return true }

	c.HandleChunk(ctx, pcmChunk(0), out)
	if c.Phase() != PhaseIdle {
		t.Fatalf("after silence: phase = %q, want idle", c.Phase())
	}
	if n, _ := c.Buffered(); n != 0 {
		t.Errorf("silence buffered while idle: %d bytes", n)
	}

	c.HandleChunk(ctx, pcmChunk(1000), out)
	for range MaxSilenceFrames - 1 {
		c.HandleChunk(ctx, pcmChunk(0), out)
	}
	if c.Phase() != PhaseBuffering {
		t.Fatalf("mid-segment: phase = %q, want buffering", c.Phase())
	}
	if _, chunks := c.Buffered(); chunks != MaxSilenceFrames {
		t.Errorf("buffered %d chunks mid-segment, want %d", chunks, MaxSilenceFrames)
	}

	c.HandleChunk(ctx, pcmChunk(0), out)
	if rec.calls != 1 || rec.phase != PhaseDeciding {
		t.Errorf("recognizer ran %d times in phase %q, want once in deciding", rec.calls, rec.phase)
	}
	if c.Phase() != PhaseIdle {
		t.Errorf("after decision: phase = %q, want idle", c.Phase())
	}
	if n, _ := c.Buffered(); n != 0 {
		t.Errorf("buffer holds %d bytes after decision", n)
	}
	if len(forwarded) != MaxSilenceFrames+1 || len(log.got) != 1 {
		t.Errorf("forwarded %d chunks with %d decisions, want %d and 1", len(forwarded), len(log.got), MaxSilenceFrames+1)
	}
}

func TestController_DecideRefusedOutsideBuffering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, rec, log := newPhaseController(t, "robot")

	if !c.decide(ctx, events.ReasonSilence, func(audio.Chunk) bool { return true }) {
		t.Error("refused decision stopped the stream")
	}
	if rec.calls != 0 || len(log.got) != 0 {
		t.Errorf("idle decide ran the recognizer %d times and recorded %d decisions", rec.calls, len(log.got))
	}
	if c.Phase() != PhaseIdle {
		t.Errorf("phase = %q, want idle", c.Phase())
	}
}
