package trigger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/internal/observe"
	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// Settings is the hot-swappable part of a trigger's configuration. A value is
// never mutated after construction; sessions read one snapshot for their
// whole lifetime.
type Settings struct {
	Phrase   string
	Mode     MatchMode
	Overflow OverflowPolicy
	Matcher  Matcher
}

// NewSettings builds the settings for a normalised config.
func NewSettings(cfg Config) (*Settings, error) {
	m, err := NewMatcher(cfg.MatchMode, cfg.TriggerPhrase)
	if err != nil {
		return nil, err
	}
	return &Settings{
		Phrase:   cfg.TriggerPhrase,
		Mode:     cfg.MatchMode,
		Overflow: cfg.OverflowPolicy,
		Matcher:  m,
	}, nil
}

// deps are the collaborators shared by every session of a trigger.
type deps struct {
	recognizer     stt.Recognizer
	recognizerName string
	metrics        *observe.Metrics
	recorder       events.Recorder
	log            *slog.Logger
}

// Controller runs segmentation, buffering, recognition and forwarding for one
// streaming session. Its phase decides what happens to a chunk: audio is
// buffered only while buffering, and a segment is recognised only on the
// buffering → deciding transition. It is driven synchronously by the upstream callback and
// is not safe for concurrent use.
type Controller struct {
	cfg      Config
	settings *Settings
	deps     deps

	seg   *Segmenter
	buf   Buffer
	phase *phaseMachine
}

func newController(cfg Config, settings *Settings, det vad.SessionHandle, d deps) *Controller {
	c := &Controller{
		cfg:      cfg,
		settings: settings,
		deps:     d,
		seg:      NewSegmenter(det, cfg.FrameBytes(), cfg.MaxSilenceFrames, d.log),
	}
	c.phase = newPhaseMachine(func(from, to string) {
		d.log.Debug("phase changed", "from", from, "to", to)
	})
	return c
}

// Phase returns the current session phase.
func (c *Controller) Phase() string { return c.phase.current() }

// Buffered returns the number of buffered bytes and chunks.
func (c *Controller) Buffered() (bytes, chunks int) { return c.buf.Len(), c.buf.Count() }

// HandleChunk processes one upstream chunk and returns false when the
// downstream consumer asked to stop.
func (c *Controller) HandleChunk(ctx context.Context, chunk audio.Chunk, downstream audio.ChunkHandler) bool {
	if len(chunk.Data) == 0 {
		return true
	}
	res := c.seg.Scan(chunk.Data)
	if res.Started && !c.transition(ctx, eventSpeech) {
		c.seg.Reset()
		return true
	}
	if !c.phase.is(PhaseBuffering) {
		return true
	}
	c.buf.Append(chunk)
	if res.Complete {
		return c.decide(ctx, events.ReasonSilence, downstream)
	}
	if c.overflowing() {
		c.deps.log.Warn("segment exceeds buffer cap, forcing recognition",
			"bytes", c.buf.Len(), "cap", c.cfg.MaxBufferBytes, "policy", c.settings.Overflow)
		return c.decide(ctx, events.ReasonOverflow, downstream)
	}
	return true
}

func (c *Controller) overflowing() bool {
	n := c.buf.Len()
	if n <= c.cfg.MaxBufferBytes {
		return false
	}
	if c.settings.Overflow == OverflowWhileSpeaking {
		return c.seg.LastSpeech() || n > 2*c.cfg.MaxBufferBytes
	}
	return true
}

// decide recognises the buffered segment, forwards it on a match and always
// clears the segment state afterwards.
func (c *Controller) decide(ctx context.Context, reason events.Reason, downstream audio.ChunkHandler) bool {
	defer c.reset(ctx)
	if !c.transition(ctx, eventDecide) {
		return true
	}

	text, ok, latency := c.recognize(ctx, reason)
	matched := ok && c.settings.Matcher.Match(text)

	d := events.Decision{
		Trigger:     c.cfg.Name,
		Reason:      reason,
		Outcome:     events.OutcomeDiscarded,
		Text:        text,
		Matched:     matched,
		RecognizeOK: ok,
		Chunks:      c.buf.Count(),
		Bytes:       c.buf.Len(),
		Latency:     latency,
		At:          time.Now(),
	}

	cont := true
	if matched {
		c.deps.log.Info("trigger phrase detected", "phrase", c.settings.Phrase, "text", text, "chunks", d.Chunks)
		d.Outcome = events.OutcomeForwarded
		for _, ch := range c.buf.Chunks() {
			d.Forwarded++
			if !downstream(ch) {
				d.Outcome = events.OutcomeCancelled
				cont = false
				break
			}
		}
		c.deps.metrics.RecordForwarded(ctx, c.cfg.Name, d.Forwarded)
	} else {
		c.deps.log.Debug("no trigger phrase in segment", "text", text)
	}

	c.deps.metrics.RecordSegment(ctx, c.cfg.Name, string(reason), string(d.Outcome), d.Bytes, matched)
	c.deps.recorder.Record(ctx, d)
	if cont && matched {
		c.deps.log.Info("ready for next trigger")
	}
	return cont
}

// recognize runs the recognizer over the whole buffer. Any failure means
// "nothing recognised".
func (c *Controller) recognize(ctx context.Context, reason events.Reason) (text string, ok bool, latency time.Duration) {
	if c.deps.recognizer == nil {
		return "", false, 0
	}
	ctx, span := observe.StartRecognition(ctx, c.cfg.Name, string(reason), c.buf.Len())
	start := time.Now()
	tr, err := c.deps.recognizer.Recognize(ctx, c.buf.Bytes(), c.cfg.SampleRate)
	latency = time.Since(start)
	observe.EndSpan(span, err)
	c.deps.metrics.RecordRecognition(ctx, c.cfg.Name, latency)

	if err != nil {
		observe.With(ctx, c.deps.log).Error("recognition failed, treating segment as no trigger",
			"trigger", c.cfg.Name, "recognizer", c.deps.recognizerName, "error", err)
		c.deps.metrics.RecordRecognizerError(ctx, c.cfg.Name, c.deps.recognizerName)
		return "", false, latency
	}
	return strings.ToLower(tr.Text), true, latency
}

func (c *Controller) reset(ctx context.Context) {
	c.buf.Reset()
	c.seg.Reset()
	if !c.phase.is(PhaseIdle) {
		c.transition(ctx, eventReset)
	}
}

// transition fires event and logs when the current phase does not allow it.
func (c *Controller) transition(ctx context.Context, event string) bool {
	from := c.phase.current()
	if err := c.phase.fire(ctx, event); err != nil {
		c.deps.log.Error("invalid phase transition", "event", event, "phase", from, "error", err)
		return false
	}
	return true
}
