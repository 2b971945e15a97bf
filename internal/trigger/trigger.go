// Package trigger gates a continuous audio stream on a spoken phrase.
//
// A [Trigger] pulls chunks from an upstream [audio.Provider], groups them into
// speech segments with a voice activity detector, transcribes each completed
// segment once and forwards the segment's chunks downstream only when the
// transcription contains the configured trigger phrase. Everything else is
// discarded. The trigger itself implements [audio.Provider], so triggers can be
// chained and served like any other source.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/internal/observe"
	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// ErrRestartRequired is returned by [Trigger.Reconfigure] when the new
// configuration changes something only a rebuild can apply.
var ErrRestartRequired = errors.New("trigger: change requires restart")

// ErrClosed is returned by [Trigger.GetAudio] once the trigger is closed.
var ErrClosed = errors.New("trigger: closed")

// Geometry describes a spatial extent reported by a component. Triggers have
// none.
type Geometry struct {
	Label string    `json:"label"`
	Type  string    `json:"type"`
	Pose  []float64 `json:"pose,omitempty"`
}

// Option configures a [Trigger].
type Option func(*Trigger)

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Trigger) { t.deps.metrics = m }
}

// WithRecorder sets the decision recorder. Default: [events.Nop].
func WithRecorder(r events.Recorder) Option {
	return func(t *Trigger) { t.deps.recorder = r }
}

// WithLogger sets the logger. Default: [slog.Default] with a trigger attribute.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trigger) { t.deps.log = l }
}

// WithRecognizerName labels recognizer error metrics.
func WithRecognizerName(name string) Option {
	return func(t *Trigger) { t.deps.recognizerName = name }
}

// Trigger is the trigger-phrase filter component.
type Trigger struct {
	cfg    Config
	engine vad.Engine
	source audio.Provider
	deps   deps

	settings atomic.Pointer[Settings]

	// life is cancelled by Close and ends every open stream.
	life     context.Context
	shutdown context.CancelFunc

	mu      sync.Mutex
	closed  bool
	streams sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New builds a trigger. cfg is normalised and validated. The VAD engine is
// tried with the trigger's parameters and the source must deliver mono audio
// at cfg's sample rate, so both kinds of mismatch fail here instead of on the
// first session. source may be nil, in which case [Trigger.GetAudio] returns
// immediately.
func New(ctx context.Context, cfg Config, engine vad.Engine, rec stt.Recognizer, source audio.Provider, opts ...Option) (*Trigger, error) {
	cfg = cfg.Normalize()
	if _, err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("trigger: vad engine is required")
	}
	if rec == nil {
		return nil, errors.New("trigger: recognizer is required")
	}
	if cfg.Source != "" && source == nil {
		return nil, fmt.Errorf("trigger: source %q not resolved", cfg.Source)
	}
	if source != nil {
		if err := checkFormat(ctx, cfg, source); err != nil {
			return nil, err
		}
	}

	t := &Trigger{cfg: cfg, engine: engine, source: source}
	t.life, t.shutdown = context.WithCancel(context.Background())
	t.deps.recognizer = rec
	for _, o := range opts {
		o(t)
	}
	if t.deps.metrics == nil {
		t.deps.metrics = observe.DefaultMetrics()
	}
	if t.deps.recorder == nil {
		t.deps.recorder = events.Nop{}
	}
	if t.deps.log == nil {
		t.deps.log = slog.Default()
	}
	t.deps.log = t.deps.log.With("trigger", cfg.Name)
	if t.deps.recognizerName == "" {
		t.deps.recognizerName = "default"
	}

	probe, err := engine.NewSession(t.vadConfig())
	if err != nil {
		return nil, fmt.Errorf("trigger: create vad session: %w", err)
	}
	_ = probe.Close()

	s, err := NewSettings(cfg)
	if err != nil {
		return nil, err
	}
	t.settings.Store(s)

	t.deps.log.Info("trigger initialised",
		"phrase", cfg.TriggerPhrase,
		"source", cfg.Source,
		"model_path", cfg.ModelPath,
		"vad_aggressiveness", cfg.VADAggressiveness,
		"match", cfg.MatchMode,
	)
	return t, nil
}

// checkFormat rejects sources whose audio the segmenter would mis-frame.
func checkFormat(ctx context.Context, cfg Config, source audio.Provider) error {
	p, err := source.Properties(ctx)
	if err != nil {
		return fmt.Errorf("trigger: source %q properties: %w", cfg.Source, err)
	}
	if p.SampleRate != cfg.SampleRate || p.Channels != 1 {
		return fmt.Errorf("trigger: source %q delivers %d Hz with %d channels, want %d Hz mono",
			cfg.Source, p.SampleRate, p.Channels, cfg.SampleRate)
	}
	return nil
}

// Name returns the trigger's configured name.
func (t *Trigger) Name() string { return t.cfg.Name }

// Config returns the normalised configuration the trigger was built with.
func (t *Trigger) Config() Config { return t.cfg }

// Settings returns the current hot settings.
func (t *Trigger) Settings() *Settings { return t.settings.Load() }

func (t *Trigger) vadConfig() vad.Config {
	return vad.Config{
		SampleRate:     t.cfg.SampleRate,
		FrameSizeMs:    int(t.cfg.FrameDuration.Milliseconds()),
		Aggressiveness: t.cfg.VADAggressiveness,
	}
}

// GetAudio implements [audio.Provider]. It opens a continuous upstream stream
// and delivers only the segments that contain the trigger phrase. It returns
// nil when handler stops the stream, the upstream's result when the upstream
// ends, ctx's error on cancellation and [ErrClosed] when the trigger is
// closed underneath it.
func (t *Trigger) GetAudio(ctx context.Context, req audio.StreamRequest, handler audio.ChunkHandler) error {
	if t.source == nil {
		t.deps.log.Info("no source configured, nothing to stream")
		return nil
	}
	if req.Codec != "" && req.Codec != audio.CodecPCM16 {
		t.deps.log.Warn("segments are delivered as pcm16, ignoring requested codec", "codec", req.Codec)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.streams.Add(1)
	t.mu.Unlock()
	defer t.streams.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.life, cancel)
	defer stop()

	sess, err := t.engine.NewSession(t.vadConfig())
	if err != nil {
		return fmt.Errorf("trigger: create vad session: %w", err)
	}
	defer sess.Close()

	done := t.deps.metrics.SessionStarted(ctx, t.cfg.Name)
	defer done()

	ctrl := newController(t.cfg, t.settings.Load(), sess, t.deps)
	upstream := audio.StreamRequest{
		Codec:             audio.CodecPCM16,
		Duration:          0,
		PreviousTimestamp: 0,
		Extra:             req.Extra,
	}
	err = t.source.GetAudio(ctx, upstream, func(c audio.Chunk) bool {
		return ctrl.HandleChunk(ctx, c, handler)
	})
	if t.life.Err() != nil {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("trigger: %s: upstream: %w", t.cfg.Name, err)
	}
	return nil
}

// Properties implements [audio.Provider]. It reports the source's properties,
// or 16 kHz mono when there is no source.
func (t *Trigger) Properties(ctx context.Context) (audio.Properties, error) {
	if t.source == nil {
		return audio.DefaultProperties, nil
	}
	p, err := t.source.Properties(ctx)
	if err != nil {
		return audio.Properties{}, fmt.Errorf("trigger: %s: source properties: %w", t.cfg.Name, err)
	}
	return p, nil
}

// DoCommand is not supported.
func (t *Trigger) DoCommand(context.Context, map[string]any) (map[string]any, error) {
	return nil, ErrNotImplemented
}

// Geometries returns an empty list.
func (t *Trigger) Geometries(context.Context) ([]Geometry, error) {
	return []Geometry{}, nil
}

// Reconfigure swaps in the phrase, match mode and overflow policy of cfg.
// Sessions already streaming keep the settings they started with. Changes to
// the source, model path or VAD aggressiveness return [ErrRestartRequired]
// and leave the trigger unchanged.
func (t *Trigger) Reconfigure(cfg Config) error {
	cfg = cfg.Normalize()
	if _, err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Source != t.cfg.Source || cfg.ModelPath != t.cfg.ModelPath || cfg.VADAggressiveness != t.cfg.VADAggressiveness {
		return fmt.Errorf("%w: %s", ErrRestartRequired, t.cfg.Name)
	}
	s, err := NewSettings(cfg)
	if err != nil {
		return err
	}
	old := t.settings.Swap(s)
	t.deps.log.Info("trigger reconfigured",
		"phrase", s.Phrase, "previous_phrase", old.Phrase,
		"match", s.Mode, "overflow_policy", s.Overflow)
	return nil
}

// Close ends every open stream, waits for their sessions to finish (a
// recognition in progress included) and then releases the recognizer and,
// when it holds resources, the VAD engine. It is safe to call more than once.
func (t *Trigger) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.shutdown()
		t.streams.Wait()

		var errs []error
		if err := t.deps.recognizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("trigger: close recognizer: %w", err))
		}
		if c, ok := t.engine.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("trigger: close vad engine: %w", err))
			}
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

var _ audio.Provider = (*Trigger)(nil)
