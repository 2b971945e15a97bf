// Package app wires sources, recognizers, VAD engines and triggers into a
// running voicetrigger process.
//
// New builds every component from the configuration in dependency order, so
// a trigger can read from a source or from another trigger. Run serves the
// HTTP surface until its context ends, ApplyConfig hands hot-reloadable
// changes to the running triggers, and Shutdown releases everything in
// reverse acquisition order.
//
// Tests inject fakes through [WithRegistry], [WithRecorder] and friends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/voicetrigger/internal/config"
	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/internal/events/jsonl"
	"github.com/MrWong99/voicetrigger/internal/events/postgres"
	"github.com/MrWong99/voicetrigger/internal/health"
	"github.com/MrWong99/voicetrigger/internal/observe"
	"github.com/MrWong99/voicetrigger/internal/resilience"
	"github.com/MrWong99/voicetrigger/internal/server"
	"github.com/MrWong99/voicetrigger/internal/trigger"
	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// App owns the lifetime of every component built from a [config.Config].
type App struct {
	reg          *config.Registry
	log          *slog.Logger
	level        *slog.LevelVar
	metrics      *observe.Metrics
	recorder     events.Recorder
	breakerOpts  []resilience.BreakerOption
	health       *health.Handler
	server       *server.Server
	serverOpts   []server.Option
	history      server.History
	registryDone bool

	mu       sync.RWMutex
	cfg      *config.Config
	sources  map[string]audio.Provider
	triggers map[string]*trigger.Trigger
	order    []string

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithRegistry replaces the built-in provider registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) {
		a.reg = r
		a.registryDone = true
	}
}

// WithRecorder injects a decision recorder instead of opening the
// configured sinks.
func WithRecorder(r events.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithMetrics sets the metric instruments shared by all triggers.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets ApplyConfig adjust the log level of the handler that
// owns lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithBreakerOptions tunes the circuit breakers in front of recognizers.
func WithBreakerOptions(opts ...resilience.BreakerOption) Option {
	return func(a *App) { a.breakerOpts = opts }
}

// WithServerOptions passes options to the HTTP server.
func WithServerOptions(opts ...server.Option) Option {
	return func(a *App) { a.serverOpts = opts }
}

// New builds every source and trigger in cfg. On failure everything acquired
// so far is released before the error is returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		sources:  make(map[string]audio.Provider),
		triggers: make(map[string]*trigger.Trigger),
		health:   health.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.reg == nil {
		a.reg = config.NewRegistry()
	}
	if !a.registryDone {
		RegisterBuiltins(a.reg, a.log)
	}

	order, err := config.TriggerOrder(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	if err := a.initEvents(ctx); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init events: %w", err)
	}
	if err := a.initSources(); err != nil {
		a.release()
		return nil, fmt.Errorf("app: init sources: %w", err)
	}
	for _, tc := range order {
		if err := a.buildTrigger(ctx, tc); err != nil {
			a.release()
			return nil, fmt.Errorf("app: build trigger %q: %w", tc.Name, err)
		}
	}
	a.health.Add(health.Check{Name: "triggers", Probe: a.triggersReady})

	if cfg.Server.ListenAddr != "" {
		opts := []server.Option{server.WithMetrics(a.metrics), server.WithLogger(a.log)}
		if a.history != nil {
			opts = append(opts, server.WithHistory(a.history))
		}
		opts = append(opts, a.serverOpts...)
		a.server = server.New(cfg.Server.ListenAddr, a, a.health, opts...)
	}
	a.log.Info("voicetrigger ready", "sources", len(a.sources), "triggers", len(a.order))
	return a, nil
}

func (a *App) initEvents(ctx context.Context) error {
	if a.recorder != nil {
		return nil
	}
	ec := a.cfg.Events
	var sinks events.Tee
	if ec.PostgresDSN != "" {
		sink, err := postgres.New(ctx, ec.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { sink.Close(); return nil })
		a.health.Add(health.Check{Name: "events", Probe: sink.Ping})
		a.history = sink
		sinks = append(sinks, sink)
	}
	if ec.FilePath != "" {
		sink, err := jsonl.Open(ec.FilePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sink.Close)
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		a.recorder = events.Nop{}
		return nil
	}

	var opts []events.AsyncOption
	if q := ec.QueueSize; q > 0 {
		opts = append(opts, events.WithQueueSize(q))
	}
	var sink events.Sink = sinks
	if len(sinks) == 1 {
		sink = sinks[0]
	}
	async := events.NewAsync(sink, opts...)
	a.closers = append(a.closers, async.Close)
	a.recorder = async
	return nil
}

func (a *App) initSources() error {
	for _, sc := range a.cfg.Sources {
		p, err := a.reg.CreateSource(sc)
		if err != nil {
			return fmt.Errorf("source %q: %w", sc.Name, err)
		}
		a.sources[sc.Name] = p
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		a.log.Info("source ready", "source", sc.Name, "kind", sc.Kind)
	}
	return nil
}

// upstream resolves a source or an already built trigger.
func (a *App) upstream(name string) (audio.Provider, error) {
	if name == "" {
		return nil, nil
	}
	if p, ok := a.sources[name]; ok {
		return p, nil
	}
	if t, ok := a.triggers[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("upstream %q not found", name)
}

func (a *App) buildTrigger(ctx context.Context, tc config.TriggerConfig) (err error) {
	up, err := a.upstream(tc.Source)
	if err != nil {
		return err
	}

	entries := tc.RecognizerChain()
	primary, err := a.reg.CreateRecognizer(entries[0])
	if err != nil {
		return fmt.Errorf("recognizer %q: %w", entries[0].Name, err)
	}
	chain := resilience.NewRecognizerChain(entries[0].Name, primary, a.breakerOpts...)
	defer func() {
		if err != nil {
			if cerr := chain.Close(); cerr != nil {
				a.log.Warn("close recognizers after failed build", "trigger", tc.Name, "err", cerr)
			}
		}
	}()
	for _, e := range entries[1:] {
		rec, err := a.reg.CreateRecognizer(e)
		if err != nil {
			return fmt.Errorf("fallback recognizer %q: %w", e.Name, err)
		}
		chain.Add(e.Name, rec)
	}

	vadName := tc.VAD
	if vadName == "" {
		vadName = DefaultVAD()
	}
	engine, err := a.reg.CreateVAD(vadName, tc)
	if err != nil {
		return fmt.Errorf("vad %q: %w", vadName, err)
	}

	t, err := trigger.New(ctx, tc.Trigger(), engine, chain, up,
		trigger.WithMetrics(a.metrics),
		trigger.WithRecorder(a.recorder),
		trigger.WithLogger(a.log),
		trigger.WithRecognizerName(entries[0].Name),
	)
	if err != nil {
		if c, ok := engine.(io.Closer); ok {
			_ = c.Close()
		}
		return err
	}

	a.mu.Lock()
	a.triggers[tc.Name] = t
	a.order = append(a.order, tc.Name)
	a.mu.Unlock()
	a.closers = append(a.closers, t.Close)
	a.health.Add(health.Check{Name: "recognizers/" + tc.Name, Probe: chain.Healthy})
	return nil
}

func (a *App) triggersReady(context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.triggers) == 0 {
		return errors.New("no triggers configured")
	}
	return nil
}

// Trigger returns the named trigger.
func (a *App) Trigger(name string) (*trigger.Trigger, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.triggers[name]
	return t, ok
}

// Triggers lists the triggers in build order with their live settings.
func (a *App) Triggers() []server.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]server.Entry, 0, len(a.order))
	for _, name := range a.order {
		t := a.triggers[name]
		s := t.Settings()
		out = append(out, server.Entry{
			Name:     name,
			Source:   t.Config().Source,
			Phrase:   s.Phrase,
			Match:    string(s.Mode),
			Overflow: string(s.Overflow),
		})
	}
	return out
}

// Provider implements [server.Catalog].
func (a *App) Provider(name string) (audio.Provider, bool) {
	t, ok := a.Trigger(name)
	if !ok {
		return nil, false
	}
	return t, true
}

var _ server.Catalog = (*App)(nil)

// Health returns the readiness handler so callers can add checks.
func (a *App) Health() *health.Handler { return a.health }

// Run serves the HTTP surface until ctx is cancelled. Without a listen
// address it simply waits.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		<-ctx.Done()
		return nil
	}
	return a.server.Run(ctx)
}

// Pipe streams the named trigger's forwarded audio to w as raw PCM16 until
// ctx is cancelled or the trigger's upstream ends.
func (a *App) Pipe(ctx context.Context, name string, w io.Writer) error {
	t, ok := a.Trigger(name)
	if !ok {
		return fmt.Errorf("app: unknown trigger %q", name)
	}
	var writeErr error
	err := t.GetAudio(ctx, audio.StreamRequest{Codec: audio.CodecPCM16}, func(c audio.Chunk) bool {
		if _, writeErr = w.Write(c.Data); writeErr != nil {
			return false
		}
		return true
	})
	if writeErr != nil {
		return fmt.Errorf("app: pipe %q: %w", name, writeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, trigger.ErrClosed) {
		return fmt.Errorf("app: pipe %q: %w", name, err)
	}
	return nil
}

// ApplyConfig hands a reloaded configuration to the running components. Log
// level and trigger phrase, match mode and overflow policy take effect
// immediately; every other change is logged and waits for a restart.
func (a *App) ApplyConfig(next *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = next
	a.mu.Unlock()

	d := config.Diff(prev, next)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	for _, td := range d.TriggerChanges {
		if !td.HotReloadable() {
			a.log.Warn("trigger change needs a restart", "trigger", td.Name,
				"added", td.Added, "removed", td.Removed)
			continue
		}
		t, ok := a.Trigger(td.Name)
		if !ok {
			continue
		}
		i := slices.IndexFunc(next.Triggers, func(tc config.TriggerConfig) bool { return tc.Name == td.Name })
		if err := t.Reconfigure(next.Triggers[i].Trigger()); err != nil {
			a.log.Warn("reconfigure trigger", "trigger", td.Name, "err", err)
		}
	}
	if d.RestartRequired {
		a.log.Warn("configuration changes need a restart to take effect")
	}
}

// release runs the closers acquired so far, newest first.
func (a *App) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("release failed", "err", err)
		}
	}
	a.closers = nil
}

// Shutdown releases every component in reverse acquisition order. If ctx
// expires first the remaining closers are skipped and ctx.Err() is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
