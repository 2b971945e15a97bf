// Package server exposes the triggers over HTTP.
//
// Downstream consumers pull a trigger's forwarded audio over a websocket at
// GET /v1/triggers/{name}/audio; each binary message carries one chunk in
// the [audio.EncodeWire] framing. The same mux serves the health probes, the
// Prometheus scrape endpoint, a small JSON listing of the triggers and, when
// a decision log is queryable, each trigger's recent decisions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/internal/health"
	"github.com/MrWong99/voicetrigger/internal/observe"
	"github.com/MrWong99/voicetrigger/internal/trigger"
	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// DefaultWriteTimeout bounds the delivery of one chunk to a websocket client.
const DefaultWriteTimeout = 5 * time.Second

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Entry describes one trigger in the listing.
type Entry struct {
	Name     string `json:"name"`
	Source   string `json:"source,omitempty"`
	Phrase   string `json:"trigger_phrase"`
	Match    string `json:"match"`
	Overflow string `json:"overflow_policy"`
}

// Catalog resolves the triggers the server exposes.
type Catalog interface {
	// Triggers lists every trigger in a stable order.
	Triggers() []Entry

	// Provider returns the named trigger's audio provider.
	Provider(name string) (audio.Provider, bool)
}

// History looks up past segment decisions.
type History interface {
	// Recent returns up to limit decisions of trigger, newest first.
	Recent(ctx context.Context, trigger string, limit int) ([]events.Decision, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the instruments recorded by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithHistory serves GET /v1/triggers/{name}/decisions from h.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithWriteTimeout sets the per-chunk websocket write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// Server is the HTTP front end.
type Server struct {
	addr           string
	catalog        Catalog
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	history        History
	log            *slog.Logger
	writeTimeout   time.Duration
	handler        http.Handler
}

// New builds a Server listening on addr. A nil health handler serves probes
// with no readiness checks.
func New(addr string, catalog Catalog, h *health.Handler, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		catalog:      catalog,
		health:       h,
		log:          slog.Default(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = observe.MetricsHandler()
	}

	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /v1/triggers", s.listTriggers)
	mux.HandleFunc("GET /v1/triggers/{name}/properties", s.properties)
	mux.HandleFunc("GET /v1/triggers/{name}/audio", s.stream)
	if s.history != nil {
		mux.HandleFunc("GET /v1/triggers/{name}/decisions", s.decisions)
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the instrumented mux.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully. Open audio
// streams see their request context cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

type listing struct {
	Model    string  `json:"model"`
	Triggers []Entry `json:"triggers"`
}

func (s *Server) listTriggers(w http.ResponseWriter, _ *http.Request) {
	entries := s.catalog.Triggers()
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, listing{Model: trigger.Model, Triggers: entries})
}

func (s *Server) properties(w http.ResponseWriter, r *http.Request) {
	p, ok := s.catalog.Provider(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown trigger")
		return
	}
	props, err := p.Properties(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Warn("properties failed", "trigger", r.PathValue("name"), "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (s *Server) decisions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.catalog.Provider(name); !ok {
		writeError(w, http.StatusNotFound, "unknown trigger")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	ds, err := s.history.Recent(r.Context(), name, limit)
	if err != nil {
		observe.Logger(r.Context()).Warn("decision history failed", "trigger", name, "err", err)
		writeError(w, http.StatusBadGateway, "decision history unavailable")
		return
	}
	out := make([]events.Record, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Record())
	}
	writeJSON(w, http.StatusOK, out)
}

// streamRequest reads codec, duration and previous_timestamp from the query.
func streamRequest(r *http.Request) (audio.StreamRequest, error) {
	q := r.URL.Query()
	req := audio.StreamRequest{Codec: q.Get("codec")}
	if req.Codec == "" {
		req.Codec = audio.CodecPCM16
	}
	if v := q.Get("duration"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return req, fmt.Errorf("invalid duration %q", v)
		}
		req.Duration = d
	}
	if v := q.Get("previous_timestamp"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid previous_timestamp %q", v)
		}
		req.PreviousTimestamp = ts
	}
	return req, nil
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.catalog.Provider(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown trigger")
		return
	}
	req, err := streamRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the response.
		return
	}
	log := observe.Logger(r.Context()).With("trigger", name, "remote", r.RemoteAddr)
	log.Info("consumer connected", "codec", req.Codec)

	// The consumer never sends data; CloseRead cancels ctx when it goes away.
	ctx := conn.CloseRead(r.Context())
	sent := 0
	err = p.GetAudio(ctx, req, func(c audio.Chunk) bool {
		wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageBinary, audio.EncodeWire(c)); err != nil {
			log.Debug("consumer write failed", "err", err)
			return false
		}
		sent++
		return true
	})

	switch {
	case errors.Is(err, trigger.ErrClosed):
		log.Info("trigger closed, ending stream", "chunks", sent)
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
	case err != nil && ctx.Err() == nil:
		log.Warn("stream failed", "err", err, "chunks", sent)
		_ = conn.Close(websocket.StatusInternalError, closeReason(err))
	default:
		log.Info("consumer disconnected", "chunks", sent)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// closeReason fits err into a close frame, whose reason is capped at 123 bytes.
func closeReason(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
