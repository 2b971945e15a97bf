//go:build webrtcvad

// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (cgo). Build with -tags webrtcvad to enable it.
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// Available reports whether the native engine is compiled in.
func Available() bool { return true }

// Engine creates WebRTC VAD sessions. Each session owns its own detector
// instance so adaptive noise estimates are never shared between streams.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() (*Engine, error) {
	return &Engine{}, nil
}

// NewSession implements [vad.Engine]. Unsupported rates, frame sizes or modes
// fail here rather than on the first frame.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !webrtcvad.ValidRateAndFrameLength(cfg.SampleRate, cfg.FrameBytes()/2) {
		return nil, fmt.Errorf("webrtc: unsupported rate %d Hz with %d ms frames", cfg.SampleRate, cfg.FrameSizeMs)
	}
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc: create detector: %w", err)
	}
	if err := det.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc: set mode %d: %w", cfg.Aggressiveness, err)
	}
	return &session{
		det:        det,
		rate:       cfg.SampleRate,
		mode:       cfg.Aggressiveness,
		frameBytes: cfg.FrameBytes(),
	}, nil
}

type session struct {
	mu         sync.Mutex
	det        *webrtcvad.VAD
	rate       int
	mode       int
	frameBytes int
}

func (s *session) ProcessFrame(frame []byte) (vad.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det == nil {
		return vad.Result{}, fmt.Errorf("webrtc: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Result{}, fmt.Errorf("webrtc: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	speech, err := s.det.Process(s.rate, frame)
	if err != nil {
		return vad.Result{}, fmt.Errorf("webrtc: process: %w", err)
	}
	if speech {
		return vad.Result{Speech: true, Probability: 1}, nil
	}
	return vad.Result{}, nil
}

// Reset replaces the detector, dropping its adaptive state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det == nil {
		return
	}
	det, err := webrtcvad.New()
	if err != nil {
		return
	}
	if err := det.SetMode(s.mode); err != nil {
		return
	}
	s.det = det
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.det = nil
	return nil
}

var _ vad.Engine = (*Engine)(nil)
