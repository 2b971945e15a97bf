// Package energy provides a pure-Go VAD engine that classifies frames by
// their RMS amplitude. It needs no native library and is the fallback when the
// WebRTC engine is not compiled in.
//
// Hysteresis keeps a segment open across brief dips: once a frame crosses the
// speech threshold, frames stay classified as speech until the level drops
// below the lower silence threshold.
package energy

import (
	"fmt"

	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// Speech thresholds in PCM16 sample units, indexed by aggressiveness.
var speechThresholds = [4]float64{300, 500, 800, 1200}

// Option configures an [Engine].
type Option func(*Engine)

// WithThresholds overrides the speech and silence RMS thresholds. Silence must
// not exceed speech.
func WithThresholds(speech, silence float64) Option {
	return func(e *Engine) {
		e.speech = speech
		e.silence = silence
	}
}

// Engine creates energy-threshold sessions. It is safe for concurrent use.
type Engine struct {
	speech  float64
	silence float64
}

// New returns an Engine. Without options the thresholds are derived from each
// session's aggressiveness.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	speech, silence := e.speech, e.silence
	if speech <= 0 {
		speech = speechThresholds[cfg.Aggressiveness]
		silence = speech * 0.6
	}
	if silence > speech {
		return nil, fmt.Errorf("energy: silence threshold %.0f above speech threshold %.0f", silence, speech)
	}
	return &session{
		frameBytes: cfg.FrameBytes(),
		speech:     speech,
		silence:    silence,
	}, nil
}

type session struct {
	frameBytes int
	speech     float64
	silence    float64
	inSpeech   bool
	closed     bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Result, error) {
	if s.closed {
		return vad.Result{}, fmt.Errorf("energy: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Result{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	level := audio.RMS(frame)
	if s.inSpeech {
		s.inSpeech = level >= s.silence
	} else {
		s.inSpeech = level >= s.speech
	}
	p := level / (2 * s.speech)
	if p > 1 {
		p = 1
	}
	return vad.Result{Speech: s.inSpeech, Probability: p}, nil
}

func (s *session) Reset() { s.inSpeech = false }

func (s *session) Close() error {
	s.closed = true
	return nil
}

var _ vad.Engine = (*Engine)(nil)
