// Package mock provides scripted VAD engines and sessions for tests.
//
// Speech is usually synthesised as a constant non-zero signal and silence as
// zeros, so [Loud] is enough to classify most test audio:
//
//	eng := &mock.Engine{Open: func(vad.Config) vad.SessionHandle {
//		return &mock.Session{Classify: mock.Loud(500)}
//	}}
package mock

import (
	"sync"

	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// Classifier decides a single frame.
type Classifier func(frame []byte) (vad.Result, error)

// Loud reports speech for frames whose RMS amplitude reaches threshold.
func Loud(threshold float64) Classifier {
	return func(frame []byte) (vad.Result, error) {
		if audio.RMS(frame) >= threshold {
			return vad.Result{Speech: true, Probability: 1}, nil
		}
		return vad.Result{}, nil
	}
}

// Engine hands out sessions and remembers the configs it was asked for.
type Engine struct {
	// Open builds the handle for each session. Nil yields a silent [Session].
	Open func(cfg vad.Config) vad.SessionHandle

	// Err fails every NewSession call.
	Err error

	mu      sync.Mutex
	configs []vad.Config
}

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	e.configs = append(e.configs, cfg)
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Open != nil {
		return e.Open(cfg), nil
	}
	return &Session{}, nil
}

// Configs returns the config of every NewSession call, failed ones included.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

var _ vad.Engine = (*Engine)(nil)

// Session classifies frames with Classify, or answers every frame with the
// zero Result and Err when Classify is nil.
type Session struct {
	Classify Classifier
	Err      error

	mu     sync.Mutex
	frames int
	resets int
	closes int
}

func (s *Session) ProcessFrame(frame []byte) (vad.Result, error) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	if s.Classify != nil {
		return s.Classify(frame)
	}
	return vad.Result{}, s.Err
}

func (s *Session) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

// Frames is the number of frames classified so far.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Resets is the number of Reset calls.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closes is the number of Close calls.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

var _ vad.SessionHandle = (*Session)(nil)
