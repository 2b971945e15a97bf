//go:build !webrtcvad

// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (cgo). Build with -tags webrtcvad to enable it.
package webrtc

import (
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// Available reports that no native engine is compiled in.
func Available() bool { return false }

// Engine is a placeholder so callers compile without the webrtcvad tag.
type Engine struct{}

// New returns [vad.ErrNativeUnavailable] when built without the webrtcvad tag.
func New() (*Engine, error) {
	return nil, vad.ErrNativeUnavailable
}

// NewSession always fails.
func (e *Engine) NewSession(vad.Config) (vad.SessionHandle, error) {
	return nil, vad.ErrNativeUnavailable
}

var _ vad.Engine = (*Engine)(nil)
