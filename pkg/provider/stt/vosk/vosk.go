//go:build vosk

// Package vosk provides an offline recognizer backed by the Vosk speech
// recognition toolkit (cgo). Build with -tags vosk and make libvosk available
// at link time.
package vosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

var _ stt.Recognizer = (*Recognizer)(nil)

// Available reports whether the Vosk bindings are compiled in.
func Available() bool { return true }

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLogLevel sets the Kaldi log verbosity. -1 silences it.
func WithLogLevel(level int) Option {
	return func(r *Recognizer) { r.logLevel = &level }
}

// WithWords requests per-word results, which carry confidences.
func WithWords(on bool) Option {
	return func(r *Recognizer) { r.words = on }
}

// Recognizer implements stt.Recognizer with a shared Vosk model. Every call
// creates a fresh decoder from the model, so concurrent calls are safe.
type Recognizer struct {
	model    *vosk.VoskModel
	words    bool
	logLevel *int
}

// New loads the Vosk model directory at modelPath. A missing or unreadable
// model is an error.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("vosk: modelPath must not be empty")
	}
	r := &Recognizer{}
	for _, o := range opts {
		o(r)
	}
	if r.logLevel != nil {
		vosk.SetLogLevel(*r.logLevel)
	}
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}
	r.model = model
	slog.Info("vosk model loaded", "path", modelPath)
	return r, nil
}

// Recognize feeds the whole buffer to a fresh decoder and reads its final
// result.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("vosk: %w", err)
	}
	if r.model == nil {
		return stt.Transcript{}, errors.New("vosk: recognizer closed")
	}
	if len(pcm) == 0 {
		return stt.Transcript{}, nil
	}
	rec, err := vosk.NewRecognizer(r.model, float64(sampleRate))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("vosk: create decoder: %w", err)
	}
	defer rec.Free()
	if r.words {
		rec.SetWords(1)
	}
	if rec.AcceptWaveform(pcm) < 0 {
		return stt.Transcript{}, errors.New("vosk: decoder rejected waveform")
	}
	raw := rec.FinalResult()
	return stt.Transcript{
		Text:       stt.ParseResult(raw),
		Confidence: stt.ParseConfidence(raw),
		Duration:   stt.AudioDuration(pcm, sampleRate),
	}, nil
}

// Close frees the model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		r.model.Free()
		r.model = nil
	}
	return nil
}
