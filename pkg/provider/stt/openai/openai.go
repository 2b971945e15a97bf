// Package openai provides a cloud recognizer backed by the OpenAI audio
// transcription endpoint. Any server that implements the same
// /audio/transcriptions API (e.g., a self-hosted faster-whisper gateway) can
// be targeted with [WithBaseURL].
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

var _ stt.Recognizer = (*Recognizer)(nil)

const defaultModel = oai.AudioModelWhisper1

// Option is a functional option for configuring a Recognizer.
type Option func(*config)

type config struct {
	baseURL    string
	model      string
	language   string
	maxRetries *int
}

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "en").
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithMaxRetries overrides the client's retry count.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = &n }
}

// Recognizer implements stt.Recognizer using the OpenAI transcription API.
// It is safe for concurrent use.
type Recognizer struct {
	client   oai.Client
	model    string
	language string
}

// New creates a Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := config{model: defaultModel}
	for _, o := range opts {
		o(&cfg)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.maxRetries != nil {
		reqOpts = append(reqOpts, option.WithMaxRetries(*cfg.maxRetries))
	}
	return &Recognizer{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
	}, nil
}

// Recognize uploads pcm as a WAV file and returns the transcription.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcript, error) {
	if len(pcm) == 0 {
		return stt.Transcript{}, nil
	}
	wav := audio.EncodeWAV(pcm, sampleRate, 1)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "segment.wav", "audio/wav"),
		Model: r.model,
	}
	if r.language != "" {
		params.Language = oai.String(r.language)
	}
	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcribe: %w", err)
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Duration: stt.AudioDuration(pcm, sampleRate),
	}, nil
}

// Close is a no-op.
func (r *Recognizer) Close() error { return nil }
