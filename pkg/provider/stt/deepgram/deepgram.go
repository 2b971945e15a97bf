// Package deepgram provides an stt.Recognizer backed by the Deepgram live
// transcription websocket.
//
// Each Recognize call opens one stream, uploads the whole segment, asks
// Deepgram to flush with a CloseStream message and joins the final results
// that arrive before the server closes the connection.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// uploadBytes is the size of each binary message: 250 ms at 16 kHz.
	uploadBytes = 8000
)

// Option configures a [Recognizer].
type Option func(*Recognizer)

// WithModel sets the Deepgram model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) {
		if model != "" {
			r.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(r *Recognizer) {
		if language != "" {
			r.language = language
		}
	}
}

// WithKeywords boosts words Deepgram should favour, typically the trigger
// phrase.
func WithKeywords(words ...string) Option {
	return func(r *Recognizer) { r.keywords = append(r.keywords, words...) }
}

// WithEndpoint replaces the streaming endpoint.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) {
		if endpoint != "" {
			r.endpoint = endpoint
		}
	}
}

// Recognizer implements stt.Recognizer. It holds no per-call state and is
// safe for concurrent use.
type Recognizer struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []string
}

var _ stt.Recognizer = (*Recognizer)(nil)

// New returns a Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *Recognizer) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", r.language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	for _, kw := range r.keywords {
		q.Add("keywords", kw+":2")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Recognize implements [stt.Recognizer].
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcript, error) {
	if len(pcm) == 0 {
		return stt.Transcript{}, nil
	}
	wsURL, err := r.buildURL(sampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+r.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() { writeErr <- upload(ctx, conn, pcm) }()

	var (
		parts []string
		confs []float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
			}
			break
		}
		text, conf, ok := parseResult(msg)
		if !ok {
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
		confs = append(confs, conf)
	}
	if err := <-writeErr; err != nil {
		return stt.Transcript{}, err
	}

	tr := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Duration: stt.AudioDuration(pcm, sampleRate),
	}
	if len(confs) > 0 {
		var sum float64
		for _, c := range confs {
			sum += c
		}
		tr.Confidence = sum / float64(len(confs))
	}
	return tr, nil
}

// upload sends pcm in fixed-size messages and asks Deepgram to flush.
func upload(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += uploadBytes {
		end := min(off+uploadBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// parseResult extracts the transcript of a final Results message.
func parseResult(msg []byte) (text string, confidence float64, ok bool) {
	if !gjson.ValidBytes(msg) {
		return "", 0, false
	}
	res := gjson.GetManyBytes(msg, "type", "is_final", "channel.alternatives.0.transcript", "channel.alternatives.0.confidence")
	if res[0].String() != "Results" || !res[1].Bool() || !res[2].Exists() {
		return "", 0, false
	}
	return strings.TrimSpace(res[2].String()), res[3].Float(), true
}

// Close implements [stt.Recognizer]. There is nothing to release.
func (r *Recognizer) Close() error { return nil }
