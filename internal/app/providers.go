package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voicetrigger/internal/config"
	"github.com/MrWong99/voicetrigger/internal/source"
	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt/openai"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt/vosk"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt/whisper"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad/energy"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad/webrtc"
)

// RegisterBuiltins registers every recognizer, VAD engine and source kind
// shipped with voicetrigger. Native engines that were not compiled in still
// register; their constructors report the missing build tag.
func RegisterBuiltins(reg *config.Registry, log *slog.Logger) {
	reg.RegisterRecognizer("vosk", func(e config.RecognizerEntry) (stt.Recognizer, error) {
		return recognizer(vosk.New(e.Model))
	})
	reg.RegisterRecognizer("whisper-native", func(e config.RecognizerEntry) (stt.Recognizer, error) {
		var opts []whisper.NativeOption
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return recognizer(whisper.NewNative(e.Model, opts...))
	})
	reg.RegisterRecognizer("whisper", func(e config.RecognizerEntry) (stt.Recognizer, error) {
		opts := []whisper.Option{whisper.WithModel(e.Model)}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return recognizer(whisper.New(e.BaseURL, opts...))
	})
	reg.RegisterRecognizer("openai", func(e config.RecognizerEntry) (stt.Recognizer, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, openai.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		return recognizer(openai.New(e.APIKey, opts...))
	})
	reg.RegisterRecognizer("deepgram", func(e config.RecognizerEntry) (stt.Recognizer, error) {
		opts := []deepgram.Option{
			deepgram.WithModel(e.Model),
			deepgram.WithEndpoint(e.BaseURL),
			deepgram.WithLanguage(optString(e.Options, "language")),
		}
		if kw := optString(e.Options, "keywords"); kw != "" {
			opts = append(opts, deepgram.WithKeywords(strings.Split(kw, ",")...))
		}
		return recognizer(deepgram.New(e.APIKey, opts...))
	})

	reg.RegisterVAD(config.VADWebRTC, func(config.TriggerConfig) (vad.Engine, error) {
		e, err := webrtc.New()
		if err != nil {
			return nil, err
		}
		return e, nil
	})
	reg.RegisterVAD(config.VADEnergy, func(config.TriggerConfig) (vad.Engine, error) {
		return energy.New(), nil
	})

	reg.RegisterSource("microphone", func(sc config.SourceConfig) (audio.Provider, error) {
		return provider(source.NewMicrophone(sc.SampleRate, chunkDuration(sc), log.With("source", sc.Name)))
	})
	reg.RegisterSource("wav", func(sc config.SourceConfig) (audio.Provider, error) {
		return provider(source.NewWAV(sc.Path,
			source.WithLoop(sc.Loop),
			source.WithChunkDuration(chunkDuration(sc)),
			source.WithSampleRate(sc.SampleRate),
			source.WithWAVLogger(log.With("source", sc.Name)),
		))
	})
	reg.RegisterSource("websocket", func(sc config.SourceConfig) (audio.Provider, error) {
		opts := []source.WebsocketOption{
			source.WithRemoteFormat(sc.RemoteSampleRate, sc.RemoteChannels),
			source.WithOutputRate(sc.SampleRate),
			source.WithWebsocketLogger(log.With("source", sc.Name)),
		}
		if sc.Codec != "" {
			opts = append(opts, source.WithRemoteCodec(sc.Codec))
		}
		return provider(source.NewWebsocket(sc.URL, opts...))
	})
}

// recognizer drops the typed nil a failed constructor returns.
func recognizer[R stt.Recognizer](r R, err error) (stt.Recognizer, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

func provider[P audio.Provider](p P, err error) (audio.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultVAD is the engine used when a trigger leaves vad empty.
func DefaultVAD() string {
	if webrtc.Available() {
		return config.VADWebRTC
	}
	return config.VADEnergy
}

func chunkDuration(sc config.SourceConfig) time.Duration {
	if sc.ChunkMs <= 0 {
		return source.DefaultChunkDuration
	}
	return time.Duration(sc.ChunkMs) * time.Millisecond
}

// optString reads a string option, accepting any scalar YAML produced.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
