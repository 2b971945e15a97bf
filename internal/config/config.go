// Package config provides the configuration schema, loader, and provider
// registry for the voicetrigger server.
package config

import (
	"log/slog"

	"github.com/MrWong99/voicetrigger/internal/trigger"
)

// LogLevel controls log verbosity for the voicetrigger server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown or empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// VAD engine names.
const (
	VADWebRTC = "webrtc"
	VADEnergy = "energy"
)

// Config is the root configuration structure for voicetrigger.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sources   []SourceConfig  `yaml:"sources"`
	Triggers  []TriggerConfig `yaml:"triggers"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	// Empty disables the HTTP surface.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TelemetryConfig configures metrics and tracing resources.
type TelemetryConfig struct {
	// ServiceName is reported as the OTel service.name. Default: "voicetrigger".
	ServiceName string `yaml:"service_name"`
}

// SourceConfig describes one upstream audio source.
type SourceConfig struct {
	// Name is referenced by triggers in their source field.
	Name string `yaml:"name"`

	// Kind selects the implementation: microphone, wav or websocket.
	Kind string `yaml:"kind"`

	// SampleRate is the rate of emitted chunks. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// ChunkMs is the audio length of one chunk. Default: 100.
	ChunkMs int `yaml:"chunk_ms"`

	// Path is the WAV file to replay. "~" is expanded.
	Path string `yaml:"path"`

	// Loop restarts WAV playback at the end of the file.
	Loop bool `yaml:"loop"`

	// URL is the websocket endpoint.
	URL string `yaml:"url"`

	// Codec is the payload codec sent by a websocket peer: pcm16 or opus.
	Codec string `yaml:"codec"`

	// RemoteSampleRate and RemoteChannels describe the websocket payload.
	RemoteSampleRate int `yaml:"remote_sample_rate"`
	RemoteChannels   int `yaml:"remote_channels"`
}

// RecognizerEntry configures one speech recognizer. Name selects the
// constructor in the [Registry].
type RecognizerEntry struct {
	// Name selects the registered recognizer (vosk, whisper-native, whisper, openai, deepgram).
	Name string `yaml:"name"`

	// Model is a model path or model identifier, depending on the recognizer.
	Model string `yaml:"model"`

	// BaseURL overrides the recognizer's default endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against cloud recognizers.
	APIKey string `yaml:"api_key"`

	// Options holds recognizer-specific values such as "language".
	Options map[string]any `yaml:"options"`
}

// TriggerConfig describes one trigger-phrase filter.
type TriggerConfig struct {
	Name string `yaml:"name"`

	// Source names a source or another trigger. Empty means no upstream.
	Source string `yaml:"source"`

	TriggerPhrase string `yaml:"trigger_phrase"`
	ModelPath     string `yaml:"model_path"`

	// VADAggressiveness is nil when the key is absent; see
	// [TriggerConfig.Aggressiveness].
	VADAggressiveness *int `yaml:"vad_aggressiveness"`

	// VAD selects the engine: webrtc or energy. Empty picks webrtc when it
	// is compiled in and energy otherwise.
	VAD string `yaml:"vad"`

	// Recognizer is the primary recognizer. Default: vosk with ModelPath.
	Recognizer RecognizerEntry `yaml:"recognizer"`

	// Fallbacks are tried in order when the primary recognizer fails.
	Fallbacks []RecognizerEntry `yaml:"fallbacks"`

	Match          trigger.MatchMode      `yaml:"match"`
	OverflowPolicy trigger.OverflowPolicy `yaml:"overflow_policy"`
}

// EventsConfig configures the decision log.
type EventsConfig struct {
	// PostgresDSN enables the PostgreSQL decision log when set.
	PostgresDSN string `yaml:"postgres_dsn"`

	// FilePath appends decisions as JSON lines to a local file when set.
	// It may be combined with PostgresDSN.
	FilePath string `yaml:"file_path"`

	// QueueSize bounds the number of decisions awaiting a sink write.
	// Default: 256.
	QueueSize int `yaml:"queue_size"`
}

// Dependencies returns the names tc requires to be built first: its source,
// when it has one.
func Dependencies(tc TriggerConfig) []string {
	if tc.Source == "" {
		return nil
	}
	return []string{tc.Source}
}

// Trigger converts tc to the trigger package's configuration.
func (tc TriggerConfig) Trigger() trigger.Config {
	return trigger.Config{
		Name:              tc.Name,
		Source:            tc.Source,
		TriggerPhrase:     tc.TriggerPhrase,
		VADAggressiveness: tc.Aggressiveness(),
		ModelPath:         tc.ModelPath,
		MatchMode:         tc.Match,
		OverflowPolicy:    tc.OverflowPolicy,
	}
}

// Aggressiveness returns the VAD aggressiveness, defaulting to
// [trigger.DefaultVADAggressiveness] when unset. 0 is a valid setting.
func (tc TriggerConfig) Aggressiveness() int {
	if tc.VADAggressiveness == nil {
		return trigger.DefaultVADAggressiveness
	}
	return *tc.VADAggressiveness
}

// RecognizerChain returns the primary recognizer followed by the fallbacks.
// An unnamed primary defaults to vosk with the trigger's model path.
func (tc TriggerConfig) RecognizerChain() []RecognizerEntry {
	primary := tc.Recognizer
	if primary.Name == "" {
		primary.Name = "vosk"
	}
	if primary.Model == "" && (primary.Name == "vosk" || primary.Name == "whisper-native") {
		primary.Model = tc.Trigger().Normalize().ModelPath
	}
	return append([]RecognizerEntry{primary}, tc.Fallbacks...)
}
