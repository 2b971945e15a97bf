package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voicetrigger/internal/trigger"
)

// ValidRecognizerNames lists the built-in recognizer names.
// Used by [Validate] to warn about unrecognised names.
var ValidRecognizerNames = []string{"vosk", "whisper-native", "whisper", "openai", "deepgram"}

// ValidSourceKinds lists the supported source kinds.
var ValidSourceKinds = []string{"microphone", "wav", "websocket"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands "~" in file paths and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Path = trigger.ExpandHome(cfg.Sources[i].Path)
	}
	for i := range cfg.Triggers {
		cfg.Triggers[i].ModelPath = trigger.ExpandHome(cfg.Triggers[i].ModelPath)
	}
	cfg.Events.FilePath = trigger.ExpandHome(cfg.Events.FilePath)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Events.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("events.queue_size %d must not be negative", cfg.Events.QueueSize))
	}

	// Sources and triggers share one namespace.
	seen := make(map[string]string, len(cfg.Sources)+len(cfg.Triggers))
	claim := func(prefix, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			return
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, name, prev))
			return
		}
		seen[name] = prefix
	}

	for i, src := range cfg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		claim(prefix, src.Name)
		if !slices.Contains(ValidSourceKinds, src.Kind) {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: %s", prefix, src.Kind, strings.Join(ValidSourceKinds, ", ")))
		}
		if src.Kind == "wav" && src.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required for wav sources", prefix))
		}
		if src.Kind == "websocket" && src.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required for websocket sources", prefix))
		}
		switch src.Codec {
		case "", "pcm16", "opus":
		default:
			errs = append(errs, fmt.Errorf("%s.codec %q is invalid; valid values: pcm16, opus", prefix, src.Codec))
		}
		if src.SampleRate < 0 || src.ChunkMs < 0 || src.RemoteSampleRate < 0 {
			errs = append(errs, fmt.Errorf("%s: sample rates and chunk_ms must not be negative", prefix))
		}
		if src.RemoteChannels < 0 || src.RemoteChannels > 2 {
			errs = append(errs, fmt.Errorf("%s.remote_channels %d is out of range [0, 2]", prefix, src.RemoteChannels))
		}
	}

	for i, tc := range cfg.Triggers {
		prefix := fmt.Sprintf("triggers[%d]", i)
		claim(prefix, tc.Name)
		if _, err := tc.Trigger().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		switch tc.VAD {
		case "", VADWebRTC, VADEnergy:
		default:
			errs = append(errs, fmt.Errorf("%s.vad %q is invalid; valid values: webrtc, energy", prefix, tc.VAD))
		}
		if tc.TriggerPhrase == "" {
			slog.Warn("trigger phrase is empty; this trigger will never forward audio", "trigger", tc.Name)
		}
		for j, rec := range tc.RecognizerChain() {
			validateRecognizerName(fmt.Sprintf("%s.recognizer[%d]", prefix, j), rec.Name)
		}
	}

	// Dependencies must exist; cycles are only checked when they all do.
	missing := false
	for i, tc := range cfg.Triggers {
		for _, dep := range Dependencies(tc) {
			if _, ok := seen[dep]; !ok {
				errs = append(errs, fmt.Errorf("triggers[%d].source %q does not name a source or trigger", i, dep))
				missing = true
			}
		}
	}
	if !missing {
		if _, err := TriggerOrder(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// TriggerOrder returns the triggers sorted so that every trigger comes after
// the triggers it depends on. It fails when the dependencies form a cycle.
func TriggerOrder(cfg *Config) ([]TriggerConfig, error) {
	byName := make(map[string]int, len(cfg.Triggers))
	for i, tc := range cfg.Triggers {
		byName[tc.Name] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(cfg.Triggers))
	order := make([]TriggerConfig, 0, len(cfg.Triggers))

	var visit func(i int, path []string) error
	visit = func(i int, path []string) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("config: trigger dependency cycle: %s", strings.Join(append(path, cfg.Triggers[i].Name), " -> "))
		}
		state[i] = visiting
		path = append(path, cfg.Triggers[i].Name)
		for _, dep := range Dependencies(cfg.Triggers[i]) {
			if j, ok := byName[dep]; ok {
				if err := visit(j, path); err != nil {
					return err
				}
			}
		}
		state[i] = done
		order = append(order, cfg.Triggers[i])
		return nil
	}

	for i := range cfg.Triggers {
		if err := visit(i, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// validateRecognizerName logs a warning if name is not a built-in recognizer.
func validateRecognizerName(field, name string) {
	if slices.Contains(ValidRecognizerNames, name) {
		return
	}
	slog.Warn("unknown recognizer name; may be a typo or a third-party recognizer",
		"field", field,
		"name", name,
		"known", ValidRecognizerNames,
	)
}
