package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voicetrigger/internal/config"
	"github.com/MrWong99/voicetrigger/internal/trigger"
	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

telemetry:
  service_name: vt-test

sources:
  - name: mic
    kind: microphone
    sample_rate: 16000
    chunk_ms: 100
  - name: replay
    kind: wav
    path: /tmp/clip.wav
    loop: true
  - name: remote
    kind: websocket
    url: ws://localhost:9000/audio
    codec: opus
    remote_sample_rate: 48000
    remote_channels: 2

triggers:
  - name: robot
    source: mic
    trigger_phrase: "Robot"
    model_path: /models/vosk
    vad_aggressiveness: 2
    vad: energy
    recognizer:
      name: whisper
      base_url: http://localhost:8081
      options:
        language: en
    fallbacks:
      - name: openai
        api_key: sk-test
    match: phonetic
    overflow_policy: while_speaking
  - name: chained
    source: robot
    trigger_phrase: lights

events:
  postgres_dsn: postgres://localhost/vt
  file_path: /var/log/vt/decisions.jsonl
  queue_size: 64
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Telemetry.ServiceName != "vt-test" {
		t.Errorf("telemetry.service_name = %q", cfg.Telemetry.ServiceName)
	}
	if len(cfg.Sources) != 3 || cfg.Sources[2].Codec != "opus" || cfg.Sources[2].RemoteChannels != 2 {
		t.Errorf("sources = %+v", cfg.Sources)
	}
	if !cfg.Sources[1].Loop || cfg.Sources[1].Path != "/tmp/clip.wav" {
		t.Errorf("wav source = %+v", cfg.Sources[1])
	}

	tc := cfg.Triggers[0]
	if tc.Match != trigger.MatchPhonetic || tc.OverflowPolicy != trigger.OverflowWhileSpeaking || tc.VAD != config.VADEnergy {
		t.Errorf("trigger = %+v", tc)
	}
	if tc.Recognizer.Options["language"] != "en" {
		t.Errorf("recognizer options = %v", tc.Recognizer.Options)
	}
	chain := tc.RecognizerChain()
	if len(chain) != 2 || chain[0].Name != "whisper" || chain[1].Name != "openai" {
		t.Errorf("recognizer chain = %+v", chain)
	}
	if cfg.Events.PostgresDSN == "" || cfg.Events.FilePath != "/var/log/vt/decisions.jsonl" || cfg.Events.QueueSize != 64 {
		t.Errorf("events = %+v", cfg.Events)
	}
}

func TestLoadFromReader_VADAggressiveness(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
sources:
  - name: mic
    kind: microphone
triggers:
  - name: omitted
    source: mic
    trigger_phrase: robot
  - name: zero
    source: mic
    trigger_phrase: robot
    vad_aggressiveness: 0
  - name: explicit
    source: mic
    trigger_phrase: robot
    vad_aggressiveness: 2
`)
	want := map[string]int{"omitted": trigger.DefaultVADAggressiveness, "zero": 0, "explicit": 2}
	for _, tc := range cfg.Triggers {
		if got := tc.Trigger().Normalize().VADAggressiveness; got != want[tc.Name] {
			t.Errorf("%s: aggressiveness = %d, want %d", tc.Name, got, want[tc.Name])
		}
	}
	if trigger.DefaultVADAggressiveness != 3 {
		t.Errorf("DefaultVADAggressiveness = %d, want 3", trigger.DefaultVADAggressiveness)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")
	if len(cfg.Triggers) != 0 || len(cfg.Sources) != 0 {
		t.Errorf("empty document produced %+v", cfg)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := mustLoad(t, `
sources:
  - name: replay
    kind: wav
    path: ~/clips/hello.wav
triggers:
  - name: t
    source: replay
    model_path: ~/vosk-model
`)
	if want := filepath.Join(home, "clips/hello.wav"); cfg.Sources[0].Path != want {
		t.Errorf("path = %q, want %q", cfg.Sources[0].Path, want)
	}
	if want := filepath.Join(home, "vosk-model"); cfg.Triggers[0].ModelPath != want {
		t.Errorf("model_path = %q, want %q", cfg.Triggers[0].ModelPath, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad log level", "server:\n  log_level: loud\n", "log_level"},
		{"duplicate across kinds", `
sources:
  - name: x
    kind: microphone
triggers:
  - name: x
`, "duplicate"},
		{"unknown source kind", `
sources:
  - name: s
    kind: tape
`, "kind"},
		{"wav without path", `
sources:
  - name: s
    kind: wav
`, "path is required"},
		{"websocket without url", `
sources:
  - name: s
    kind: websocket
`, "url is required"},
		{"bad codec", `
sources:
  - name: s
    kind: websocket
    url: ws://x
    codec: mp3
`, "codec"},
		{"aggressiveness", `
triggers:
  - name: t
    vad_aggressiveness: 5
`, "vad_aggressiveness"},
		{"unknown vad", `
triggers:
  - name: t
    vad: silero
`, "vad"},
		{"unknown match", `
triggers:
  - name: t
    match: regex
`, "match mode"},
		{"unknown overflow policy", `
triggers:
  - name: t
    overflow_policy: never
`, "overflow policy"},
		{"missing dependency", `
triggers:
  - name: t
    source: ghost
`, "does not name"},
		{"cycle", `
triggers:
  - name: a
    source: b
  - name: b
    source: a
`, "cycle"},
		{"self cycle", `
triggers:
  - name: a
    source: a
`, "cycle"},
		{"missing name", `
triggers:
  - trigger_phrase: robot
`, "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
triggers:
  - name: t
    vad_aggressiveness: 9
    match: regex
`))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "vad_aggressiveness", "match mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error misses %q: %v", want, err)
		}
	}
}

func TestDependencies(t *testing.T) {
	t.Parallel()
	if deps := config.Dependencies(config.TriggerConfig{Name: "t"}); len(deps) != 0 {
		t.Errorf("no source: deps = %v", deps)
	}
	deps := config.Dependencies(config.TriggerConfig{Name: "t", Source: "mic"})
	if len(deps) != 1 || deps[0] != "mic" {
		t.Errorf("deps = %v, want [mic]", deps)
	}
}

func TestTriggerOrder(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
sources:
  - name: mic
    kind: microphone
triggers:
  - name: c
    source: b
  - name: b
    source: a
  - name: a
    source: mic
  - name: solo
`)
	order, err := config.TriggerOrder(cfg)
	if err != nil {
		t.Fatalf("TriggerOrder: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, tc := range order {
		pos[tc.Name] = i
	}
	if len(order) != 4 || pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("order = %v", pos)
	}
}

func TestRecognizerChain_DefaultsToVosk(t *testing.T) {
	t.Parallel()
	chain := config.TriggerConfig{Name: "t", ModelPath: "/m"}.RecognizerChain()
	if len(chain) != 1 || chain[0].Name != "vosk" || chain[0].Model != "/m" {
		t.Errorf("chain = %+v", chain)
	}
}

func TestTriggerConfig_Trigger(t *testing.T) {
	t.Parallel()
	tc := config.TriggerConfig{
		Name: "t", Source: "mic", TriggerPhrase: "Robot", ModelPath: "/m",
		VADAggressiveness: new(1), Match: trigger.MatchPhonetic, OverflowPolicy: trigger.OverflowWhileSpeaking,
	}
	got := tc.Trigger()
	want := trigger.Config{
		Name: "t", Source: "mic", TriggerPhrase: "Robot", ModelPath: "/m",
		VADAggressiveness: 1, MatchMode: trigger.MatchPhonetic, OverflowPolicy: trigger.OverflowWhileSpeaking,
	}
	if got != want {
		t.Errorf("Trigger() = %+v, want %+v", got, want)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

type stubRecognizer struct{}

func (stubRecognizer) Recognize(context.Context, []byte, int) (stt.Transcript, error) {
	return stt.Transcript{}, nil
}
func (stubRecognizer) Close() error { return nil }

type stubEngine struct{}

func (stubEngine) NewSession(vad.Config) (vad.SessionHandle, error) { return nil, nil }

type stubSource struct{}

func (stubSource) GetAudio(context.Context, audio.StreamRequest, audio.ChunkHandler) error {
	return nil
}
func (stubSource) Properties(context.Context) (audio.Properties, error) {
	return audio.DefaultProperties, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.RecognizerEntry
	reg.RegisterRecognizer("vosk", func(e config.RecognizerEntry) (stt.Recognizer, error) {
		gotEntry = e
		return stubRecognizer{}, nil
	})
	reg.RegisterVAD("energy", func(config.TriggerConfig) (vad.Engine, error) { return stubEngine{}, nil })
	reg.RegisterSource("wav", func(config.SourceConfig) (audio.Provider, error) { return stubSource{}, nil })

	if _, err := reg.CreateRecognizer(config.RecognizerEntry{Name: "vosk", Model: "/m"}); err != nil {
		t.Fatalf("CreateRecognizer: %v", err)
	}
	if gotEntry.Model != "/m" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if _, err := reg.CreateVAD("energy", config.TriggerConfig{}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := reg.CreateSource(config.SourceConfig{Kind: "wav"}); err != nil {
		t.Errorf("CreateSource: %v", err)
	}

	if _, err := reg.CreateRecognizer(config.RecognizerEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown recognizer: err = %v", err)
	}
	if _, err := reg.CreateVAD("silero", config.TriggerConfig{}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown vad: err = %v", err)
	}
	if _, err := reg.CreateSource(config.SourceConfig{Kind: "tape"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown source: err = %v", err)
	}

	if names := reg.Names("recognizer"); len(names) != 1 || names[0] != "vosk" {
		t.Errorf("Names(recognizer) = %v", names)
	}
}
