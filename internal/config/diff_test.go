package config_test

import (
	"testing"

	"github.com/MrWong99/voicetrigger/internal/config"
	"github.com/MrWong99/voicetrigger/internal/trigger"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Sources: []config.SourceConfig{{Name: "mic", Kind: "microphone"}},
		Triggers: []config.TriggerConfig{
			{Name: "robot", Source: "mic", TriggerPhrase: "robot", Recognizer: config.RecognizerEntry{Name: "whisper", Options: map[string]any{"language": "en"}}},
			{Name: "lights", Source: "robot", TriggerPhrase: "lights"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.RestartRequired || len(d.TriggerChanges) != 0 {
		t.Errorf("identical configs produced %+v", d)
	}
}

func TestDiff_HotChanges(t *testing.T) {
	t.Parallel()
	old, next := baseConfig(), baseConfig()
	next.Server.LogLevel = config.LogDebug
	next.Triggers[0].TriggerPhrase = "computer"
	next.Triggers[1].Match = trigger.MatchPhonetic
	next.Triggers[1].OverflowPolicy = trigger.OverflowWhileSpeaking

	d := config.Diff(old, next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %v/%q", d.LogLevelChanged, d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("hot-reloadable changes flagged as needing a restart")
	}
	if len(d.TriggerChanges) != 2 {
		t.Fatalf("TriggerChanges = %+v, want 2 entries", d.TriggerChanges)
	}
	robot, lights := d.TriggerChanges[0], d.TriggerChanges[1]
	if robot.Name != "robot" || !robot.PhraseChanged || !robot.HotReloadable() {
		t.Errorf("robot diff = %+v", robot)
	}
	if lights.Name != "lights" || !lights.MatchChanged || !lights.OverflowChanged || lights.PhraseChanged {
		t.Errorf("lights diff = %+v", lights)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"source", func(c *config.Config) { c.Sources[0].ChunkMs = 20 }},
		{"events", func(c *config.Config) { c.Events.PostgresDSN = "postgres://x" }},
		{"trigger source", func(c *config.Config) { c.Triggers[1].Source = "mic" }},
		{"vad", func(c *config.Config) { c.Triggers[0].VADAggressiveness = new(1) }},
		{"recognizer option", func(c *config.Config) { c.Triggers[0].Recognizer.Options["language"] = "de" }},
		{"fallback added", func(c *config.Config) {
			c.Triggers[0].Fallbacks = []config.RecognizerEntry{{Name: "openai"}}
		}},
		{"trigger added", func(c *config.Config) {
			c.Triggers = append(c.Triggers, config.TriggerConfig{Name: "new"})
		}},
		{"trigger removed", func(c *config.Config) { c.Triggers = c.Triggers[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tt.mutate(next)
			if d := config.Diff(baseConfig(), next); !d.RestartRequired {
				t.Errorf("Diff = %+v, want RestartRequired", d)
			}
		})
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	t.Parallel()
	old, next := baseConfig(), baseConfig()
	next.Triggers[1] = config.TriggerConfig{Name: "fan", Source: "mic"}

	d := config.Diff(old, next)
	var added, removed bool
	for _, td := range d.TriggerChanges {
		if td.Name == "fan" && td.Added && !td.HotReloadable() {
			added = true
		}
		if td.Name == "lights" && td.Removed {
			removed = true
		}
	}
	if !added || !removed {
		t.Errorf("TriggerChanges = %+v", d.TriggerChanges)
	}
}
