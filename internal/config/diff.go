package config

import (
	"maps"
	"reflect"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TriggerChanges lists every trigger that was added, removed or modified.
	TriggerChanges []TriggerDiff

	// RestartRequired is set when any change cannot be applied to the running
	// process: server, telemetry, sources, events, added or removed triggers,
	// or a trigger change outside phrase, match mode and overflow policy.
	RestartRequired bool
}

// TriggerDiff describes what changed for a single trigger.
type TriggerDiff struct {
	Name            string
	PhraseChanged   bool
	MatchChanged    bool
	OverflowChanged bool

	// StructuralChange covers the source, model path, VAD and recognizer
	// settings, which need a rebuild.
	StructuralChange bool

	Added   bool
	Removed bool
}

// Empty reports whether the two configs behave identically.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.RestartRequired && len(d.TriggerChanges) == 0
}

// HotReloadable reports whether the trigger change can be applied with
// Reconfigure.
func (td TriggerDiff) HotReloadable() bool {
	return !td.Added && !td.Removed && !td.StructuralChange
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Telemetry != new.Telemetry ||
		old.Events != new.Events ||
		!equalSources(old.Sources, new.Sources) {
		d.RestartRequired = true
	}

	oldTriggers := make(map[string]*TriggerConfig, len(old.Triggers))
	for i := range old.Triggers {
		oldTriggers[old.Triggers[i].Name] = &old.Triggers[i]
	}
	newTriggers := make(map[string]*TriggerConfig, len(new.Triggers))
	for i := range new.Triggers {
		newTriggers[new.Triggers[i].Name] = &new.Triggers[i]
	}

	// Walk the old list in order so the diff is deterministic.
	for i := range old.Triggers {
		name := old.Triggers[i].Name
		nt, exists := newTriggers[name]
		if !exists {
			d.TriggerChanges = append(d.TriggerChanges, TriggerDiff{Name: name, Removed: true})
			d.RestartRequired = true
			continue
		}
		td := diffTrigger(oldTriggers[name], nt)
		if td.PhraseChanged || td.MatchChanged || td.OverflowChanged || td.StructuralChange {
			d.TriggerChanges = append(d.TriggerChanges, td)
		}
		if td.StructuralChange {
			d.RestartRequired = true
		}
	}
	for i := range new.Triggers {
		name := new.Triggers[i].Name
		if _, exists := oldTriggers[name]; !exists {
			d.TriggerChanges = append(d.TriggerChanges, TriggerDiff{Name: name, Added: true})
			d.RestartRequired = true
		}
	}

	return d
}

// diffTrigger compares two trigger configs with the same name.
func diffTrigger(old, new *TriggerConfig) TriggerDiff {
	td := TriggerDiff{Name: old.Name}
	td.PhraseChanged = old.TriggerPhrase != new.TriggerPhrase
	td.MatchChanged = old.Match != new.Match
	td.OverflowChanged = old.OverflowPolicy != new.OverflowPolicy
	td.StructuralChange = old.Source != new.Source ||
		old.ModelPath != new.ModelPath ||
		old.Aggressiveness() != new.Aggressiveness() ||
		old.VAD != new.VAD ||
		!equalRecognizers(old.RecognizerChain(), new.RecognizerChain())
	return td
}

func equalSources(a, b []SourceConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalRecognizers(a, b []RecognizerEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name || x.Model != y.Model || x.BaseURL != y.BaseURL || x.APIKey != y.APIKey {
			return false
		}
		if !maps.EqualFunc(x.Options, y.Options, func(v, w any) bool { return reflect.DeepEqual(v, w) }) {
			return false
		}
	}
	return true
}
