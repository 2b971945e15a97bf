package trigger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/voicetrigger/pkg/audio"
)

// Model is the registration identity of the trigger component kind.
const Model = "voicetrigger:filter-mic:trigger"

// DefaultModelPath is the recognition model location used when none is
// configured.
const DefaultModelPath = "~/vosk-model-small-en-us-0.15"

// Segmentation constants.
const (
	SampleRate       = 16000
	FrameDuration    = 30 * time.Millisecond
	MaxSilenceFrames = 30
	MaxBufferBytes   = 500000
)

// DefaultVADAggressiveness is used when the configuration leaves it unset.
const DefaultVADAggressiveness = 3

// ErrNotImplemented is returned by operations the component does not support.
var ErrNotImplemented = errors.New("trigger: not implemented")

// MatchMode selects how a transcription is compared with the phrase.
type MatchMode string

const (
	// MatchSubstring accepts any transcription containing the phrase as a
	// contiguous substring. "robot" matches "robotics lab".
	MatchSubstring MatchMode = "substring"

	// MatchPhonetic accepts transcriptions containing a run of words that
	// sounds like the phrase.
	MatchPhonetic MatchMode = "phonetic"
)

// OverflowPolicy decides when an overlong segment is force-completed.
type OverflowPolicy string

const (
	// OverflowAlways flushes any buffer past the cap.
	OverflowAlways OverflowPolicy = "always"

	// OverflowWhileSpeaking flushes past the cap only while the last frame
	// was speech. A buffer past twice the cap is flushed regardless.
	OverflowWhileSpeaking OverflowPolicy = "while_speaking"
)

// Config is the immutable configuration of one trigger.
type Config struct {
	// Name identifies the trigger in logs, metrics and the decision log.
	Name string

	// Source names the upstream provider. Empty means no upstream; GetAudio
	// is then a no-op.
	Source string

	// TriggerPhrase is lower-cased by [Config.Normalize]. Empty never matches.
	TriggerPhrase string

	// VADAggressiveness ranges over 0–3. Loaders apply
	// [DefaultVADAggressiveness] when the setting is absent.
	VADAggressiveness int

	// ModelPath locates the recognition model. "~" is expanded.
	ModelPath string

	MatchMode      MatchMode
	OverflowPolicy OverflowPolicy

	// SampleRate, FrameDuration, MaxSilenceFrames and MaxBufferBytes default
	// to the package constants when zero.
	SampleRate       int
	FrameDuration    time.Duration
	MaxSilenceFrames int
	MaxBufferBytes   int
}

// Normalize fills defaults, lower-cases the phrase and expands the model path.
// It returns a copy.
func (c Config) Normalize() Config {
	c.TriggerPhrase = strings.ToLower(strings.TrimSpace(c.TriggerPhrase))
	if c.ModelPath == "" {
		c.ModelPath = DefaultModelPath
	}
	c.ModelPath = ExpandHome(c.ModelPath)
	if c.MatchMode == "" {
		c.MatchMode = MatchSubstring
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = OverflowAlways
	}
	if c.SampleRate == 0 {
		c.SampleRate = SampleRate
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = FrameDuration
	}
	if c.MaxSilenceFrames == 0 {
		c.MaxSilenceFrames = MaxSilenceFrames
	}
	if c.MaxBufferBytes == 0 {
		c.MaxBufferBytes = MaxBufferBytes
	}
	return c
}

// FrameBytes returns the byte length of one VAD frame.
func (c Config) FrameBytes() int {
	return audio.FrameBytes(c.SampleRate, c.FrameDuration)
}

// Validate checks c and returns the names of the providers it depends on.
// The source is a required dependency when non-empty.
func (c Config) Validate() (deps []string, err error) {
	var errs []error
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("trigger: vad_aggressiveness must be in [0, 3], got %d", c.VADAggressiveness))
	}
	switch c.MatchMode {
	case "", MatchSubstring, MatchPhonetic:
	default:
		errs = append(errs, fmt.Errorf("trigger: unknown match mode %q", c.MatchMode))
	}
	switch c.OverflowPolicy {
	case "", OverflowAlways, OverflowWhileSpeaking:
	default:
		errs = append(errs, fmt.Errorf("trigger: unknown overflow policy %q", c.OverflowPolicy))
	}
	if c.MaxSilenceFrames < 0 || c.MaxBufferBytes < 0 {
		errs = append(errs, errors.New("trigger: segmentation limits must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if c.Source != "" {
		deps = append(deps, c.Source)
	}
	return deps, nil
}

// ExpandHome replaces a leading "~" with the user's home directory. Paths
// without it, and paths when the home directory is unknown, are returned
// unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
