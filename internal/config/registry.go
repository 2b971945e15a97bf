package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voicetrigger/pkg/audio"
	"github.com/MrWong99/voicetrigger/pkg/provider/stt"
	"github.com/MrWong99/voicetrigger/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]func(RecognizerEntry) (stt.Recognizer, error)
	vad         map[string]func(TriggerConfig) (vad.Engine, error)
	sources     map[string]func(SourceConfig) (audio.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]func(RecognizerEntry) (stt.Recognizer, error)),
		vad:         make(map[string]func(TriggerConfig) (vad.Engine, error)),
		sources:     make(map[string]func(SourceConfig) (audio.Provider, error)),
	}
}

// RegisterRecognizer registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(RecognizerEntry) (stt.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(TriggerConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSource registers a source factory under kind.
func (r *Registry) RegisterSource(kind string, factory func(SourceConfig) (audio.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[kind] = factory
}

// CreateRecognizer instantiates the recognizer registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateRecognizer(entry RecognizerEntry) (stt.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD instantiates the VAD engine registered under name for tc.
func (r *Registry) CreateVAD(name string, tc TriggerConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, name)
	}
	return factory(tc)
}

// CreateSource instantiates the source registered under sc.Kind.
func (r *Registry) CreateSource(sc SourceConfig) (audio.Provider, error) {
	r.mu.RLock()
	factory, ok := r.sources[sc.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrProviderNotRegistered, sc.Kind)
	}
	return factory(sc)
}

// Names returns the sorted names registered for kind ("recognizer", "vad" or
// "source").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "recognizer":
		for n := range r.recognizers {
			names = append(names, n)
		}
	case "vad":
		for n := range r.vad {
			names = append(names, n)
		}
	case "source":
		for n := range r.sources {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
