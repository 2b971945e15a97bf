package trigger

import (
	"context"

	"github.com/looplab/fsm"
)

// Phases of a streaming session.
const (
	PhaseIdle      = "idle"
	PhaseBuffering = "buffering"
	PhaseDeciding  = "deciding"
)

// Phase transitions.
const (
	eventSpeech = "speech"
	eventDecide = "decide"
	eventReset  = "reset"
)

// phaseMachine tracks Idle → Buffering → Deciding → Idle for one session.
type phaseMachine struct {
	f *fsm.FSM
}

func newPhaseMachine(onEnter func(from, to string)) *phaseMachine {
	callbacks := fsm.Callbacks{}
	if onEnter != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			onEnter(e.Src, e.Dst)
		}
	}
	return &phaseMachine{f: fsm.NewFSM(
		PhaseIdle,
		fsm.Events{
			{Name: eventSpeech, Src: []string{PhaseIdle}, Dst: PhaseBuffering},
			{Name: eventDecide, Src: []string{PhaseBuffering}, Dst: PhaseDeciding},
			{Name: eventReset, Src: []string{PhaseBuffering, PhaseDeciding}, Dst: PhaseIdle},
		},
		callbacks,
	)}
}

// fire applies event. An event that is not valid from the current phase
// leaves it unchanged and returns an [fsm.InvalidEventError].
func (p *phaseMachine) fire(ctx context.Context, event string) error {
	return p.f.Event(ctx, event)
}

func (p *phaseMachine) current() string { return p.f.Current() }

func (p *phaseMachine) is(phase string) bool { return p.f.Is(phase) }
