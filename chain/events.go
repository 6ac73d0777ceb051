package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/relay/chain/internal"
	"github.com/casualjim/relay/eventbus"
)

var stateKeyNames map[State]string
var namedStateKeys map[string]State

func init() {
	stateKeyNames = map[State]string{
		StateUnknown:    "unknown",
		StateWaiting:    "waiting",
		StateSkipped:    "skipped",
		StateProcessing: "processing",
		StateSuccess:    "completed",
		StateFailed:     "failed",
		StateCanceled:   "canceled",
		StateAborted:    "aborted",
		StateSuppressed: "suppressed",
	}

	namedStateKeys = make(map[string]State, len(stateKeyNames))
	for k, v := range stateKeyNames {
		namedStateKeys[v] = k
	}
}

// StateFromString creates a state from a string
func StateFromString(name string) (State, error) {
	if v, ok := namedStateKeys[name]; ok {
		return v, nil
	}
	return StateUnknown, fmt.Errorf("invalid state %q", name)
}

// State of a step, a hook or a run
type State uint8

const (
	// StateUnknown indicates the state is unknown
	StateUnknown State = iota
	// StateWaiting indicates the step is known but hasn't started yet
	StateWaiting
	// StateProcessing indicates the step is currently executing
	StateProcessing
	// StateSkipped indicates the step was left out of the run
	StateSkipped
	// StateSuccess indicates the step was executed successfully
	StateSuccess
	// StateFailed indicates the step has failed
	StateFailed
	// StateCanceled indicates the run was canceled
	StateCanceled
	// StateAborted indicates the run stopped early because the context asked for it
	StateAborted
	// StateSuppressed indicates the run failed but the exception hook swallowed the error
	StateSuppressed
)

func (e State) String() string {
	return stateKeyNames[e]
}

// MarshalText renders this state to text
func (e State) MarshalText() (text []byte, err error) {
	return []byte(stateKeyNames[e]), nil
}

// UnmarshalText parses this state from text
func (e *State) UnmarshalText(text []byte) error {
	st, err := StateFromString(string(text))
	if err != nil {
		return err
	}
	*e = st
	return nil
}

var phaseKeyNames map[Phase]string
var namedPhaseKeys map[string]Phase

func init() {
	phaseKeyNames = map[Phase]string{
		PhaseInit:       "init",
		PhaseBefore:     "before",
		PhaseStep:       "step",
		PhaseCompensate: "compensate",
		PhaseAfter:      "after",
		PhaseException:  "exception",
		PhaseFinally:    "finally",
	}

	namedPhaseKeys = make(map[string]Phase, len(phaseKeyNames))
	for k, v := range phaseKeyNames {
		namedPhaseKeys[v] = k
	}
}

// PhaseFromString creates a phase from a string
func PhaseFromString(name string) (Phase, error) {
	if v, ok := namedPhaseKeys[name]; ok {
		return v, nil
	}
	return PhaseInit, fmt.Errorf("invalid phase %q", name)
}

// Phase indicates which part of a run an event belongs to.
// A failure in PhaseStep is a step failure, in PhaseBefore or PhaseAfter a hook failure
// and in PhaseCompensate a compensation failure.
type Phase uint8

const (
	// PhaseInit is used for steps that haven't been reached yet
	PhaseInit Phase = iota
	// PhaseBefore is the pre-run hook
	PhaseBefore
	// PhaseStep is the handle method of a step
	PhaseStep
	// PhaseCompensate is the compensation action of a step
	PhaseCompensate
	// PhaseAfter is the post-run hook
	PhaseAfter
	// PhaseException is the on-exception hook
	PhaseException
	// PhaseFinally is the finally hook
	PhaseFinally
)

func (e Phase) String() string {
	return phaseKeyNames[e]
}

// MarshalText renders this phase to text
func (e Phase) MarshalText() (text []byte, err error) {
	return []byte(phaseKeyNames[e]), nil
}

// UnmarshalText parses this phase from text
func (e *Phase) UnmarshalText(text []byte) error {
	p, err := PhaseFromString(string(text))
	if err != nil {
		return err
	}
	*e = p
	return nil
}

const (
	// TopicRun is the event topic for the start and the outcome of a run
	TopicRun = "run"
	// TopicLifecycle is the event topic for steps and hooks
	TopicLifecycle = "lifecycle"
	// TopicRetry is the event topic for retries
	TopicRetry = "retry"
)

// RunEvent is emitted when a run starts and when it's done
type RunEvent struct {
	RunID    string
	Pipeline string
	State    State
	Steps    []string
	Reason   error
}

// A LifecycleEvent is emitted for state transitions of steps and hooks.
// Index is -1 for hooks.
type LifecycleEvent struct {
	RunID    string
	Pipeline string
	Phase    Phase
	State    State
	Name     string
	Index    int
	Reason   error
}

// RetryEvent is emitted when a Retry step schedules another attempt
type RetryEvent struct {
	RunID  string
	Name   string
	Index  int
	Reason error
	Next   time.Duration
}

func publishRun(ctx context.Context, state State, steps []string, reason error) {
	internal.PublishEvent(ctx, TopicRun, RunEvent{
		RunID:    GetRunID(ctx),
		Pipeline: GetPipelineName(ctx),
		State:    state,
		Steps:    steps,
		Reason:   reason,
	})
}

func publishLifecycle(ctx context.Context, phase Phase, state State, name string, index int, reason error) {
	internal.PublishEvent(ctx, TopicLifecycle, LifecycleEvent{
		RunID:    GetRunID(ctx),
		Pipeline: GetPipelineName(ctx),
		Phase:    phase,
		State:    state,
		Name:     name,
		Index:    index,
		Reason:   reason,
	})
}

func publishRetry(ctx context.Context, reason error, next time.Duration) {
	internal.PublishEvent(ctx, TopicRetry, RetryEvent{
		RunID:  GetRunID(ctx),
		Name:   GetStepName(ctx),
		Index:  GetStepIndex(ctx),
		Reason: reason,
		Next:   next,
	})
}

// LifecycleEventFilter is an event filter that matches specific lifecycle events
func LifecycleEventFilter(phase Phase, state State) eventbus.EventPredicate {
	return func(evt eventbus.Event) bool {
		if evt.Name != TopicLifecycle {
			return false
		}
		lce, ok := evt.Args.(LifecycleEvent)
		return ok && lce.State == state && lce.Phase == phase
	}
}

// IsLifecycleEvent returns true if this is a lifecycle event for the given phase and given state
func IsLifecycleEvent(evt eventbus.Event, phase Phase, state State) bool {
	return LifecycleEventFilter(phase, state)(evt)
}

// RetryEventFilter an event handler filter that only selects retry events
func RetryEventFilter(evt eventbus.Event) bool {
	if evt.Name != TopicRetry {
		return false
	}
	_, ok := evt.Args.(RetryEvent)
	return ok
}

// RunEventFilter an event handler filter that only selects run events
func RunEventFilter(evt eventbus.Event) bool {
	if evt.Name != TopicRun {
		return false
	}
	_, ok := evt.Args.(RunEvent)
	return ok
}
