// Package monitor keeps track of the state of pipeline runs by listening to the
// events a chain.Processor publishes.
package monitor

import (
	"sync"
	"time"

	"github.com/casualjim/relay/chain"
	"github.com/casualjim/relay/eventbus"
)

// StepInfo contains the information about a step in a run
type StepInfo struct {
	Name      string
	Index     int
	Phase     chain.Phase
	State     chain.State
	Reason    error
	Retry     []error
	NextRetry time.Duration
}

// RunInfo contains the information about a single run of a pipeline
type RunInfo struct {
	ID         string
	Pipeline   string
	State      chain.State
	Reason     error
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepInfo
	Hooks      map[chain.Phase]chain.State
}

// Monitor tracks runs, subscribe its Handler on the bus the processor publishes to
type Monitor struct {
	m     sync.RWMutex
	runs  map[string]*RunInfo
	order []string
}

// New creates a monitor that doesn't know about any run yet
func New() *Monitor {
	return &Monitor{runs: make(map[string]*RunInfo, 50)}
}

// Handler returns the event handler that feeds the monitor
func (m *Monitor) Handler() eventbus.EventHandler {
	return eventbus.Handler(m.track)
}

func (m *Monitor) track(evt eventbus.Event) error {
	switch evt.Name {
	case chain.TopicRun:
		if et, ok := evt.Args.(chain.RunEvent); ok {
			m.addRunEvent(evt.At, et)
		}
	case chain.TopicLifecycle:
		if et, ok := evt.Args.(chain.LifecycleEvent); ok && et.Phase != chain.PhaseInit {
			m.addLifecycleEvent(et)
		}
	case chain.TopicRetry:
		if et, ok := evt.Args.(chain.RetryEvent); ok {
			m.addRetryEvent(et)
		}
	}
	return nil
}

func (m *Monitor) addRunEvent(at time.Time, evt chain.RunEvent) {
	m.m.Lock()
	defer m.m.Unlock()

	info, ok := m.runs[evt.RunID]
	if !ok {
		if evt.State != chain.StateProcessing {
			return
		}
		info = &RunInfo{
			ID:        evt.RunID,
			Pipeline:  evt.Pipeline,
			StartedAt: at,
			Steps:     make([]StepInfo, len(evt.Steps)),
			Hooks:     make(map[chain.Phase]chain.State, 4),
		}
		for i, name := range evt.Steps {
			info.Steps[i] = StepInfo{
				Name:  name,
				Index: i,
				Phase: chain.PhaseInit,
				State: chain.StateWaiting,
			}
		}
		m.runs[evt.RunID] = info
		m.order = append(m.order, evt.RunID)
	}
	info.State = evt.State
	if evt.State != chain.StateProcessing {
		info.Reason = evt.Reason
		info.FinishedAt = at
	}
}

func (m *Monitor) addLifecycleEvent(evt chain.LifecycleEvent) {
	m.m.Lock()
	defer m.m.Unlock()

	info, ok := m.runs[evt.RunID]
	if !ok {
		return
	}
	if evt.Index < 0 {
		info.Hooks[evt.Phase] = evt.State
		return
	}
	if evt.Index >= len(info.Steps) {
		return
	}
	step := &info.Steps[evt.Index]
	step.Phase = evt.Phase
	step.State = evt.State
	if evt.State == chain.StateFailed || evt.State == chain.StateCanceled {
		step.Reason = evt.Reason
	}
}

func (m *Monitor) addRetryEvent(evt chain.RetryEvent) {
	m.m.Lock()
	defer m.m.Unlock()

	info, ok := m.runs[evt.RunID]
	if !ok || evt.Index < 0 || evt.Index >= len(info.Steps) {
		return
	}
	step := &info.Steps[evt.Index]
	step.Retry = append(step.Retry, evt.Reason)
	step.NextRetry = evt.Next
}

// Run returns a snapshot of the run with the given id
func (m *Monitor) Run(id string) (RunInfo, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	info, ok := m.runs[id]
	if !ok {
		return RunInfo{}, false
	}
	return info.clone(), true
}

// Step returns a snapshot of the step at index in the run with the given id
func (m *Monitor) Step(id string, index int) (StepInfo, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	info, ok := m.runs[id]
	if !ok || index < 0 || index >= len(info.Steps) {
		return StepInfo{}, false
	}
	return info.Steps[index].clone(), true
}

// Runs returns the ids of the known runs in the order they started
func (m *Monitor) Runs() []string {
	m.m.RLock()
	defer m.m.RUnlock()
	return append([]string(nil), m.order...)
}

// Forget drops everything the monitor knows about a run
func (m *Monitor) Forget(id string) {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.runs[id]; !ok {
		return
	}
	delete(m.runs, id)
	for i, known := range m.order {
		if known == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (r *RunInfo) clone() RunInfo {
	c := *r
	c.Steps = make([]StepInfo, len(r.Steps))
	for i, st := range r.Steps {
		c.Steps[i] = st.clone()
	}
	c.Hooks = make(map[chain.Phase]chain.State, len(r.Hooks))
	for k, v := range r.Hooks {
		c.Hooks[k] = v
	}
	return c
}

func (s StepInfo) clone() StepInfo {
	s.Retry = append([]error(nil), s.Retry...)
	return s
}
