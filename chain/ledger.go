package chain

import (
	"context"

	multierror "github.com/hashicorp/go-multierror"
)

// Ledger records the compensation actions of steps that completed successfully.
// A ledger belongs to a single run: the processor creates one when a run starts
// and drops it when the run ends.
type Ledger[T Context] struct {
	entries []compensation[T]
	watch   func(name string, index int, state State, err error)
}

type compensation[T Context] struct {
	name   string
	index  int
	action Action[T]
}

// Record appends a compensation action for the step with the given name and position
func (l *Ledger[T]) Record(name string, index int, action Action[T]) {
	if action == nil {
		return
	}
	l.entries = append(l.entries, compensation[T]{name: name, index: index, action: action})
}

// Len is the number of recorded actions
func (l *Ledger[T]) Len() int {
	return len(l.entries)
}

// Watch registers a callback that is told about each action as it runs
func (l *Ledger[T]) Watch(fn func(name string, index int, state State, err error)) {
	l.watch = fn
}

// RunAll invokes the recorded actions in the order they were recorded,
// each action receives the context produced by the previous one.
// An action that fails leaves the context as it received it, the remaining
// actions still run. The returned error holds every failure.
// The ledger is empty afterwards.
func (l *Ledger[T]) RunAll(ctx context.Context, t T) (T, error) {
	entries := l.entries
	l.entries = nil

	var result *multierror.Error
	for _, entry := range entries {
		l.notify(entry, StateProcessing, nil)
		nt, err := invoke(withStep(ctx, entry.name, entry.index), entry.action, t)
		if err != nil {
			result = multierror.Append(result, err)
			l.notify(entry, StateFailed, err)
			continue
		}
		t = nt
		l.notify(entry, StateSuccess, nil)
	}
	return t, result.ErrorOrNil()
}

func (l *Ledger[T]) notify(entry compensation[T], state State, err error) {
	if l.watch != nil {
		l.watch(entry.name, entry.index, state, err)
	}
}
