package chain

import "context"

// StepName represents a step name
type StepName string

// Name method to make it easier to build named steps
func (s StepName) Name() string {
	return string(s)
}

// Flag is embedded in a context type to give it the abort switch.
// The methods have pointer receivers, so the context is passed around as a pointer.
type Flag struct {
	aborted bool
}

// Abort stops the pipeline before the next step, it's not a failure
func (f *Flag) Abort() { f.aborted = true }

// Resume clears the abort switch
func (f *Flag) Resume() { f.aborted = false }

// Aborted returns true when Abort was called
func (f *Flag) Aborted() bool { return f.aborted }

// Func creates a step from functions. A nil compensate means the step
// doesn't declare a compensation action.
func Func[T Context](name StepName, handle, compensate Action[T]) Step[T] {
	st := funcStep[T]{StepName: name, handle: handle}
	if compensate == nil {
		return &st
	}
	return &compensatingFuncStep[T]{funcStep: st, compensate: compensate}
}

// Empty is a step that passes the context along untouched
func Empty[T Context]() Step[T] {
	return Func[T]("<empty>", nil, nil)
}

type funcStep[T Context] struct {
	StepName
	handle Action[T]
}

func (f *funcStep[T]) Handle(ctx context.Context, t T) (T, error) {
	if f.handle == nil {
		return t, nil
	}
	return f.handle(ctx, t)
}

type compensatingFuncStep[T Context] struct {
	funcStep[T]
	compensate Action[T]
}

func (c *compensatingFuncStep[T]) Compensate(ctx context.Context, t T) (T, error) {
	return c.compensate(ctx, t)
}
