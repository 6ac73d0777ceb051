package chain

import "context"

// Context is the payload threaded through every step of a pipeline.
// When Aborted reports true the processor stops before the next step.
// Run calls Aborted on the context it was given, a nil pointer context is not allowed.
type Context interface {
	Aborted() bool
}

// A Step encapsulates a unit of work.
// Handle receives the context produced by the previous step and returns
// the context for the next one.
type Step[T Context] interface {
	Name() string
	Handle(context.Context, T) (T, error)
}

// Compensator is implemented by steps that declare a compensation action.
// It is invoked only when a later step or the post-run hook fails.
type Compensator[T Context] interface {
	Compensate(context.Context, T) (T, error)
}

// Action transforms a context, it's the shape of both handle and compensate
type Action[T Context] func(context.Context, T) (T, error)

// Hook is a pre-run, post-run or finally callback.
// The returned context replaces the one it received unless the hook fails.
type Hook[T Context] func(context.Context, T) (T, error)

// ExceptionHook is called with the failure after compensation ran.
// Returning true rethrows err to the caller, false swallows it.
// The returned context replaces the one it received unless the hook fails.
type ExceptionHook[T Context] func(context.Context, T, error) (T, bool, error)

// A Decider for determining to rethrow an error or not
type Decider func(error) bool
