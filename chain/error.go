package chain

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/errwrap"
)

// ErrEmptyPipeline is returned by Run when no steps were registered
var ErrEmptyPipeline = errors.New("no steps provided, at least one step is required")

// IsCanceled returns true when this error contains or is an error
// that means execution was canceled
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errwrap.Contains(err, context.Canceled.Error()) ||
		errwrap.Contains(err, context.DeadlineExceeded.Error())
}

// CompensationError is returned when one or more compensation actions failed
// while recovering from Cause. Err holds every failure of the compensation actions.
type CompensationError struct {
	Cause error
	Err   error
}

func (c *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed: %v (while handling: %v)", c.Err, c.Cause)
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (c *CompensationError) WrappedErrors() []error {
	return []error{c.Cause, c.Err}
}

// Unwrap makes both the cause and the compensation failure visible to errors.Is and errors.As
func (c *CompensationError) Unwrap() []error {
	return []error{c.Cause, c.Err}
}

// InterceptError is returned when the on-exception hook itself failed
// while it was handling Cause
type InterceptError struct {
	Cause error
	Err   error
}

func (i *InterceptError) Error() string {
	return fmt.Sprintf("exception hook failed: %v (while handling: %v)", i.Err, i.Cause)
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (i *InterceptError) WrappedErrors() []error {
	return []error{i.Cause, i.Err}
}

// Unwrap makes both the cause and the hook failure visible to errors.Is and errors.As
func (i *InterceptError) Unwrap() []error {
	return []error{i.Cause, i.Err}
}

// PermanentErr returns a permanent error for use in the retry policy as circuit breaker
func PermanentErr(err error) *PermanentError {
	switch e := err.(type) {
	case *backoff.PermanentError:
		return &PermanentError{Err: e.Err}
	case *PermanentError:
		return e
	default:
		return &PermanentError{Err: err}
	}
}

// PermanentError signals to a Retry step that the operation should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

// WrappedErrors implements errwrap.Wrapper from https://github.com/hashicorp/errwrap
func (e *PermanentError) WrappedErrors() []error {
	return []error{e.Err}
}

// Unwrap returns the error that shouldn't be retried
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// PanicError is the failure reported for a step, hook or compensation action that panicked.
// It goes through compensation and the exception hook like any other failure.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap returns the panic value when it is an error, a runtime.Error for example
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

func capturePanic(err *error) {
	if rec := recover(); rec != nil {
		*err = &PanicError{Value: rec, Stack: debug.Stack()}
	}
}

func invoke[T Context](ctx context.Context, fn Action[T], t T) (_ T, err error) {
	defer capturePanic(&err)
	return fn(ctx, t)
}

func intercept[T Context](ctx context.Context, fn ExceptionHook[T], t T, cause error) (_ T, _ bool, err error) {
	defer capturePanic(&err)
	return fn(ctx, t, cause)
}
