package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Retry the handle method of the step with the specified policy.
//
// The processor never retries on its own, wrapping a step is how a caller opts in.
// Only the final failure reaches the processor. A PermanentError stops retrying early.
// The wrapper declares a compensation action only when the wrapped step does.
// The policy is reset at the start of every Handle call, so don't share a
// Retry step between runs that execute at the same time.
func Retry[T Context](policy backoff.BackOff, step Step[T]) Step[T] {
	rs := retryStep[T]{policy: policy, step: step}
	if c, ok := step.(Compensator[T]); ok {
		return &compensatingRetryStep[T]{retryStep: rs, compensator: c}
	}
	return &rs
}

type retryStep[T Context] struct {
	policy backoff.BackOff
	step   Step[T]
}

func (r *retryStep[T]) Name() string {
	return r.step.Name()
}

func (r *retryStep[T]) Handle(ctx context.Context, t T) (T, error) {
	policy := backoff.WithContext(r.policy, ctx)
	notifier := func(e error, next time.Duration) {
		publishRetry(ctx, e, next)
	}

	result := t
	op := func() error {
		nt, err := r.step.Handle(ctx, t)
		if err != nil {
			if e, ok := err.(*PermanentError); ok {
				return backoff.Permanent(e.Err)
			}
			return err
		}
		result = nt
		return nil
	}

	if err := backoff.RetryNotify(op, policy, notifier); err != nil {
		return t, err
	}
	return result, nil
}

type compensatingRetryStep[T Context] struct {
	retryStep[T]
	compensator Compensator[T]
}

func (c *compensatingRetryStep[T]) Compensate(ctx context.Context, t T) (T, error) {
	return c.compensator.Compensate(ctx, t)
}
