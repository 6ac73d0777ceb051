package chain

import "context"

// Intercept turns a decider into an on-exception hook.
// The decider returns true when the error has to be rethrown.
//
//	chain.New[*Order]().OnException(chain.Intercept[*Order](rethrow.OnCancel))
func Intercept[T Context](rethrow Decider) ExceptionHook[T] {
	return func(_ context.Context, t T, err error) (T, bool, error) {
		return t, rethrow(err), nil
	}
}
