package future

import (
	"context"
	"sync"
)

type result[T any] struct {
	value T
	err   error
}

// Future represents a value that will become available in the future.
//
// This is loosely based on this paper: http://www.home.hs-karlsruhe.de/~suma0002/publications/events-to-futures.pdf
type Future[T any] interface {
	// Get blocks until the value is available or the future was canceled.
	// It can be called any number of times, it always returns the same result.
	Get() (T, error)
	// Done is closed once Get would no longer block
	Done() <-chan struct{}
	// Cancel the context that was passed to the function
	Cancel()
}

// Do creates a future that executes the function in a go routine.
// The function receives a context derived from ctx that is canceled when Cancel is called,
// a function that honors it makes Get return as soon as it noticed.
// Cancel doesn't interrupt the function, Get keeps waiting for its result.
func Do[T any](ctx context.Context, fn func(context.Context) (T, error)) Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	inner, cancel := context.WithCancel(ctx)
	f := &future[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		defer cancel()
		v, e := fn(inner)
		f.val = result[T]{value: v, err: e}
	}()
	return f
}

// Value creates a future that is already resolved
func Value[T any](v T, err error) Future[T] {
	f := &future[T]{
		cancel: func() {},
		done:   make(chan struct{}),
		val:    result[T]{value: v, err: err},
	}
	close(f.done)
	return f
}

// AndThen chains a continuation that runs when the future resolved without error.
// The error of the first future short-circuits the continuation.
func AndThen[T, U any](f Future[T], fn func(T) (U, error)) Future[U] {
	return Do(context.Background(), func(context.Context) (U, error) {
		v, err := f.Get()
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}

type future[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	val    result[T]
}

func (f *future[T]) Get() (T, error) {
	<-f.done
	return f.val.value, f.val.err
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) Cancel() {
	f.once.Do(f.cancel)
}
