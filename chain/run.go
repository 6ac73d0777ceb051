package chain

import (
	"context"
	"time"

	"github.com/casualjim/relay"
	"github.com/casualjim/relay/chain/internal"
	"github.com/rcrowley/go-metrics"
	"github.com/segmentio/ksuid"
)

// run is the state of a single invocation of Run, nothing in here outlives it
type run[T Context] struct {
	id   string
	name string
	ctx  context.Context
	log  relay.Logger
	reg  metrics.Registry

	steps       []Step[T]
	subset      map[int]struct{}
	before      Hook[T]
	after       Hook[T]
	finally     Hook[T]
	onException ExceptionHook[T]

	ledger     Ledger[T]
	aborted    bool
	suppressed bool
}

func (p *Processor[T]) newRun(ctx context.Context, subset []int) *run[T] {
	p.m.RLock()
	r := &run[T]{
		id:          ksuid.New().String(),
		name:        p.cfg.name,
		reg:         p.cfg.registry,
		steps:       append([]Step[T](nil), p.steps...),
		before:      p.before,
		after:       p.after,
		finally:     p.finally,
		onException: p.onException,
	}
	p.m.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}
	r.log = p.cfg.log
	if r.log == nil {
		r.log = relay.ContextLogger(ctx)
	} else {
		ctx = relay.SetLogger(ctx, r.log)
	}
	ctx = internal.SetPublisher(ctx, p.cfg.bus)
	ctx = context.WithValue(ctx, internal.RunIDKey, r.id)
	r.ctx = context.WithValue(ctx, internal.PipelineKey, r.name)

	if len(subset) > 0 {
		r.subset = make(map[int]struct{}, len(subset))
		for _, idx := range subset {
			r.subset[idx] = struct{}{}
		}
	}
	r.ledger.Watch(func(name string, index int, state State, err error) {
		publishLifecycle(r.cleanupContext(), PhaseCompensate, state, name, index, err)
		if state == StateSuccess {
			r.counter("compensations").Inc(1)
		}
	})
	return r
}

func (r *run[T]) execute(t T) (T, error) {
	start := time.Now()
	publishRun(r.ctx, StateProcessing, r.stepNames(), nil)
	r.log.Debugf("[%s] starting pipeline %s with %d steps", r.id, r.name, len(r.steps))

	t, err := r.proceed(t)
	if err != nil {
		t, err = r.rescue(t, err)
	}
	t, err = r.finish(t, err)

	metrics.GetOrRegisterTimer(r.name+".run", r.reg).UpdateSince(start)
	state := r.outcome(err)
	publishRun(r.ctx, state, nil, err)
	r.log.Debugf("[%s] pipeline %s is %s after %v", r.id, r.name, state, time.Since(start))
	return t, err
}

// proceed runs the pre-run hook, the steps and the post-run hook.
// On failure it returns the context as it stood when the failure happened.
func (r *run[T]) proceed(t T) (T, error) {
	var err error
	if r.before != nil {
		if t, err = r.hook(r.ctx, PhaseBefore, r.before, t); err != nil {
			return t, err
		}
	}

	for i, step := range r.steps {
		if !r.selected(i) {
			publishLifecycle(r.ctx, PhaseStep, StateSkipped, step.Name(), i, nil)
			continue
		}
		if t.Aborted() {
			r.aborted = true
			r.counter("aborted").Inc(1)
			r.log.Infof("[%s] pipeline %s aborted before step %d (%s)", r.id, r.name, i, step.Name())
			publishLifecycle(r.ctx, PhaseStep, StateAborted, step.Name(), i, nil)
			break
		}
		if err := r.ctx.Err(); err != nil {
			publishLifecycle(r.ctx, PhaseStep, StateCanceled, step.Name(), i, err)
			return t, err
		}

		nt, err := r.handle(step, i, t)
		if err != nil {
			return t, err
		}
		t = nt
		if c, ok := step.(Compensator[T]); ok {
			r.ledger.Record(step.Name(), i, c.Compensate)
		}
	}

	if r.after != nil {
		return r.hook(r.ctx, PhaseAfter, r.after, t)
	}
	return t, nil
}

func (r *run[T]) handle(step Step[T], index int, t T) (T, error) {
	name := step.Name()
	ctx := withStep(r.ctx, name, index)

	publishLifecycle(ctx, PhaseStep, StateProcessing, name, index, nil)
	r.log.Debugf("[%s] running step %d (%s)", r.id, index, name)
	start := time.Now()
	nt, err := invoke(ctx, step.Handle, t)
	metrics.GetOrRegisterTimer(r.name+".step."+name, r.reg).UpdateSince(start)
	if err != nil {
		publishLifecycle(ctx, PhaseStep, StateFailed, name, index, err)
		r.log.Debugf("[%s] step %d (%s) failed: %v", r.id, index, name, err)
		return t, err
	}
	publishLifecycle(ctx, PhaseStep, StateSuccess, name, index, nil)
	return nt, nil
}

// hook runs a pre-run, post-run or finally hook, a failing hook leaves the context as it received it
func (r *run[T]) hook(ctx context.Context, phase Phase, hook Hook[T], t T) (T, error) {
	name := phase.String()
	if phase != PhaseFinally {
		if err := ctx.Err(); err != nil {
			publishLifecycle(ctx, phase, StateCanceled, name, -1, err)
			return t, err
		}
	}
	publishLifecycle(ctx, phase, StateProcessing, name, -1, nil)
	nt, err := invoke(ctx, Action[T](hook), t)
	if err != nil {
		publishLifecycle(ctx, phase, StateFailed, name, -1, err)
		return t, err
	}
	publishLifecycle(ctx, phase, StateSuccess, name, -1, nil)
	return nt, nil
}

// rescue runs the compensation actions and asks the exception hook what to do with the failure
func (r *run[T]) rescue(t T, cause error) (T, error) {
	r.counter("failed").Inc(1)
	if r.ledger.Len() > 0 {
		r.log.Debugf("[%s] compensating %d steps", r.id, r.ledger.Len())
		var err error
		t, err = r.ledger.RunAll(r.cleanupContext(), t)
		if err != nil {
			r.log.Errorf("[%s] compensation failed: %v", r.id, err)
			return t, &CompensationError{Cause: cause, Err: err}
		}
	}

	if r.onException == nil {
		return t, cause
	}

	ctx := r.cleanupContext()
	publishLifecycle(ctx, PhaseException, StateProcessing, PhaseException.String(), -1, cause)
	nt, rethrow, err := intercept(ctx, r.onException, t, cause)
	if err != nil {
		publishLifecycle(ctx, PhaseException, StateFailed, PhaseException.String(), -1, err)
		return t, &InterceptError{Cause: cause, Err: err}
	}
	publishLifecycle(ctx, PhaseException, StateSuccess, PhaseException.String(), -1, nil)
	if rethrow {
		return nt, cause
	}
	r.suppressed = true
	r.counter("suppressed").Inc(1)
	r.log.Warnf("[%s] pipeline %s recovered from: %v", r.id, r.name, cause)
	return nt, nil
}

// finish runs the finally hook. An error that is already on its way out takes
// precedence over a failing finally hook.
func (r *run[T]) finish(t T, err error) (T, error) {
	if r.finally == nil {
		return t, err
	}
	t, ferr := r.hook(r.cleanupContext(), PhaseFinally, r.finally, t)
	if ferr == nil {
		return t, err
	}
	if err != nil {
		r.log.Warnf("[%s] finally hook failed while handling %v: %v", r.id, err, ferr)
		return t, err
	}
	return t, ferr
}

// cleanupContext keeps the values of the run context but drops its cancellation,
// compensation and finally have to run even when the run was canceled
func (r *run[T]) cleanupContext() context.Context {
	return context.WithoutCancel(r.ctx)
}

func (r *run[T]) selected(index int) bool {
	if r.subset == nil {
		return true
	}
	_, ok := r.subset[index]
	return ok
}

func (r *run[T]) outcome(err error) State {
	switch {
	case err != nil && IsCanceled(err):
		return StateCanceled
	case err != nil:
		return StateFailed
	case r.suppressed:
		return StateSuppressed
	case r.aborted:
		return StateAborted
	default:
		return StateSuccess
	}
}

func (r *run[T]) counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(r.name+"."+name, r.reg)
}

func (r *run[T]) stepNames() []string {
	names := make([]string, len(r.steps))
	for i, step := range r.steps {
		names[i] = step.Name()
	}
	return names
}
