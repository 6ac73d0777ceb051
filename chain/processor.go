package chain

import (
	"context"
	"sync"

	"github.com/casualjim/relay"
	"github.com/casualjim/relay/eventbus"
	"github.com/casualjim/relay/future"
	"github.com/rcrowley/go-metrics"
)

// DefaultName is used for pipelines that weren't given a name
const DefaultName = "chain"

// Option represents a configuration option for a processor
type Option func(*config)

type config struct {
	name     string
	log      relay.Logger
	bus      eventbus.EventBus
	registry metrics.Registry
}

// Named gives the pipeline a name, it's used as prefix for the metrics
// and is carried on every event
func Named(name string) Option {
	return func(c *config) { c.name = name }
}

// LogWith is used to log the progress of a run.
// The logger is also made available to steps and hooks through relay.ContextLogger.
// When no logger is configured the logger found on the context passed to Run is used.
func LogWith(log relay.Logger) Option {
	return func(c *config) { c.log = log }
}

// PublishTo sends lifecycle events to an existing eventbus
func PublishTo(bus eventbus.EventBus) Option {
	return func(c *config) { c.bus = bus }
}

// WithRegistry records the metrics in the provided registry instead of metrics.DefaultRegistry
func WithRegistry(registry metrics.Registry) Option {
	return func(c *config) { c.registry = registry }
}

// New creates a processor without steps and without hooks
func New[T Context](opts ...Option) *Processor[T] {
	cfg := config{
		name:     DefaultName,
		bus:      eventbus.NopBus,
		registry: metrics.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Processor[T]{cfg: cfg}
}

// Processor runs an ordered list of steps over a single context.
//
// The processor itself holds no state that belongs to a run, so one processor
// can serve several runs at once as long as each run gets its own context.
type Processor[T Context] struct {
	cfg config

	m           sync.RWMutex
	steps       []Step[T]
	before      Hook[T]
	after       Hook[T]
	finally     Hook[T]
	onException ExceptionHook[T]
}

// AddSteps appends steps to the pipeline, call order defines pipeline order
func (p *Processor[T]) AddSteps(steps ...Step[T]) *Processor[T] {
	p.m.Lock()
	p.steps = append(p.steps, steps...)
	p.m.Unlock()
	return p
}

// Before sets the hook that runs before the first step
func (p *Processor[T]) Before(hook Hook[T]) *Processor[T] {
	p.m.Lock()
	p.before = hook
	p.m.Unlock()
	return p
}

// After sets the hook that runs after the last executed step when nothing failed
func (p *Processor[T]) After(hook Hook[T]) *Processor[T] {
	p.m.Lock()
	p.after = hook
	p.m.Unlock()
	return p
}

// Finally sets the hook that runs at the end of every run, whatever the outcome
func (p *Processor[T]) Finally(hook Hook[T]) *Processor[T] {
	p.m.Lock()
	p.finally = hook
	p.m.Unlock()
	return p
}

// OnException sets the hook that decides whether a failure is rethrown
func (p *Processor[T]) OnException(hook ExceptionHook[T]) *Processor[T] {
	p.m.Lock()
	p.onException = hook
	p.m.Unlock()
	return p
}

// Name of the pipeline
func (p *Processor[T]) Name() string {
	return p.cfg.name
}

// Steps returns a copy of the registered steps
func (p *Processor[T]) Steps() []Step[T] {
	p.m.RLock()
	defer p.m.RUnlock()
	return append([]Step[T](nil), p.steps...)
}

// Run threads the context through the hooks and the steps.
//
// When subset is not empty only the steps at those zero-based positions are executed,
// in registered order. Cancellation of ctx is observed between steps and before the
// pre-run and post-run hooks, it's handled like a failure with ctx.Err() as error.
//
// The returned context is the one produced last. On failure the error is the
// original error returned by the step or hook, unless recovering from it failed too,
// see CompensationError and InterceptError.
func (p *Processor[T]) Run(ctx context.Context, t T, subset ...int) (T, error) {
	r := p.newRun(ctx, subset)
	if len(r.steps) == 0 {
		r.log.Debugf("pipeline %s has no steps", p.cfg.name)
		return t, ErrEmptyPipeline
	}
	return r.execute(t)
}

// Go runs the pipeline in a goroutine and returns a future for the result.
// Cancelling the future cancels the context of the run.
func (p *Processor[T]) Go(ctx context.Context, t T, subset ...int) future.Future[T] {
	return future.Do(ctx, func(ctx context.Context) (T, error) {
		return p.Run(ctx, t, subset...)
	})
}
