package chain_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/casualjim/relay/chain"
	"github.com/casualjim/relay/eventbus"
)

type testCtx struct {
	chain.Flag
	Trace []string
}

func (c *testCtx) add(s string) { c.Trace = append(c.Trace, s) }

func newTestCtx() *testCtx { return &testCtx{} }

func traced(name string, compensate bool) chain.Step[*testCtx] {
	handle := func(_ context.Context, c *testCtx) (*testCtx, error) {
		c.add("run:" + name)
		return c, nil
	}
	var comp chain.Action[*testCtx]
	if compensate {
		comp = func(_ context.Context, c *testCtx) (*testCtx, error) {
			c.add("undo:" + name)
			return c, nil
		}
	}
	return chain.Func[*testCtx](chain.StepName(name), handle, comp)
}

func failing(name string, err error) chain.Step[*testCtx] {
	return chain.Func[*testCtx](chain.StepName(name), func(_ context.Context, c *testCtx) (*testCtx, error) {
		c.add("fail:" + name)
		return c, err
	}, nil)
}

func traceHook(entry string) chain.Hook[*testCtx] {
	return func(_ context.Context, c *testCtx) (*testCtx, error) {
		c.add(entry)
		return c, nil
	}
}

func failHook(entry string, err error) chain.Hook[*testCtx] {
	return func(_ context.Context, c *testCtx) (*testCtx, error) {
		c.add(entry)
		return c, err
	}
}

func decide(entry string, rethrow bool) chain.ExceptionHook[*testCtx] {
	return func(_ context.Context, c *testCtx, _ error) (*testCtx, bool, error) {
		c.add(entry)
		return c, rethrow, nil
	}
}

type countingStep struct {
	chain.StepName
	run      func(context.Context, *testCtx) (*testCtx, error)
	runCount int64
}

func (c *countingStep) Handle(ctx context.Context, t *testCtx) (*testCtx, error) {
	atomic.AddInt64(&c.runCount, 1)
	if c.run != nil {
		return c.run(ctx, t)
	}
	return t, nil
}

func (c *countingStep) Runs() int {
	return int(atomic.LoadInt64(&c.runCount))
}

type countingCompensator struct {
	countingStep
	compensateCount int64
}

func (c *countingCompensator) Compensate(_ context.Context, t *testCtx) (*testCtx, error) {
	atomic.AddInt64(&c.compensateCount, 1)
	return t, nil
}

func (c *countingCompensator) Compensations() int {
	return int(atomic.LoadInt64(&c.compensateCount))
}

// collector keeps every event it receives, read it after closing the bus
type collector struct {
	m      sync.Mutex
	events []eventbus.Event
}

func (c *collector) On(evt eventbus.Event) error {
	c.m.Lock()
	c.events = append(c.events, evt)
	c.m.Unlock()
	return nil
}

func (c *collector) lifecycle() []chain.LifecycleEvent {
	c.m.Lock()
	defer c.m.Unlock()
	var result []chain.LifecycleEvent
	for _, evt := range c.events {
		if lce, ok := evt.Args.(chain.LifecycleEvent); ok {
			result = append(result, lce)
		}
	}
	return result
}

func (c *collector) runs() []chain.RunEvent {
	c.m.Lock()
	defer c.m.Unlock()
	var result []chain.RunEvent
	for _, evt := range c.events {
		if re, ok := evt.Args.(chain.RunEvent); ok {
			result = append(result, re)
		}
	}
	return result
}
