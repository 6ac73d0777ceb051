package chain_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/casualjim/relay"
	"github.com/casualjim/relay/chain"
	"github.com/casualjim/relay/chain/rethrow"
	"github.com/casualjim/relay/eventbus"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseState struct {
	Phase chain.Phase
	State chain.State
	Name  string
	Index int
}

func TestRun_PublishesLifecycle(t *testing.T) {
	bus := eventbus.New(nil)
	events := &collector{}
	bus.Subscribe(events)

	var runID string
	first := chain.Func[*testCtx]("first", func(ctx context.Context, c *testCtx) (*testCtx, error) {
		runID = chain.GetRunID(ctx)
		return c, nil
	}, func(_ context.Context, c *testCtx) (*testCtx, error) { return c, nil })

	_, err := chain.New[*testCtx](chain.Named("observed"), chain.PublishTo(bus)).
		Before(traceHook("before")).
		Finally(traceHook("finally")).
		OnException(chain.Intercept[*testCtx](rethrow.Never)).
		AddSteps(traced("skipped", false), first, failing("second", assert.AnError)).
		Run(context.Background(), newTestCtx(), 1, 2)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	var seen []phaseState
	for _, lce := range events.lifecycle() {
		assert.Equal(t, runID, lce.RunID)
		assert.Equal(t, "observed", lce.Pipeline)
		seen = append(seen, phaseState{lce.Phase, lce.State, lce.Name, lce.Index})
	}
	assert.Equal(t, []phaseState{
		{chain.PhaseBefore, chain.StateProcessing, "before", -1},
		{chain.PhaseBefore, chain.StateSuccess, "before", -1},
		{chain.PhaseStep, chain.StateSkipped, "skipped", 0},
		{chain.PhaseStep, chain.StateProcessing, "first", 1},
		{chain.PhaseStep, chain.StateSuccess, "first", 1},
		{chain.PhaseStep, chain.StateProcessing, "second", 2},
		{chain.PhaseStep, chain.StateFailed, "second", 2},
		{chain.PhaseCompensate, chain.StateProcessing, "first", 1},
		{chain.PhaseCompensate, chain.StateSuccess, "first", 1},
		{chain.PhaseException, chain.StateProcessing, "exception", -1},
		{chain.PhaseException, chain.StateSuccess, "exception", -1},
		{chain.PhaseFinally, chain.StateProcessing, "finally", -1},
		{chain.PhaseFinally, chain.StateSuccess, "finally", -1},
	}, seen)

	runs := events.runs()
	require.Len(t, runs, 2)
	assert.Equal(t, chain.StateProcessing, runs[0].State)
	assert.Equal(t, []string{"skipped", "first", "second"}, runs[0].Steps)
	assert.Equal(t, chain.StateSuppressed, runs[1].State)
	assert.Equal(t, runID, runs[1].RunID)
}

func TestRun_RunOutcomes(t *testing.T) {
	bus := eventbus.New(nil)
	events := &collector{}
	bus.Subscribe(events)
	p := func() *chain.Processor[*testCtx] { return chain.New[*testCtx](chain.PublishTo(bus)) }

	p().AddSteps(traced("ok", false)).Run(context.Background(), newTestCtx())
	aborted := newTestCtx()
	aborted.Abort()
	p().AddSteps(traced("ok", false)).Run(context.Background(), aborted)
	p().AddSteps(failing("boom", assert.AnError)).Run(context.Background(), newTestCtx())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p().AddSteps(traced("ok", false)).Run(ctx, newTestCtx())
	require.NoError(t, bus.Close())

	var outcomes []chain.State
	for _, re := range events.runs() {
		if re.State != chain.StateProcessing {
			outcomes = append(outcomes, re.State)
		}
	}
	assert.Equal(t, []chain.State{chain.StateSuccess, chain.StateAborted, chain.StateFailed, chain.StateCanceled}, outcomes)
}

func TestRun_StepContext(t *testing.T) {
	var buf bytes.Buffer
	log := relay.GoLog(&buf, "", 0)

	var names []string
	var indexes []int
	var pipelines []string
	var runIDs []string
	var loggers []relay.Logger
	spy := func(_ context.Context, c *testCtx) (*testCtx, error) { return c, nil }
	observe := func(ctx context.Context, c *testCtx) (*testCtx, error) {
		names = append(names, chain.GetStepName(ctx))
		indexes = append(indexes, chain.GetStepIndex(ctx))
		pipelines = append(pipelines, chain.GetPipelineName(ctx))
		runIDs = append(runIDs, chain.GetRunID(ctx))
		loggers = append(loggers, relay.ContextLogger(ctx))
		return c, nil
	}

	_, err := chain.New[*testCtx](chain.Named("ctx"), chain.LogWith(log)).
		Before(func(ctx context.Context, c *testCtx) (*testCtx, error) {
			assert.Equal(t, -1, chain.GetStepIndex(ctx))
			assert.Empty(t, chain.GetStepName(ctx))
			return c, nil
		}).
		AddSteps(chain.Func[*testCtx]("spy", spy, nil), chain.Func[*testCtx]("a", observe, nil), chain.Func[*testCtx]("b", observe, nil)).
		Run(context.Background(), newTestCtx())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, []int{1, 2}, indexes)
	assert.Equal(t, []string{"ctx", "ctx"}, pipelines)
	require.Len(t, runIDs, 2)
	assert.NotEmpty(t, runIDs[0])
	assert.Equal(t, runIDs[0], runIDs[1])
	assert.Equal(t, []relay.Logger{log, log}, loggers)
	assert.Contains(t, buf.String(), "[DEBUG]")

	_, err = chain.New[*testCtx]().AddSteps(chain.Func[*testCtx]("a", observe, nil)).Run(context.Background(), newTestCtx())
	require.NoError(t, err)
	assert.NotEqual(t, runIDs[0], runIDs[2])
	assert.Equal(t, chain.DefaultName, pipelines[2])
	assert.Equal(t, relay.NopLogger, loggers[2])
}

func TestRun_UsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	log := relay.GoLog(&buf, "", 0)

	_, err := chain.New[*testCtx]().
		OnException(chain.Intercept[*testCtx](rethrow.Never)).
		AddSteps(failing("boom", assert.AnError)).
		Run(relay.SetLogger(context.Background(), log), newTestCtx())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[WARN]  ")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}

func TestRun_Metrics(t *testing.T) {
	registry := metrics.NewRegistry()
	p := chain.New[*testCtx](chain.Named("measured"), chain.WithRegistry(registry)).
		OnException(chain.Intercept[*testCtx](rethrow.Never)).
		AddSteps(traced("one", true), traced("two", true), failing("three", assert.AnError))

	for i := 0; i < 2; i++ {
		_, err := p.Run(context.Background(), newTestCtx())
		require.NoError(t, err)
	}
	aborted := newTestCtx()
	aborted.Abort()
	_, err := p.Run(context.Background(), aborted)
	require.NoError(t, err)

	assert.EqualValues(t, 3, metrics.GetOrRegisterTimer("measured.run", registry).Count())
	assert.EqualValues(t, 2, metrics.GetOrRegisterTimer("measured.step.one", registry).Count())
	assert.EqualValues(t, 2, metrics.GetOrRegisterTimer("measured.step.three", registry).Count())
	assert.EqualValues(t, 2, metrics.GetOrRegisterCounter("measured.failed", registry).Count())
	assert.EqualValues(t, 2, metrics.GetOrRegisterCounter("measured.suppressed", registry).Count())
	assert.EqualValues(t, 4, metrics.GetOrRegisterCounter("measured.compensations", registry).Count())
	assert.EqualValues(t, 1, metrics.GetOrRegisterCounter("measured.aborted", registry).Count())
}
