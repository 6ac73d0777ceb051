package chain

import (
	"context"

	"github.com/casualjim/relay/chain/internal"
)

// GetRunID returns the id of the run a step or hook is executing in
func GetRunID(ctx context.Context) string {
	return stringValue(ctx, internal.RunIDKey)
}

// GetPipelineName returns the name of the pipeline a step or hook is executing in
func GetPipelineName(ctx context.Context) string {
	return stringValue(ctx, internal.PipelineKey)
}

// GetStepName returns the name of the step that is executing
func GetStepName(ctx context.Context) string {
	return stringValue(ctx, internal.StepNameKey)
}

// GetStepIndex returns the registered position of the executing step, -1 outside of a step
func GetStepIndex(ctx context.Context) int {
	if idx, ok := ctx.Value(internal.StepIndexKey).(int); ok {
		return idx
	}
	return -1
}

func withStep(ctx context.Context, name string, index int) context.Context {
	return context.WithValue(context.WithValue(ctx, internal.StepNameKey, name), internal.StepIndexKey, index)
}

func stringValue(ctx context.Context, key internal.ChainKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
