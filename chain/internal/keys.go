package internal

// ChainKey are keys used on the context.Context handed to steps and hooks
type ChainKey uint8

const (
	// PublisherKey for the event bus in the context
	PublisherKey ChainKey = iota
	// RunIDKey for the id of the current run
	RunIDKey
	// PipelineKey for the name of the pipeline
	PipelineKey
	// StepNameKey for the name of the step that is executing
	StepNameKey
	// StepIndexKey for the position of the step that is executing
	StepIndexKey
)
