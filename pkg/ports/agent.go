package ports

import "context"

// Agent is an external unit of work invoked by name. The core treats it as
// opaque beyond this contract: it consumes an input and the workflow
// metadata, and fails by returning an error.
type Agent interface {
	Process(ctx context.Context, input any, meta map[string]any) (any, error)
}

// AgentFunc adapts a plain function to the Agent contract.
type AgentFunc func(ctx context.Context, input any, meta map[string]any) (any, error)

// Process implements Agent.
func (f AgentFunc) Process(ctx context.Context, input any, meta map[string]any) (any, error) {
	return f(ctx, input, meta)
}
