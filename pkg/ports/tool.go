package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// Tool is an external capability an agent may use. The core tracks tools
// for dependency ordering only; parameter shape beyond RequiredParams is
// the tool's own concern.
type Tool interface {
	Spec() domain.ToolSpec
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolFunc wraps a function and a spec into a Tool.
type ToolFunc struct {
	Metadata domain.ToolSpec
	Fn       func(ctx context.Context, args map[string]any) (any, error)
}

// Spec implements Tool.
func (t ToolFunc) Spec() domain.ToolSpec { return t.Metadata }

// Execute implements Tool.
func (t ToolFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.Fn(ctx, args)
}
