// Package testutils provides stub agents, tools and observers shared by
// tests across the module.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// EchoAgent returns an agent that tags its input with its own name, so
// tests can trace how data flowed through a workflow.
func EchoAgent(name string) ports.Agent {
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		return fmt.Sprintf("%s(%v)", name, input), nil
	})
}

// StaticAgent returns an agent that ignores its input and always produces
// the same output.
func StaticAgent(output any) ports.Agent {
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		return output, nil
	})
}

// FailingAgent returns an agent that always fails with the given message.
func FailingAgent(message string) ports.Agent {
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		return nil, fmt.Errorf("%s", message)
	})
}

// FlakyAgent returns an agent that fails the first n calls and succeeds
// afterwards. Safe for concurrent use.
func FlakyAgent(n int, output any) ports.Agent {
	var mu sync.Mutex
	calls := 0
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		mu.Lock()
		calls++
		failing := calls <= n
		mu.Unlock()
		if failing {
			return nil, fmt.Errorf("connection reset (attempt %d)", calls)
		}
		return output, nil
	})
}

// BlockingAgent returns an agent that waits for the context to end and
// reports its error, for timeout and cancellation tests.
func BlockingAgent() ports.Agent {
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

// StubTool builds a tool whose Execute returns the tool's own name.
func StubTool(name string, category domain.ToolCategory, deps ...string) ports.Tool {
	return ports.ToolFunc{
		Metadata: domain.ToolSpec{
			Name:         name,
			Category:     category,
			Dependencies: deps,
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return name, nil
		},
	}
}

// CollectingObserver records every emitted event. Safe for concurrent use.
type CollectingObserver struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit implements ports.Observer.
func (o *CollectingObserver) Emit(ctx context.Context, event domain.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

// Events returns a copy of everything recorded so far.
func (o *CollectingObserver) Events() []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.Event, len(o.events))
	copy(out, o.events)
	return out
}

// ByType filters recorded events by type.
func (o *CollectingObserver) ByType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
