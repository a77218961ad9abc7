package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// Observer is the sink for coordinator events. Parallel steps emit from
// multiple goroutines, so implementations must be safe for concurrent use.
// The engine works correctly with a no-op sink.
type Observer interface {
	Emit(ctx context.Context, event domain.Event)
}

// ObserverFunc adapts a function to the Observer contract.
type ObserverFunc func(ctx context.Context, event domain.Event)

// Emit implements Observer.
func (f ObserverFunc) Emit(ctx context.Context, event domain.Event) { f(ctx, event) }
