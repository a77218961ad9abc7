// Package observability provides ready-made ports.Observer sinks: console
// logging, Prometheus metrics, fan-out and a no-op.
package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// Console logs every event through a structured logger.
type Console struct {
	logger *slog.Logger
}

// NewConsole creates a console sink on the given logger.
func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger}
}

// Emit implements ports.Observer.
func (c *Console) Emit(ctx context.Context, event domain.Event) {
	attrs := []any{
		"source", event.Source,
	}
	for k, v := range event.Data {
		attrs = append(attrs, k, v)
	}

	msg := string(event.Type)
	switch event.Level {
	case domain.LevelDebug:
		c.logger.Debug(msg, attrs...)
	case domain.LevelWarning:
		c.logger.Warn(msg, attrs...)
	case domain.LevelError, domain.LevelCritical:
		c.logger.Error(msg, attrs...)
	default:
		c.logger.Info(msg, attrs...)
	}
}

// multi fans events out to several sinks in order.
type multi struct {
	sinks []ports.Observer
}

// Multi combines observers into one. Nil entries are skipped.
func Multi(observers ...ports.Observer) ports.Observer {
	var sinks []ports.Observer
	for _, o := range observers {
		if o != nil {
			sinks = append(sinks, o)
		}
	}
	return &multi{sinks: sinks}
}

// Emit implements ports.Observer.
func (m *multi) Emit(ctx context.Context, event domain.Event) {
	for _, sink := range m.sinks {
		sink.Emit(ctx, event)
	}
}

// Nop returns an observer that discards everything.
func Nop() ports.Observer {
	return ports.ObserverFunc(func(context.Context, domain.Event) {})
}
