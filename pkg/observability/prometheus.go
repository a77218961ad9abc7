package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/espalier/pkg/domain"
)

// Prometheus counts workflow events and observes agent latency.
type Prometheus struct {
	events    *prometheus.CounterVec
	errors    prometheus.Counter
	durations *prometheus.HistogramVec
}

// NewPrometheus creates a metrics sink and registers its collectors.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espalier",
			Name:      "events_total",
			Help:      "Workflow events by type.",
		}, []string{"event_type"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "espalier",
			Name:      "errors_total",
			Help:      "Errors observed during workflow execution.",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "espalier",
			Name:      "agent_duration_seconds",
			Help:      "Agent execution latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
	}

	for _, c := range []prometheus.Collector{p.events, p.errors, p.durations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Emit implements ports.Observer.
func (p *Prometheus) Emit(ctx context.Context, event domain.Event) {
	p.events.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case domain.EventErrorOccurred:
		p.errors.Inc()
	case domain.EventAgentExecution:
		ms, ok := event.Data["duration_ms"].(int64)
		if !ok {
			return
		}
		p.durations.WithLabelValues(event.Source).Observe(float64(ms) / 1000)
	}
}
