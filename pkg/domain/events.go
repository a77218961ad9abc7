package domain

import "time"

// EventType defines the category of an observability event.
type EventType string

const (
	EventWorkflowStart  EventType = "workflow_start"
	EventWorkflowEnd    EventType = "workflow_end"
	EventStepStart      EventType = "step_start"
	EventStepEnd        EventType = "step_end"
	EventStepSkipped    EventType = "step_skipped"
	EventAgentExecution EventType = "agent_execution"
	EventToolExecution  EventType = "tool_execution"
	EventErrorOccurred  EventType = "error_occurred"
	EventErrorRecovered EventType = "error_recovered"
)

// Level indicates event significance for sinks that filter.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Event is the structured record emitted at the coordinator's observability
// boundary. Sinks must tolerate empty Data and Metadata.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"event_type"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Level     Level          `json:"level"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(t EventType, source string, data map[string]any) Event {
	return Event{
		Timestamp: time.Now(),
		Type:      t,
		Source:    source,
		Data:      data,
		Level:     LevelInfo,
	}
}

// WithLevel returns a copy of the event at the given level.
func (e Event) WithLevel(l Level) Event {
	e.Level = l
	return e
}
