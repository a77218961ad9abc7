package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunNotFound is returned when a run ID cannot be found in a store.
var ErrRunNotFound = errors.New("run not found")

// ConfigError reports problems found during static validation.
// It is raised before any step executes.
type ConfigError struct {
	Workflow string
	Issues   []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid workflow %q: %s", e.Workflow, strings.Join(e.Issues, "; "))
}

// CycleError reports a circular dependency among registered tools.
// Unresolved names the subset that could not be ordered.
type CycleError struct {
	Unresolved []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency in tool chain: unresolved %v", e.Unresolved)
}

// UnknownToolError reports a reference to a tool that is not registered.
type UnknownToolError struct {
	Name       string
	RequiredBy string
}

func (e *UnknownToolError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("tool %q required by %q is not registered", e.Name, e.RequiredBy)
	}
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// UnknownAgentError reports a step referencing an unregistered agent.
type UnknownAgentError struct {
	Agent string
	Step  string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("agent %q referenced in step %q is not registered", e.Agent, e.Step)
}

// ConditionError reports a malformed or failing condition expression.
type ConditionError struct {
	Step      string
	Condition string
	Err       error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %q in step %q: %v", e.Condition, e.Step, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// TimeoutError records an elapsed step or workflow timeout.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string {
	if e.Step == "" {
		return "workflow timeout elapsed"
	}
	return fmt.Sprintf("timeout elapsed in step %q", e.Step)
}

// errorKind derives a stable name for an error's type, preferring typed
// errors over the generic wrappers produced by fmt.Errorf.
func errorKind(err error) string {
	switch {
	case errors.As(err, new(*ConfigError)):
		return "ConfigError"
	case errors.As(err, new(*CycleError)):
		return "CycleError"
	case errors.As(err, new(*UnknownToolError)):
		return "UnknownToolError"
	case errors.As(err, new(*UnknownAgentError)):
		return "UnknownAgentError"
	case errors.As(err, new(*ConditionError)):
		return "ConditionError"
	case errors.As(err, new(*TimeoutError)):
		return "TimeoutError"
	default:
		return fmt.Sprintf("%T", err)
	}
}
