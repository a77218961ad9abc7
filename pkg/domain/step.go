package domain

import "time"

// StepType defines how a step executes its agents.
type StepType string

const (
	// StepSequential runs agents one after another, chaining outputs to inputs.
	StepSequential StepType = "sequential"
	// StepParallel runs all agents concurrently against the same input.
	StepParallel StepType = "parallel"
	// StepConditional runs sequentially only if its condition holds.
	StepConditional StepType = "conditional"
	// StepLoop repeats a sequential pass while its condition holds, bounded by MaxIterations.
	StepLoop StepType = "loop"
	// StepErrorHandler runs only when a failing step names it via ErrorHandler.
	StepErrorHandler StepType = "error_handler"
)

// Known reports whether t is one of the defined step types.
func (t StepType) Known() bool {
	switch t {
	case StepSequential, StepParallel, StepConditional, StepLoop, StepErrorHandler:
		return true
	}
	return false
}

// Step is a single declared unit of workflow execution.
type Step struct {
	Name string   `json:"name" yaml:"name" mapstructure:"name"`
	Type StepType `json:"step_type" yaml:"step_type" mapstructure:"step_type"`

	// Agents lists the agent names this step invokes, in order.
	// Every name must exist in the coordinator's agent registry.
	Agents []string `json:"agents" yaml:"agents" mapstructure:"agents"`

	// Condition is a predicate over the sandboxed variable set
	// (results, agents, context, errors, and iteration for loops).
	// Required for conditional steps, optional for loops.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`

	// MaxIterations bounds loop steps. Must be >= 1 for loops.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" mapstructure:"max_iterations"`

	// Timeout cancels in-flight agent invocations for this step once elapsed.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`

	// RetryCount overrides the recovery system's max retries for this step's
	// agent invocations. Zero means use the system default.
	RetryCount int `json:"retry_count,omitempty" yaml:"retry_count,omitempty" mapstructure:"retry_count"`

	// ErrorHandler names another step to run when this step fails.
	// The handler's result replaces this step's recorded result.
	ErrorHandler string `json:"error_handler,omitempty" yaml:"error_handler,omitempty" mapstructure:"error_handler"`

	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}
