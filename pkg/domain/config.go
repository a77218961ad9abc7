package domain

import "time"

// Config describes a complete workflow.
// Execution order is declaration order; there is no implicit parallelism
// across steps. A Config is immutable once an engine is built from it.
type Config struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`

	Steps []Step `json:"steps" yaml:"steps" mapstructure:"steps"`

	// GlobalTimeout bounds the whole execution. Zero means no limit.
	GlobalTimeout time.Duration `json:"global_timeout,omitempty" yaml:"global_timeout,omitempty" mapstructure:"global_timeout"`

	// ErrorRecovery controls whether execution continues past recorded
	// errors. When false, the first recorded error halts the workflow.
	ErrorRecovery bool `json:"error_recovery" yaml:"error_recovery" mapstructure:"error_recovery"`

	// Observability toggles event emission to the configured observer.
	Observability bool `json:"observability" yaml:"observability" mapstructure:"observability"`

	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// StepByName returns the step with the given name.
func (c *Config) StepByName(name string) (Step, bool) {
	for _, s := range c.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}
