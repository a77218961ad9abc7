package domain

// ToolCategory groups tools for discovery.
type ToolCategory string

const (
	CategoryAnalysis       ToolCategory = "analysis"
	CategoryGeneration     ToolCategory = "generation"
	CategoryValidation     ToolCategory = "validation"
	CategoryTransformation ToolCategory = "transformation"
	CategoryIntegration    ToolCategory = "integration"
	CategoryUtility        ToolCategory = "utility"
	CategoryObservation    ToolCategory = "observation"
)

// ToolSpec describes a tool for registration and dependency ordering.
// The registry tracks Dependencies only; parameter shape is enforced by the
// tool's own input validation.
type ToolSpec struct {
	Name        string       `json:"name" yaml:"name" mapstructure:"name"`
	Category    ToolCategory `json:"category" yaml:"category" mapstructure:"category"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`

	RequiredParams []string `json:"required_params,omitempty" yaml:"required_params,omitempty" mapstructure:"required_params"`
	OptionalParams []string `json:"optional_params,omitempty" yaml:"optional_params,omitempty" mapstructure:"optional_params"`

	// Dependencies names tools that must be registered and ordered before
	// this one. The graph over registered tools must be acyclic; violations
	// surface at chain-build time.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`

	Version string `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
}
