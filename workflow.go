package espalier

import (
	"log/slog"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/recovery"
	"github.com/aretw0/espalier/pkg/registry"
)

// Builder assembles a workflow fluently: agents, tools and steps first,
// then Build validates everything at once and returns a ready Engine.
type Builder struct {
	name        string
	description string
	steps       []domain.Step
	agents      map[string]ports.Agent
	tools       *registry.Registry
	observer    ports.Observer
	recovery    *recovery.System
	store       ports.ContextStore
	logger      *slog.Logger

	errorRecovery bool
	observability bool
	globalTimeout time.Duration
	metadata      map[string]any
}

// NewWorkflow starts a builder. Error recovery and observability default
// to enabled.
func NewWorkflow(name string) *Builder {
	return &Builder{
		name:          name,
		agents:        make(map[string]ports.Agent),
		tools:         registry.New(),
		errorRecovery: true,
		observability: true,
	}
}

// Describe sets the human-readable description.
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// AddAgent registers an agent for steps to reference.
func (b *Builder) AddAgent(name string, agent ports.Agent) *Builder {
	b.agents[name] = agent
	return b
}

// AddTool registers a tool in the workflow's registry.
func (b *Builder) AddTool(tool ports.Tool) *Builder {
	b.tools.Register(tool)
	return b
}

// StepOption tweaks one step declaration.
type StepOption func(*domain.Step)

// WithCondition attaches a predicate to a step. Loops use it as their
// continue gate.
func WithCondition(condition string) StepOption {
	return func(s *domain.Step) {
		s.Condition = condition
	}
}

// WithTimeout bounds the step's execution.
func WithTimeout(d time.Duration) StepOption {
	return func(s *domain.Step) {
		s.Timeout = d
	}
}

// WithRetries sets the step's retry budget for agent calls.
func WithRetries(n int) StepOption {
	return func(s *domain.Step) {
		s.RetryCount = n
	}
}

// WithErrorHandler names the error handler step run when this step fails.
func WithErrorHandler(name string) StepOption {
	return func(s *domain.Step) {
		s.ErrorHandler = name
	}
}

// WithStepMetadata attaches free-form metadata to the step.
func WithStepMetadata(metadata map[string]any) StepOption {
	return func(s *domain.Step) {
		s.Metadata = metadata
	}
}

func (b *Builder) addStep(name string, t domain.StepType, agents []string, opts []StepOption) *Builder {
	step := domain.Step{
		Name:   name,
		Type:   t,
		Agents: agents,
	}
	if t == domain.StepLoop && step.MaxIterations == 0 {
		step.MaxIterations = 1
	}
	for _, opt := range opts {
		opt(&step)
	}
	b.steps = append(b.steps, step)
	return b
}

// Sequential appends a step that runs its agents one after another,
// chaining outputs to inputs.
func (b *Builder) Sequential(name string, agents []string, opts ...StepOption) *Builder {
	return b.addStep(name, domain.StepSequential, agents, opts)
}

// Parallel appends a step that runs all its agents concurrently against
// the same input.
func (b *Builder) Parallel(name string, agents []string, opts ...StepOption) *Builder {
	return b.addStep(name, domain.StepParallel, agents, opts)
}

// Conditional appends a step gated by a condition expression.
func (b *Builder) Conditional(name, condition string, agents []string, opts ...StepOption) *Builder {
	opts = append([]StepOption{WithCondition(condition)}, opts...)
	return b.addStep(name, domain.StepConditional, agents, opts)
}

// Loop appends a step that repeats its agents up to maxIterations times.
func (b *Builder) Loop(name string, maxIterations int, agents []string, opts ...StepOption) *Builder {
	b.addStep(name, domain.StepLoop, agents, opts)
	b.steps[len(b.steps)-1].MaxIterations = maxIterations
	return b
}

// ErrorHandler appends a handler step. It never runs in the top-level
// walk, only when a failing step names it.
func (b *Builder) ErrorHandler(name string, agents []string, opts ...StepOption) *Builder {
	return b.addStep(name, domain.StepErrorHandler, agents, opts)
}

// WithObserver sets the event sink.
func (b *Builder) WithObserver(observer ports.Observer) *Builder {
	b.observer = observer
	return b
}

// WithRecovery sets the retry system.
func (b *Builder) WithRecovery(system *recovery.System) *Builder {
	b.recovery = system
	return b
}

// WithStore sets the persistence backend for run contexts.
func (b *Builder) WithStore(store ports.ContextStore) *Builder {
	b.store = store
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithGlobalTimeout bounds whole executions.
func (b *Builder) WithGlobalTimeout(d time.Duration) *Builder {
	b.globalTimeout = d
	return b
}

// WithMetadata attaches free-form metadata to the workflow.
func (b *Builder) WithMetadata(metadata map[string]any) *Builder {
	b.metadata = metadata
	return b
}

// DisableErrorRecovery makes the first failure halt the workflow without
// consulting error handlers.
func (b *Builder) DisableErrorRecovery() *Builder {
	b.errorRecovery = false
	return b
}

// DisableObservability silences event emission for this workflow.
func (b *Builder) DisableObservability() *Builder {
	b.observability = false
	return b
}

// Definition materializes the configuration declared so far.
func (b *Builder) Definition() *domain.Config {
	steps := make([]domain.Step, len(b.steps))
	copy(steps, b.steps)
	return &domain.Config{
		Name:          b.name,
		Description:   b.description,
		Steps:         steps,
		GlobalTimeout: b.globalTimeout,
		ErrorRecovery: b.errorRecovery,
		Observability: b.observability,
		Metadata:      b.metadata,
	}
}

// Build validates the declared workflow and returns an engine for it.
func (b *Builder) Build() (*Engine, error) {
	opts := []Option{
		WithAgents(b.agents),
		WithToolRegistry(b.tools),
	}
	if b.observer != nil {
		opts = append(opts, WithObserver(b.observer))
	}
	if b.recovery != nil {
		opts = append(opts, WithRecovery(b.recovery))
	}
	if b.store != nil {
		opts = append(opts, WithStore(b.store))
	}
	if b.logger != nil {
		opts = append(opts, WithLogger(b.logger))
	}
	return New(b.Definition(), opts...)
}
