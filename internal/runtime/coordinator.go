// Package runtime contains the step coordinator: the state machine that
// walks a workflow's steps, dispatches agents per step type and applies
// timeouts, recovery and error handlers.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/espalier/internal/compiler"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/recovery"
	"github.com/aretw0/espalier/pkg/registry"
)

// Coordinator executes one workflow configuration against a fixed set of
// agents. Conditions are compiled once at construction; Run may be called
// any number of times with fresh contexts.
type Coordinator struct {
	cfg      *domain.Config
	agents   map[string]ports.Agent
	logger   *slog.Logger
	observer ports.Observer
	recovery *recovery.System
	tools    *registry.Registry
	programs map[string]*compiler.Program
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithObserver sets the event sink. Events are only emitted when the
// workflow enables observability.
func WithObserver(observer ports.Observer) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

// WithRecovery sets the retry system used around agent calls.
func WithRecovery(system *recovery.System) Option {
	return func(c *Coordinator) {
		c.recovery = system
	}
}

// WithToolRegistry attaches the tool registry agents may draw on.
func WithToolRegistry(tools *registry.Registry) Option {
	return func(c *Coordinator) {
		c.tools = tools
	}
}

// New validates the configuration, compiles all step conditions and returns
// a ready coordinator. Configuration problems are reported together in a
// domain.ConfigError rather than one at a time.
func New(cfg *domain.Config, agents map[string]ports.Agent, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		cfg:      cfg,
		agents:   agents,
		logger:   logging.NewNop(),
		programs: make(map[string]*compiler.Program),
	}
	for _, opt := range opts {
		opt(c)
	}

	issues := Validate(cfg, agents)
	if len(issues) > 0 {
		return nil, &domain.ConfigError{Workflow: cfg.Name, Issues: issues}
	}

	for _, step := range cfg.Steps {
		if step.Condition == "" {
			continue
		}
		prog, err := compiler.Compile(step.Condition)
		if err != nil {
			// Unreachable after Validate, kept as a guard.
			return nil, &domain.ConfigError{Workflow: cfg.Name, Issues: []string{err.Error()}}
		}
		c.programs[step.Name] = prog
	}

	return c, nil
}

// Validate statically checks a configuration against a set of agents and
// returns every issue found.
func Validate(cfg *domain.Config, agents map[string]ports.Agent) []string {
	var issues []string

	if cfg.Name == "" {
		issues = append(issues, "workflow name is required")
	}
	if len(cfg.Steps) == 0 {
		issues = append(issues, "workflow has no steps")
	}

	seen := make(map[string]bool)
	for _, step := range cfg.Steps {
		if seen[step.Name] {
			issues = append(issues, fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = true

		if !step.Type.Known() {
			issues = append(issues, fmt.Sprintf("step %q has unknown type %q", step.Name, step.Type))
			continue
		}

		for _, agent := range step.Agents {
			if _, ok := agents[agent]; !ok {
				issues = append(issues, fmt.Sprintf("agent %q referenced in step %q not found", agent, step.Name))
			}
		}

		switch step.Type {
		case domain.StepConditional:
			if step.Condition == "" {
				issues = append(issues, fmt.Sprintf("conditional step %q requires a condition", step.Name))
			}
		case domain.StepLoop:
			if step.MaxIterations < 1 {
				issues = append(issues, fmt.Sprintf("loop step %q requires max_iterations >= 1", step.Name))
			}
		}

		if step.Condition != "" {
			if _, err := compiler.Compile(step.Condition); err != nil {
				issues = append(issues, fmt.Sprintf("invalid condition in step %q: %v", step.Name, err))
			}
		}
	}

	for _, step := range cfg.Steps {
		if step.ErrorHandler == "" {
			continue
		}
		handler, ok := cfg.StepByName(step.ErrorHandler)
		switch {
		case !ok:
			issues = append(issues, fmt.Sprintf("step %q references unknown error handler %q", step.Name, step.ErrorHandler))
		case handler.Type != domain.StepErrorHandler:
			issues = append(issues, fmt.Sprintf("error handler %q for step %q must be an error_handler step", step.ErrorHandler, step.Name))
		case handler.Name == step.Name:
			issues = append(issues, fmt.Sprintf("step %q cannot be its own error handler", step.Name))
		}
	}

	return issues
}

// Run executes every step of the workflow against the given context.
// Error handler steps are not part of the top-level walk; they only run
// when a failed step names them. A step failure that no handler absorbs
// halts the walk and is returned.
func (c *Coordinator) Run(ctx context.Context, wctx *domain.Context) error {
	for _, step := range c.cfg.Steps {
		if step.Type == domain.StepErrorHandler {
			continue
		}

		wctx.CurrentStep = step.Name
		c.emit(ctx, domain.NewEvent(domain.EventStepStart, step.Name, map[string]any{
			"workflow": c.cfg.Name,
			"type":     string(step.Type),
		}))

		result, err := c.executeStep(ctx, step, wctx)
		if err != nil {
			wctx.AddError(err, step.Name, "")
			c.emit(ctx, domain.NewEvent(domain.EventErrorOccurred, step.Name, map[string]any{
				"error": err.Error(),
			}).WithLevel(domain.LevelError))

			recovered, handlerErr := c.handleStepError(ctx, step, err, wctx)
			if handlerErr != nil {
				// The failed step stays on record, keeping whatever partial
				// result it produced (a parallel step's marked slots).
				wctx.AddStepResult(step.Name, result, false)
				c.logger.Error("step failed", "workflow", c.cfg.Name, "step", step.Name, "error", handlerErr)
				return handlerErr
			}
			result = recovered
		}

		wctx.AddStepResult(step.Name, result, true)
		c.emit(ctx, domain.NewEvent(domain.EventStepEnd, step.Name, map[string]any{
			"workflow": c.cfg.Name,
		}))
	}

	wctx.CurrentStep = ""
	return nil
}

// executeStep dispatches on the step type, applying the per-step timeout
// when one is configured.
func (c *Coordinator) executeStep(ctx context.Context, step domain.Step, wctx *domain.Context) (any, error) {
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	result, err := c.dispatch(ctx, step, wctx)
	if err != nil && step.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		return result, &domain.TimeoutError{Step: step.Name}
	}
	return result, err
}

func (c *Coordinator) dispatch(ctx context.Context, step domain.Step, wctx *domain.Context) (any, error) {
	switch step.Type {
	case domain.StepSequential:
		return c.runSequential(ctx, step, wctx, wctx.Metadata)
	case domain.StepParallel:
		return c.runParallel(ctx, step, wctx)
	case domain.StepConditional:
		return c.runConditional(ctx, step, wctx)
	case domain.StepLoop:
		return c.runLoop(ctx, step, wctx)
	default:
		return nil, fmt.Errorf("unknown step type: %s", step.Type)
	}
}

// runSequential chains the step's agents: each agent receives the previous
// agent's output, the first receives the latest workflow result or the
// initial data. meta is what the agents see as workflow metadata; error
// handlers pass an enriched copy.
func (c *Coordinator) runSequential(ctx context.Context, step domain.Step, wctx *domain.Context, meta map[string]any) (any, error) {
	var results []any

	for _, name := range step.Agents {
		agent, ok := c.agents[name]
		if !ok {
			return nil, &domain.UnknownAgentError{Agent: name, Step: step.Name}
		}

		input := c.stepInput(wctx)
		if len(results) > 0 {
			input = results[len(results)-1]
		}

		output, err := c.executeAgent(ctx, name, agent, input, step, meta)
		if err != nil {
			wctx.AddError(err, step.Name, name)
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}
		wctx.AddAgentOutput(name, output)
		results = append(results, output)
	}

	return results, nil
}

// runParallel fans the step's agents out on goroutines, all reading the
// same input snapshot. Each goroutine owns one result slot; the context is
// only touched again after the join, in declaration order, so outcomes are
// deterministic regardless of completion order.
func (c *Coordinator) runParallel(ctx context.Context, step domain.Step, wctx *domain.Context) (any, error) {
	input := c.stepInput(wctx)
	results := make([]domain.Result, len(step.Agents))
	errs := make([]error, len(step.Agents))

	var wg sync.WaitGroup
	for i, name := range step.Agents {
		agent, ok := c.agents[name]
		if !ok {
			return nil, &domain.UnknownAgentError{Agent: name, Step: step.Name}
		}

		wg.Add(1)
		go func(i int, name string, agent ports.Agent) {
			defer wg.Done()
			output, err := c.executeAgent(ctx, name, agent, input, step, wctx.Metadata)
			if err != nil {
				results[i] = domain.Result{Agent: name, Success: false, Error: err.Error()}
				errs[i] = err
				return
			}
			results[i] = domain.Result{Agent: name, Success: true, Output: output}
		}(i, name, agent)
	}
	wg.Wait()

	// The context is single-writer: all recording happens here, after the
	// join, in declaration order.
	var failures []error
	for i, r := range results {
		if r.Success {
			wctx.AddAgentOutput(r.Agent, r.Output)
		} else {
			err := fmt.Errorf("agent %q: %w", r.Agent, errs[i])
			wctx.AddError(err, step.Name, r.Agent)
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return results, errors.Join(failures...)
	}
	return results, nil
}

// runConditional evaluates the step's condition and either runs the agents
// sequentially or records the step as skipped.
func (c *Coordinator) runConditional(ctx context.Context, step domain.Step, wctx *domain.Context) (any, error) {
	proceed, err := c.evalCondition(step, wctx, -1)
	if err != nil {
		return nil, err
	}
	if !proceed {
		c.emit(ctx, domain.NewEvent(domain.EventStepSkipped, step.Name, map[string]any{
			"condition": step.Condition,
		}))
		return nil, nil
	}
	return c.runSequential(ctx, step, wctx, wctx.Metadata)
}

// runLoop repeats the step's agents up to MaxIterations times. When a
// condition is configured it gates each iteration, with the zero-based
// iteration counter exposed to the expression.
func (c *Coordinator) runLoop(ctx context.Context, step domain.Step, wctx *domain.Context) (any, error) {
	var results []any

	for iteration := 0; iteration < step.MaxIterations; iteration++ {
		if step.Condition != "" {
			cont, err := c.evalCondition(step, wctx, iteration)
			if err != nil {
				return nil, err
			}
			if !cont {
				break
			}
		}

		result, err := c.runSequential(ctx, step, wctx, wctx.Metadata)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

// handleStepError runs the failed step's error handler, if the workflow has
// error recovery enabled and the step names one. A successful handler run
// becomes the failed step's result and the walk continues; otherwise the
// original error is returned.
func (c *Coordinator) handleStepError(ctx context.Context, step domain.Step, cause error, wctx *domain.Context) (any, error) {
	if !c.cfg.ErrorRecovery || step.ErrorHandler == "" {
		return nil, cause
	}

	handler, ok := c.cfg.StepByName(step.ErrorHandler)
	if !ok {
		return nil, cause
	}

	c.logger.Warn("invoking error handler", "step", step.Name, "handler", handler.Name, "error", cause)

	// The handler's agents see the triggering failure alongside the
	// workflow metadata.
	meta := make(map[string]any, len(wctx.Metadata)+2)
	for k, v := range wctx.Metadata {
		meta[k] = v
	}
	meta["error"] = cause.Error()
	meta["failed_step"] = step.Name

	result, err := c.runSequential(ctx, handler, wctx, meta)
	if err != nil {
		wctx.AddError(err, handler.Name, "")
		return nil, cause
	}

	c.emit(ctx, domain.NewEvent(domain.EventErrorRecovered, step.Name, map[string]any{
		"handler": handler.Name,
		"error":   cause.Error(),
	}).WithLevel(domain.LevelWarning))

	return result, nil
}

// executeAgent runs one agent call, routed through the recovery system when
// one is configured. The step's retry budget bounds the attempts. It never
// touches the workflow context: parallel steps call it from several
// goroutines at once, so recording stays with the caller.
func (c *Coordinator) executeAgent(ctx context.Context, name string, agent ports.Agent, input any, step domain.Step, metadata map[string]any) (any, error) {
	start := time.Now()

	var output any
	var err error
	if c.recovery != nil && c.cfg.ErrorRecovery {
		output, err = c.recovery.WithRecovery(ctx, func(ctx context.Context) (any, error) {
			return agent.Process(ctx, input, metadata)
		}, map[string]any{
			"agent": name,
			"step":  step.Name,
		}, recovery.MaxRetries(step.RetryCount))
	} else {
		output, err = agent.Process(ctx, input, metadata)
	}

	duration := time.Since(start)
	data := map[string]any{
		"agent":       name,
		"step":        step.Name,
		"duration_ms": duration.Milliseconds(),
		"success":     err == nil,
	}
	level := domain.LevelInfo
	if err != nil {
		data["error"] = err.Error()
		level = domain.LevelError
	}
	c.emit(ctx, domain.NewEvent(domain.EventAgentExecution, name, data).WithLevel(level))

	return output, err
}

// evalCondition runs the step's compiled condition against the sandboxed
// variable set. iteration is -1 outside loops.
func (c *Coordinator) evalCondition(step domain.Step, wctx *domain.Context, iteration int) (bool, error) {
	prog, ok := c.programs[step.Name]
	if !ok {
		return false, &domain.ConditionError{Step: step.Name, Condition: step.Condition, Err: errors.New("condition not compiled")}
	}

	vars := compiler.Vars{
		"results": wctx.StepResults,
		"agents":  wctx.AgentOutputs,
		"context": wctx.Metadata,
		"errors":  len(wctx.Errors),
	}
	if iteration >= 0 {
		vars["iteration"] = iteration
	}

	result, err := prog.Eval(vars)
	if err != nil {
		return false, &domain.ConditionError{Step: step.Name, Condition: step.Condition, Err: err}
	}
	return result, nil
}

// stepInput picks the data a step starts from: the latest recorded result,
// falling back to the workflow's initial data.
func (c *Coordinator) stepInput(wctx *domain.Context) any {
	if v := wctx.LatestResult(); v != nil {
		return v
	}
	return wctx.InitialData
}

// emit forwards an event to the observer. This is the only emission point;
// observability can be disabled per workflow.
func (c *Coordinator) emit(ctx context.Context, event domain.Event) {
	if c.observer == nil || !c.cfg.Observability {
		return
	}
	c.observer.Emit(ctx, event)
}
