package espalier

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/recovery"
	"github.com/aretw0/espalier/pkg/registry"
)

// Engine executes one workflow configuration. It is safe for concurrent
// Execute calls: each run gets its own context, and shared state is locked.
type Engine struct {
	cfg      *domain.Config
	agents   map[string]ports.Agent
	tools    *registry.Registry
	observer ports.Observer
	recovery *recovery.System
	store    ports.ContextStore
	logger   *slog.Logger

	coordinator *runtime.Coordinator

	mu      sync.Mutex
	history []ExecutionRecord
}

// ExecutionRecord summarizes one finished run for the engine's history.
type ExecutionRecord struct {
	RunID          string        `json:"run_id"`
	Workflow       string        `json:"workflow"`
	Timestamp      time.Time     `json:"timestamp"`
	Duration       time.Duration `json:"duration"`
	Success        bool          `json:"success"`
	StepsCompleted int           `json:"steps_completed"`
	Error          string        `json:"error,omitempty"`
}

// Report is the outcome of static workflow validation.
type Report struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	AgentsCount int      `json:"agents_count"`
	StepsCount  int      `json:"steps_count"`
	ToolsCount  int      `json:"tools_count"`
}

// Info is a point-in-time view of an engine's configuration and activity.
type Info struct {
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	Steps            int               `json:"steps"`
	Agents           []string          `json:"agents"`
	Tools            []string          `json:"tools"`
	Validation       Report            `json:"validation"`
	RecentExecutions []ExecutionRecord `json:"recent_executions,omitempty"`
	ErrorRecovery    bool              `json:"error_recovery"`
	Observability    bool              `json:"observability"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithAgent registers one agent under a name.
func WithAgent(name string, agent ports.Agent) Option {
	return func(e *Engine) {
		e.agents[name] = agent
	}
}

// WithAgents registers a batch of agents.
func WithAgents(agents map[string]ports.Agent) Option {
	return func(e *Engine) {
		for name, agent := range agents {
			e.agents[name] = agent
		}
	}
}

// WithObserver sets the event sink for this engine's runs.
func WithObserver(observer ports.Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithRecovery sets the retry system wrapped around agent calls.
func WithRecovery(system *recovery.System) Option {
	return func(e *Engine) {
		e.recovery = system
	}
}

// WithToolRegistry replaces the engine's tool registry.
func WithToolRegistry(tools *registry.Registry) Option {
	return func(e *Engine) {
		e.tools = tools
	}
}

// WithStore sets the persistence backend for finished run contexts.
func WithStore(store ports.ContextStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New builds an engine for the given configuration. The configuration is
// validated statically; a domain.ConfigError describes every issue found.
func New(cfg *domain.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		agents: make(map[string]ports.Agent),
		tools:  registry.New(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	coordinator, err := runtime.New(cfg, e.agents,
		runtime.WithLogger(e.logger),
		runtime.WithObserver(e.observer),
		runtime.WithRecovery(e.recovery),
		runtime.WithToolRegistry(e.tools),
	)
	if err != nil {
		return nil, err
	}
	e.coordinator = coordinator

	return e, nil
}

// Execute runs the workflow over the input and returns the populated run
// context. Step failures are recorded inside the context rather than
// returned: inspect Context.Errors or ExecutionSummary for the outcome. The
// error is reserved for infrastructure problems such as persisting the run.
func (e *Engine) Execute(ctx context.Context, input any) (*domain.Context, error) {
	return e.ExecuteWithMetadata(ctx, input, nil)
}

// ExecuteWithMetadata is Execute with extra metadata made available to
// agents and condition expressions.
func (e *Engine) ExecuteWithMetadata(ctx context.Context, input any, metadata map[string]any) (*domain.Context, error) {
	runID := uuid.NewString()
	wctx := domain.NewContext(runID, e.cfg.Name, input, metadata)

	if e.cfg.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.GlobalTimeout)
		defer cancel()
	}

	e.emit(ctx, domain.NewEvent(domain.EventWorkflowStart, e.cfg.Name, map[string]any{
		"run_id": runID,
	}))
	e.logger.Info("workflow started", "workflow", e.cfg.Name, "run_id", runID)

	runErr := e.coordinator.Run(ctx, wctx)
	if runErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var timeout *domain.TimeoutError
		if !errors.As(runErr, &timeout) {
			wctx.AddError(&domain.TimeoutError{}, "", "")
		}
	}

	summary := wctx.ExecutionSummary()
	data := map[string]any{
		"run_id":   runID,
		"success":  summary.Success,
		"duration": summary.Duration.String(),
	}
	level := domain.LevelInfo
	if runErr != nil {
		data["error"] = runErr.Error()
		level = domain.LevelError
	}
	e.emit(ctx, domain.NewEvent(domain.EventWorkflowEnd, e.cfg.Name, data).WithLevel(level))
	e.logger.Info("workflow finished",
		"workflow", e.cfg.Name,
		"run_id", runID,
		"success", summary.Success,
		"steps", summary.StepsCompleted,
		"errors", summary.ErrorsOccurred,
	)

	record := ExecutionRecord{
		RunID:          runID,
		Workflow:       e.cfg.Name,
		Timestamp:      wctx.StartTime,
		Duration:       summary.Duration,
		Success:        summary.Success,
		StepsCompleted: summary.StepsCompleted,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}
	e.mu.Lock()
	e.history = append(e.history, record)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Save(ctx, wctx); err != nil {
			e.logger.Error("failed to persist run context", "run_id", runID, "error", err)
			return wctx, err
		}
	}

	return wctx, nil
}

// Validate re-runs static validation and reports the result alongside
// registry counts.
func (e *Engine) Validate() Report {
	issues := runtime.Validate(e.cfg, e.agents)
	return Report{
		Valid:       len(issues) == 0,
		Issues:      issues,
		AgentsCount: len(e.agents),
		StepsCount:  len(e.cfg.Steps),
		ToolsCount:  e.tools.Len(),
	}
}

// Info returns the engine's configuration view, validation state and the
// last ten execution records.
func (e *Engine) Info() Info {
	agents := make([]string, 0, len(e.agents))
	for name := range e.agents {
		agents = append(agents, name)
	}
	sort.Strings(agents)

	e.mu.Lock()
	recent := e.history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	recentCopy := make([]ExecutionRecord, len(recent))
	copy(recentCopy, recent)
	e.mu.Unlock()

	return Info{
		Name:             e.cfg.Name,
		Description:      e.cfg.Description,
		Steps:            len(e.cfg.Steps),
		Agents:           agents,
		Tools:            e.tools.List(),
		Validation:       e.Validate(),
		RecentExecutions: recentCopy,
		ErrorRecovery:    e.cfg.ErrorRecovery,
		Observability:    e.cfg.Observability,
	}
}

// History returns a copy of every execution record so far.
func (e *Engine) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecutionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// Definition returns the workflow configuration this engine executes.
func (e *Engine) Definition() *domain.Config {
	return e.cfg
}

// Tools exposes the engine's tool registry.
func (e *Engine) Tools() *registry.Registry {
	return e.tools
}

// Recovery exposes the engine's retry system, nil when none is configured.
func (e *Engine) Recovery() *recovery.System {
	return e.recovery
}

func (e *Engine) emit(ctx context.Context, event domain.Event) {
	if e.observer == nil || !e.cfg.Observability {
		return
	}
	e.observer.Emit(ctx, event)
}
