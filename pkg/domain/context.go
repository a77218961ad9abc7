package domain

import "time"

// StepResult is the recorded outcome of one executed step.
// Re-running a step under the same name overwrites the prior record.
type StepResult struct {
	Result    any       `json:"result"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord captures one failure observed during execution.
type ErrorRecord struct {
	Message   string    `json:"error"`
	Kind      string    `json:"error_type"`
	Step      string    `json:"step,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionSummary is the derived view of a finished (or halted) run.
type ExecutionSummary struct {
	Duration       time.Duration `json:"duration"`
	StepsCompleted int           `json:"steps_completed"`
	AgentsExecuted int           `json:"agents_executed"`
	ErrorsOccurred int           `json:"errors_occurred"`
	Success        bool          `json:"success"`
	FinalResult    any           `json:"final_result"`
}

// Context is the mutable state threaded through one workflow execution.
// It is created at workflow start, mutated only by the coordinating flow,
// and read-only once the engine returns it.
type Context struct {
	RunID       string         `json:"run_id"`
	Workflow    string         `json:"workflow"`
	InitialData any            `json:"initial_data,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	StepResults  map[string]StepResult `json:"step_results"`
	AgentOutputs map[string]any        `json:"agent_outputs"`
	Errors       []ErrorRecord         `json:"errors"`

	StartTime   time.Time `json:"start_time"`
	CurrentStep string    `json:"current_step,omitempty"`
}

// NewContext creates a clean context for one execution.
func NewContext(runID, workflow string, initialData any, metadata map[string]any) *Context {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Context{
		RunID:        runID,
		Workflow:     workflow,
		InitialData:  initialData,
		Metadata:     metadata,
		StepResults:  make(map[string]StepResult),
		AgentOutputs: make(map[string]any),
		StartTime:    time.Now(),
	}
}

// AddStepResult records the outcome of a step, replacing any prior record
// under the same name.
func (c *Context) AddStepResult(stepName string, result any, success bool) {
	c.StepResults[stepName] = StepResult{
		Result:    result,
		Success:   success,
		Timestamp: time.Now(),
	}
}

// AddAgentOutput records the last output of an agent.
func (c *Context) AddAgentOutput(agentName string, output any) {
	c.AgentOutputs[agentName] = output
}

// AddError appends a failure record. Step and agent may be empty when the
// failure is not attributable to either.
func (c *Context) AddError(err error, stepName, agentName string) {
	c.Errors = append(c.Errors, ErrorRecord{
		Message:   err.Error(),
		Kind:      errorKind(err),
		Step:      stepName,
		Agent:     agentName,
		Timestamp: time.Now(),
	})
}

// LatestResult returns the named step's result. With no name it returns the
// result of the step whose record carries the greatest timestamp, which is
// the most recently written one (a rerun rewrites its timestamp).
func (c *Context) LatestResult(stepName ...string) any {
	if len(stepName) > 0 && stepName[0] != "" {
		if sr, ok := c.StepResults[stepName[0]]; ok {
			return sr.Result
		}
		return nil
	}

	var latest string
	var latestAt time.Time
	for name, sr := range c.StepResults {
		if latest == "" || sr.Timestamp.After(latestAt) {
			latest = name
			latestAt = sr.Timestamp
		}
	}
	if latest == "" {
		return nil
	}
	return c.StepResults[latest].Result
}

// HasErrors reports whether any error was recorded during execution.
func (c *Context) HasErrors() bool {
	return len(c.Errors) > 0
}

// ExecutionSummary computes the derived view of the run so far.
// Success requires zero errors and at least one completed step.
func (c *Context) ExecutionSummary() ExecutionSummary {
	return ExecutionSummary{
		Duration:       time.Since(c.StartTime),
		StepsCompleted: len(c.StepResults),
		AgentsExecuted: len(c.AgentOutputs),
		ErrorsOccurred: len(c.Errors),
		Success:        !c.HasErrors() && len(c.StepResults) > 0,
		FinalResult:    c.LatestResult(),
	}
}
