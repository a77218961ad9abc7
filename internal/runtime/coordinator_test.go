package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/internal/testutils"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

func newContext(workflow string, input any) *domain.Context {
	return domain.NewContext("run-1", workflow, input, nil)
}

func TestNew_Validation(t *testing.T) {
	agents := map[string]ports.Agent{
		"a": testutils.EchoAgent("a"),
	}

	cases := []struct {
		name  string
		cfg   *domain.Config
		issue string
	}{
		{
			"No Steps",
			&domain.Config{Name: "empty"},
			"workflow has no steps",
		},
		{
			"Unknown Step Type",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: "recursive", Agents: []string{"a"}},
			}},
			`unknown type "recursive"`,
		},
		{
			"Unknown Agent",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepSequential, Agents: []string{"ghost"}},
			}},
			`agent "ghost" referenced in step "s" not found`,
		},
		{
			"Duplicate Step Names",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepSequential, Agents: []string{"a"}},
				{Name: "s", Type: domain.StepSequential, Agents: []string{"a"}},
			}},
			`duplicate step name "s"`,
		},
		{
			"Conditional Without Condition",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepConditional, Agents: []string{"a"}},
			}},
			`conditional step "s" requires a condition`,
		},
		{
			"Loop Without Iterations",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepLoop, Agents: []string{"a"}},
			}},
			`loop step "s" requires max_iterations >= 1`,
		},
		{
			"Malformed Condition",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepConditional, Agents: []string{"a"}, Condition: "errors =="},
			}},
			`invalid condition in step "s"`,
		},
		{
			"Dangling Error Handler",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepSequential, Agents: []string{"a"}, ErrorHandler: "cleanup"},
			}},
			`unknown error handler "cleanup"`,
		},
		{
			"Handler With Wrong Type",
			&domain.Config{Name: "w", Steps: []domain.Step{
				{Name: "s", Type: domain.StepSequential, Agents: []string{"a"}, ErrorHandler: "other"},
				{Name: "other", Type: domain.StepSequential, Agents: []string{"a"}},
			}},
			`must be an error_handler step`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runtime.New(tc.cfg, agents)

			var cfgErr *domain.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.NotEmpty(t, cfgErr.Issues)
			assert.Contains(t, cfgErr.Error(), tc.issue)
		})
	}

	t.Run("All Issues Reported Together", func(t *testing.T) {
		cfg := &domain.Config{Name: "w", Steps: []domain.Step{
			{Name: "s1", Type: "bogus"},
			{Name: "s2", Type: domain.StepSequential, Agents: []string{"ghost"}},
		}}
		_, err := runtime.New(cfg, agents)

		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Len(t, cfgErr.Issues, 2)
	})
}

func TestCoordinator_Sequential(t *testing.T) {
	agents := map[string]ports.Agent{
		"first":  testutils.EchoAgent("first"),
		"second": testutils.EchoAgent("second"),
	}
	cfg := &domain.Config{
		Name: "pipeline",
		Steps: []domain.Step{
			{Name: "chain", Type: domain.StepSequential, Agents: []string{"first", "second"}},
		},
	}

	c, err := runtime.New(cfg, agents)
	require.NoError(t, err)

	wctx := newContext("pipeline", "seed")
	require.NoError(t, c.Run(context.Background(), wctx))

	// Each agent received the previous agent's output.
	assert.Equal(t, "first(seed)", wctx.AgentOutputs["first"])
	assert.Equal(t, "second(first(seed))", wctx.AgentOutputs["second"])

	sr, ok := wctx.StepResults["chain"]
	require.True(t, ok)
	assert.True(t, sr.Success)
	assert.Equal(t, []any{"first(seed)", "second(first(seed))"}, sr.Result)

	summary := wctx.ExecutionSummary()
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.StepsCompleted)
	assert.Equal(t, 2, summary.AgentsExecuted)
	assert.Zero(t, summary.ErrorsOccurred)
}

func TestCoordinator_StepChaining(t *testing.T) {
	// The second step starts from the first step's recorded result.
	agents := map[string]ports.Agent{
		"a": testutils.EchoAgent("a"),
		"b": testutils.EchoAgent("b"),
	}
	cfg := &domain.Config{
		Name: "two-steps",
		Steps: []domain.Step{
			{Name: "one", Type: domain.StepSequential, Agents: []string{"a"}},
			{Name: "two", Type: domain.StepSequential, Agents: []string{"b"}},
		},
	}

	c, err := runtime.New(cfg, agents)
	require.NoError(t, err)

	wctx := newContext("two-steps", "seed")
	require.NoError(t, c.Run(context.Background(), wctx))

	// Step "one" produced []any{"a(seed)"}; step "two" received that slice.
	assert.Equal(t, "b([a(seed)])", wctx.AgentOutputs["b"])
}

func TestCoordinator_Conditional(t *testing.T) {
	agents := map[string]ports.Agent{
		"a": testutils.StaticAgent("done-a"),
		"b": testutils.StaticAgent("done-b"),
	}

	t.Run("Runs When Condition Holds", func(t *testing.T) {
		cfg := &domain.Config{
			Name:          "cond",
			Observability: true,
			Steps: []domain.Step{
				{Name: "A", Type: domain.StepSequential, Agents: []string{"a"}},
				{Name: "B", Type: domain.StepConditional, Agents: []string{"b"},
					Condition: `results['A'].success == true`},
			},
		}

		obs := &testutils.CollectingObserver{}
		c, err := runtime.New(cfg, agents, runtime.WithObserver(obs))
		require.NoError(t, err)

		wctx := newContext("cond", nil)
		require.NoError(t, c.Run(context.Background(), wctx))

		assert.Equal(t, "done-b", wctx.AgentOutputs["b"])
		assert.Empty(t, obs.ByType(domain.EventStepSkipped))
	})

	t.Run("Skips When Condition Fails", func(t *testing.T) {
		cfg := &domain.Config{
			Name:          "cond",
			Observability: true,
			Steps: []domain.Step{
				{Name: "A", Type: domain.StepSequential, Agents: []string{"a"}},
				{Name: "B", Type: domain.StepConditional, Agents: []string{"b"},
					Condition: `results['A'].success == false`},
			},
		}

		obs := &testutils.CollectingObserver{}
		c, err := runtime.New(cfg, agents, runtime.WithObserver(obs))
		require.NoError(t, err)

		wctx := newContext("cond", nil)
		require.NoError(t, c.Run(context.Background(), wctx))

		// B did not run its agent, but is recorded as a completed (skipped) step.
		assert.NotContains(t, wctx.AgentOutputs, "b")
		sr, ok := wctx.StepResults["B"]
		require.True(t, ok)
		assert.True(t, sr.Success)
		assert.Nil(t, sr.Result)

		skipped := obs.ByType(domain.EventStepSkipped)
		require.Len(t, skipped, 1)
		assert.Equal(t, "B", skipped[0].Source)
	})
}

func TestCoordinator_Loop(t *testing.T) {
	agents := map[string]ports.Agent{
		"worker": testutils.EchoAgent("worker"),
	}

	t.Run("Bounded By Max Iterations", func(t *testing.T) {
		cfg := &domain.Config{
			Name: "loop",
			Steps: []domain.Step{
				{Name: "repeat", Type: domain.StepLoop, Agents: []string{"worker"}, MaxIterations: 3},
			},
		}

		c, err := runtime.New(cfg, agents)
		require.NoError(t, err)

		wctx := newContext("loop", "x")
		require.NoError(t, c.Run(context.Background(), wctx))

		sr := wctx.StepResults["repeat"]
		iterations, ok := sr.Result.([]any)
		require.True(t, ok)
		assert.Len(t, iterations, 3)
	})

	t.Run("Condition Gates Each Iteration", func(t *testing.T) {
		cfg := &domain.Config{
			Name: "loop",
			Steps: []domain.Step{
				{Name: "repeat", Type: domain.StepLoop, Agents: []string{"worker"},
					MaxIterations: 10, Condition: "iteration < 2"},
			},
		}

		c, err := runtime.New(cfg, agents)
		require.NoError(t, err)

		wctx := newContext("loop", "x")
		require.NoError(t, c.Run(context.Background(), wctx))

		sr := wctx.StepResults["repeat"]
		iterations, ok := sr.Result.([]any)
		require.True(t, ok)
		assert.Len(t, iterations, 2)
	})
}

func TestCoordinator_Events(t *testing.T) {
	agents := map[string]ports.Agent{
		"a": testutils.StaticAgent("ok"),
	}
	cfg := &domain.Config{
		Name:          "observed",
		Observability: true,
		Steps: []domain.Step{
			{Name: "only", Type: domain.StepSequential, Agents: []string{"a"}},
		},
	}

	t.Run("Emits Step And Agent Events", func(t *testing.T) {
		obs := &testutils.CollectingObserver{}
		c, err := runtime.New(cfg, agents, runtime.WithObserver(obs))
		require.NoError(t, err)

		require.NoError(t, c.Run(context.Background(), newContext("observed", nil)))

		assert.Len(t, obs.ByType(domain.EventStepStart), 1)
		assert.Len(t, obs.ByType(domain.EventStepEnd), 1)

		execs := obs.ByType(domain.EventAgentExecution)
		require.Len(t, execs, 1)
		assert.Equal(t, "a", execs[0].Source)
		assert.Equal(t, true, execs[0].Data["success"])
	})

	t.Run("Silent When Observability Disabled", func(t *testing.T) {
		quiet := *cfg
		quiet.Observability = false

		obs := &testutils.CollectingObserver{}
		c, err := runtime.New(&quiet, agents, runtime.WithObserver(obs))
		require.NoError(t, err)

		require.NoError(t, c.Run(context.Background(), newContext("observed", nil)))
		assert.Empty(t, obs.Events())
	})
}
