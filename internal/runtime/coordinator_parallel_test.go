package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/internal/runtime"
	"github.com/aretw0/espalier/internal/testutils"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// delayedAgent sleeps before answering, to force out-of-order completion.
func delayedAgent(name string, delay time.Duration) ports.Agent {
	return ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			return name, nil
		}
	})
}

func TestCoordinator_Parallel(t *testing.T) {
	t.Run("Results Follow Declaration Order", func(t *testing.T) {
		// The slowest agent sits in the middle; completion order differs
		// from declaration order, the result slice must not.
		agents := map[string]ports.Agent{
			"fast":   delayedAgent("fast", time.Millisecond),
			"slow":   delayedAgent("slow", 50*time.Millisecond),
			"medium": delayedAgent("medium", 10*time.Millisecond),
		}
		cfg := &domain.Config{
			Name: "fanout",
			Steps: []domain.Step{
				{Name: "all", Type: domain.StepParallel, Agents: []string{"fast", "slow", "medium"}},
			},
		}

		c, err := runtime.New(cfg, agents)
		require.NoError(t, err)

		wctx := domain.NewContext("run-1", "fanout", nil, nil)
		require.NoError(t, c.Run(context.Background(), wctx))

		results, ok := wctx.StepResults["all"].Result.([]domain.Result)
		require.True(t, ok)
		require.Len(t, results, 3)
		assert.Equal(t, "fast", results[0].Agent)
		assert.Equal(t, "slow", results[1].Agent)
		assert.Equal(t, "medium", results[2].Agent)
		for _, r := range results {
			assert.True(t, r.Success)
			assert.Equal(t, r.Agent, r.Output)
		}
	})

	t.Run("Shared Input Snapshot", func(t *testing.T) {
		agents := map[string]ports.Agent{
			"seedmaker": testutils.StaticAgent("seed"),
			"left":      testutils.EchoAgent("left"),
			"right":     testutils.EchoAgent("right"),
		}
		cfg := &domain.Config{
			Name: "fanout",
			Steps: []domain.Step{
				{Name: "prepare", Type: domain.StepSequential, Agents: []string{"seedmaker"}},
				{Name: "split", Type: domain.StepParallel, Agents: []string{"left", "right"}},
			},
		}

		c, err := runtime.New(cfg, agents)
		require.NoError(t, err)

		wctx := domain.NewContext("run-1", "fanout", nil, nil)
		require.NoError(t, c.Run(context.Background(), wctx))

		// Both branches received the same snapshot, not each other's output.
		assert.Equal(t, "left([seed])", wctx.AgentOutputs["left"])
		assert.Equal(t, "right([seed])", wctx.AgentOutputs["right"])
	})

	t.Run("Partial Failure Keeps Successful Slots", func(t *testing.T) {
		agents := map[string]ports.Agent{
			"ok":   testutils.StaticAgent("fine"),
			"boom": testutils.FailingAgent("exploded"),
		}
		cfg := &domain.Config{
			Name: "fanout",
			Steps: []domain.Step{
				{Name: "mixed", Type: domain.StepParallel, Agents: []string{"ok", "boom"}},
			},
		}

		c, err := runtime.New(cfg, agents)
		require.NoError(t, err)

		wctx := domain.NewContext("run-1", "fanout", nil, nil)
		err = c.Run(context.Background(), wctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `agent "boom"`)

		// The successful branch's output survives the step failure.
		assert.Equal(t, "fine", wctx.AgentOutputs["ok"])
		assert.NotContains(t, wctx.AgentOutputs, "boom")

		// The failed step is recorded with its slots intact: the completed
		// one kept, the failed one marked.
		sr, ok := wctx.StepResults["mixed"]
		require.True(t, ok)
		assert.False(t, sr.Success)
		results, ok := sr.Result.([]domain.Result)
		require.True(t, ok)
		require.Len(t, results, 2)
		assert.True(t, results[0].Success)
		assert.Equal(t, "fine", results[0].Output)
		assert.False(t, results[1].Success)
		assert.Contains(t, results[1].Error, "exploded")

		require.True(t, wctx.HasErrors())
		assert.False(t, wctx.ExecutionSummary().Success)
	})

	t.Run("Timeout Keeps Completed Outputs", func(t *testing.T) {
		agents := map[string]ports.Agent{
			"quick": delayedAgent("quick", time.Millisecond),
			"stuck": testutils.BlockingAgent(),
		}
		cfg := &domain.Config{
			Name: "fanout",
			Steps: []domain.Step{
				{Name: "mixed", Type: domain.StepParallel, Agents: []string{"quick", "stuck"}, Timeout: 30 * time.Millisecond},
			},
		}

		c, err := runtime.New(cfg, agents)
		require.NoError(t, err)

		wctx := domain.NewContext("run-1", "fanout", nil, nil)
		start := time.Now()
		err = c.Run(context.Background(), wctx)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 5*time.Second)

		// The elapsed deadline surfaces as a timeout for the step.
		var timeout *domain.TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, "mixed", timeout.Step)

		// The cancelled agent fails, the finished one keeps its output.
		assert.Equal(t, "quick", wctx.AgentOutputs["quick"])
		assert.NotContains(t, wctx.AgentOutputs, "stuck")
	})
}
