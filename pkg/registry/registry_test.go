package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/registry"
)

func stubTool(name string, category domain.ToolCategory, deps ...string) ports.Tool {
	return ports.ToolFunc{
		Metadata: domain.ToolSpec{
			Name:         name,
			Category:     category,
			Dependencies: deps,
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return name, nil
		},
	}
}

func chainNames(chain []ports.Tool) []string {
	names := make([]string, len(chain))
	for i, t := range chain {
		names[i] = t.Spec().Name
	}
	return names
}

func TestRegistry_Register(t *testing.T) {
	t.Run("Overwrite Keeps Position", func(t *testing.T) {
		r := registry.New()
		r.Register(stubTool("a", domain.CategoryUtility))
		r.Register(stubTool("b", domain.CategoryUtility))
		r.Register(stubTool("a", domain.CategoryAnalysis))

		assert.Equal(t, []string{"a", "b"}, r.List())

		tool, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, domain.CategoryAnalysis, tool.Spec().Category)
	})

	t.Run("List By Category", func(t *testing.T) {
		r := registry.New()
		r.Register(stubTool("parse", domain.CategoryTransformation))
		r.Register(stubTool("lint", domain.CategoryValidation))
		r.Register(stubTool("verify", domain.CategoryValidation))

		assert.Equal(t, []string{"lint", "verify"}, r.List(domain.CategoryValidation))
	})
}

func TestRegistry_DependencyChain(t *testing.T) {
	r := registry.New()
	r.Register(stubTool("base", domain.CategoryUtility))
	r.Register(stubTool("mid", domain.CategoryUtility, "base"))
	r.Register(stubTool("top", domain.CategoryUtility, "mid", "base"))

	t.Run("Transitive Deps In Order", func(t *testing.T) {
		chain, err := r.DependencyChain("top")
		require.NoError(t, err)
		// Depth-first, dependency before dependent, duplicates suppressed.
		assert.Equal(t, []string{"base", "mid"}, chain)
	})

	t.Run("No Deps", func(t *testing.T) {
		chain, err := r.DependencyChain("base")
		require.NoError(t, err)
		assert.Empty(t, chain)
	})

	t.Run("Unknown Tool", func(t *testing.T) {
		_, err := r.DependencyChain("ghost")
		var unknown *domain.UnknownToolError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "ghost", unknown.Name)
	})
}

func TestRegistry_BuildChain(t *testing.T) {
	t.Run("Dependencies Before Dependents", func(t *testing.T) {
		r := registry.New()
		r.Register(stubTool("fetch", domain.CategoryIntegration))
		r.Register(stubTool("analyze", domain.CategoryAnalysis, "fetch"))
		r.Register(stubTool("report", domain.CategoryGeneration, "analyze"))

		chain, err := r.BuildChain("report")
		require.NoError(t, err)
		assert.Equal(t, []string{"fetch", "analyze", "report"}, chainNames(chain))
	})

	t.Run("Deterministic Among Eligible", func(t *testing.T) {
		// Two registries with the same registration order must produce
		// identical chains, even when several tools are eligible at once.
		build := func() []string {
			r := registry.New()
			r.Register(stubTool("c", domain.CategoryUtility))
			r.Register(stubTool("a", domain.CategoryUtility))
			r.Register(stubTool("b", domain.CategoryUtility))
			chain, err := r.BuildChain("a", "b", "c")
			require.NoError(t, err)
			return chainNames(chain)
		}

		first := build()
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, build())
		}
		assert.Equal(t, []string{"c", "a", "b"}, first)
	})

	t.Run("Cycle Fails Without Partial Chain", func(t *testing.T) {
		r := registry.New()
		r.Register(stubTool("x", domain.CategoryUtility, "y"))
		r.Register(stubTool("y", domain.CategoryUtility, "x"))
		r.Register(stubTool("solo", domain.CategoryUtility))

		chain, err := r.BuildChain("x", "solo")
		assert.Nil(t, chain)

		var cycle *domain.CycleError
		require.ErrorAs(t, err, &cycle)
		assert.ElementsMatch(t, []string{"x", "y"}, cycle.Unresolved)
	})

	t.Run("Unregistered Dependency", func(t *testing.T) {
		r := registry.New()
		r.Register(stubTool("needy", domain.CategoryUtility, "missing"))

		_, err := r.BuildChain("needy")
		var unknown *domain.UnknownToolError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "missing", unknown.Name)
		assert.Equal(t, "needy", unknown.RequiredBy)
	})
}
