package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

// RunContextStoreContract verifies that an adapter complies with
// ports.ContextStore. Adapters call this from their own tests.
func RunContextStoreContract(t *testing.T, store ports.ContextStore) {
	t.Helper()
	ctx := context.Background()

	runCtx := domain.NewContext("run-1", "contract-flow", "hello", nil)
	runCtx.AddStepResult("analyze", "analyzed", true)
	runCtx.AddAgentOutput("analyzer", "analyzed")

	t.Run("Save And Load", func(t *testing.T) {
		if err := store.Save(ctx, runCtx); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}

		loaded, err := store.Load(ctx, "run-1")
		if err != nil {
			t.Fatalf("unexpected load error: %v", err)
		}
		if loaded.Workflow != "contract-flow" {
			t.Errorf("workflow mismatch: got %q", loaded.Workflow)
		}
		if _, ok := loaded.StepResults["analyze"]; !ok {
			t.Error("step result missing after round trip")
		}
	})

	t.Run("Load Unknown Run", func(t *testing.T) {
		_, err := store.Load(ctx, "no-such-run")
		if !errors.Is(err, domain.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		other := domain.NewContext("run-2", "contract-flow", nil, nil)
		if err := store.Save(ctx, other); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}

		ids, err := store.List(ctx)
		if err != nil {
			t.Fatalf("unexpected list error: %v", err)
		}

		lookup := make(map[string]bool, len(ids))
		for _, id := range ids {
			lookup[id] = true
		}
		for _, want := range []string{"run-1", "run-2"} {
			if !lookup[want] {
				t.Errorf("run %s missing from list", want)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, "run-1"); err != nil {
			t.Fatalf("unexpected delete error: %v", err)
		}
		if _, err := store.Load(ctx, "run-1"); !errors.Is(err, domain.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound after delete, got %v", err)
		}
	})
}
