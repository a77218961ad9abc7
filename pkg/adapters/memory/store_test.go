package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports/tests"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	tests.RunContextStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	original := domain.NewContext("run-iso", "flow", "input", nil)
	original.AddAgentOutput("a", "before")
	require.NoError(t, store.Save(ctx, original))

	// Mutating the saved pointer must not affect the stored copy.
	original.AddAgentOutput("a", "after")

	loaded, err := store.Load(ctx, "run-iso")
	require.NoError(t, err)
	assert.Equal(t, "before", loaded.AgentOutputs["a"])
}
