package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/espalier/pkg/adapters/redis"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports/tests"
)

func newTestClient(t *testing.T) *backend.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	return backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestRedisStore_Contract(t *testing.T) {
	store := redis.NewFromClient(newTestClient(t))
	tests.RunContextStoreContract(t, store)
}

func TestRedisStore_ChronologicalList(t *testing.T) {
	store := redis.NewFromClient(newTestClient(t))
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"second", "third", "first"} {
		runCtx := domain.NewContext(id, "flow", nil, nil)
		switch i {
		case 0:
			runCtx.StartTime = base.Add(time.Minute)
		case 1:
			runCtx.StartTime = base.Add(2 * time.Minute)
		case 2:
			runCtx.StartTime = base
		}
		require.NoError(t, store.Save(ctx, runCtx))
	}

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	runCtx := domain.NewContext("run-ttl", "flow", nil, nil)
	require.NoError(t, store.Save(ctx, runCtx))

	_, err = store.Load(ctx, "run-ttl")
	require.NoError(t, err)

	// miniredis advances time manually.
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "run-ttl")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	// The expired run is pruned from the index on the next List.
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	runCtx := domain.NewContext("run-prefixed", "flow", nil, nil)
	require.NoError(t, store.Save(ctx, runCtx))

	assert.True(t, mr.Exists("custom:app:run-prefixed"))

	loaded, err := store.Load(ctx, "run-prefixed")
	require.NoError(t, err)
	assert.Equal(t, "flow", loaded.Workflow)
}
