package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/graft/internal/adapters/redis"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newTestStore(t)
	ports.RunKVStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "hot", []byte("v"), time.Second))

	val, err := store.Get(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	// Fast forward time in miniredis to trigger key expiration.
	mr.FastForward(2 * time.Second)

	_, err = store.Get(ctx, "hot")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestRedisStore_SetNX_TTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "guard", []byte("exc_1"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "guard", []byte("exc_2"), time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX should lose while the key is alive")

	mr.FastForward(2 * time.Second)

	// After the retention window the fingerprint is treated as fresh.
	ok, err = store.SetNX(ctx, "guard", []byte("exc_3"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr := newTestStore(t, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "my-key", []byte("v"), 0))

	assert.True(t, mr.Exists("custom:app:my-key"), "Expected key with custom prefix to exist")
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.Close()

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	err = store.Set(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	_, err = store.SetNX(ctx, "k", []byte("v"), 0)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}
