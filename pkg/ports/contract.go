package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/graft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVStoreContract runs a suite of tests to verify that a KVStore
// implementation adheres to the defined interface contract. TTL expiry is
// deliberately excluded: clocks differ per backend, so each adapter tests
// expiry with its own time control.
func RunKVStoreContract(t *testing.T, store KVStore) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405.000")

	t.Run("Set and Get", func(t *testing.T) {
		err := store.Set(ctx, key, []byte("value-1"), 0)
		require.NoError(t, err, "Set should not return error")

		val, err := store.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, []byte("value-1"), val)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, []byte("value-2"), 0))

		val, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("value-2"), val)
	})

	t.Run("SetNX", func(t *testing.T) {
		nxKey := key + "-nx"

		ok, err := store.SetNX(ctx, nxKey, []byte("first"), 0)
		require.NoError(t, err)
		assert.True(t, ok, "first SetNX should win")

		ok, err = store.SetNX(ctx, nxKey, []byte("second"), 0)
		require.NoError(t, err)
		assert.False(t, ok, "second SetNX should lose")

		// Losing must not clobber the stored value.
		val, err := store.Get(ctx, nxKey)
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), val)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, key, []byte("doomed"), 0))

		err := store.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrKeyNotFound, "Get after Delete should return ErrKeyNotFound")
	})

	t.Run("Delete Non-Existent", func(t *testing.T) {
		// Deleting a missing key is a no-op, not an error.
		assert.NoError(t, store.Delete(ctx, "non-existent-"+key))
	})
}
