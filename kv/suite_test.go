package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runKeyStoreSuite checks the KeyStore contract against one backend.
func runKeyStoreSuite(t *testing.T, newStore func(t *testing.T) KeyStore) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := store.ContainsKey(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutGetDelete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, "foo/bar", []byte("one")))
		require.NoError(t, store.Put(ctx, "foo/bar", []byte("two")))

		value, err := store.Get(ctx, "foo/bar")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), value)

		ok, err := store.ContainsKey(ctx, "foo/bar")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, store.Delete(ctx, "foo/bar"))
		require.NoError(t, store.Delete(ctx, "foo/bar"))
		_, err = store.Get(ctx, "foo/bar")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, "empty", nil))
		ok, err := store.ContainsKey(ctx, "empty")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("GetBatch", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, "a", []byte("1")))
		require.NoError(t, store.Put(ctx, "c", []byte("3")))

		values, err := store.GetBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.Equal(t, []byte("1"), values[0])
		assert.Nil(t, values[1])
		assert.Equal(t, []byte("3"), values[2])
	})

	t.Run("VisitKeys", func(t *testing.T) {
		store := newStore(t)
		for _, key := range []string{"p/2", "p/1", "q/1", "p/3"} {
			require.NoError(t, store.Put(ctx, key, []byte(key)))
		}

		var keys []string
		require.NoError(t, store.VisitKeys(ctx, "p/", func(key string) bool {
			keys = append(keys, key)
			return true
		}))
		assert.Equal(t, []string{"p/1", "p/2", "p/3"}, keys)

		keys = nil
		require.NoError(t, store.VisitKeys(ctx, "p/", func(key string) bool {
			keys = append(keys, key)
			return false
		}))
		assert.Equal(t, []string{"p/1"}, keys)
	})

	t.Run("RelatedStoresAreIsolated", func(t *testing.T) {
		store := newStore(t)
		version, err := store.CreateRelatedKeyStore("version")
		require.NoError(t, err)
		meta, err := store.CreateRelatedKeyStore("meta")
		require.NoError(t, err)

		require.NoError(t, version.Put(ctx, "k", []byte("v")))
		require.NoError(t, meta.Put(ctx, "k", []byte("m")))
		require.NoError(t, store.Put(ctx, "k", []byte("root")))

		value, err := version.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), value)

		require.NoError(t, version.DropKeyStore(ctx))
		_, err = version.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)

		value, err = meta.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("m"), value)
		value, err = store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("root"), value)

		// A dropped store is usable again.
		require.NoError(t, version.Put(ctx, "k2", []byte("again")))
		version.ResetFolderHandling()
		value, err = version.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, []byte("again"), value)
	})

	t.Run("InvalidNamespace", func(t *testing.T) {
		store := newStore(t)
		_, err := store.CreateRelatedKeyStore("")
		assert.ErrorIs(t, err, ErrInvalidNamespace)
		_, err = store.CreateRelatedKeyStore("a/b")
		assert.ErrorIs(t, err, ErrInvalidNamespace)
	})
}
