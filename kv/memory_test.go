package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runKeyStoreSuite(t, func(t *testing.T) KeyStore {
		return NewMemoryStore()
	})
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, 1, store.Len())
}

func TestBillyStore(t *testing.T) {
	runKeyStoreSuite(t, func(t *testing.T) KeyStore {
		return NewMemoryFileStore()
	})
}

func TestFileStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "../escape", []byte("v")))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	value, err := reopened.Get(ctx, "../escape")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	matches, err := filepath.Glob(filepath.Join(dir, "data", "_", "k*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestBoltStore(t *testing.T) {
	runKeyStoreSuite(t, func(t *testing.T) KeyStore {
		store, err := OpenBoltStore(filepath.Join(t.TempDir(), "store.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestBadgerStore(t *testing.T) {
	runKeyStoreSuite(t, func(t *testing.T) KeyStore {
		store, err := OpenBadgerStore(BadgerConfig{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestBadgerStoreRequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}
