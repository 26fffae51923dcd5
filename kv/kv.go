package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// ErrInvalidNamespace is returned by CreateRelatedKeyStore for empty or
// malformed namespace names.
var ErrInvalidNamespace = errors.New("invalid namespace")

// KeyStore is a namespaced key/value store.
//
// Implementations must be safe for concurrent use.
type KeyStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ContainsKey reports whether key exists.
	ContainsKey(ctx context.Context, key string) (bool, error)

	// GetBatch returns the values for keys in the same order. Absent
	// keys yield a nil entry.
	GetBatch(ctx context.Context, keys []string) ([][]byte, error)

	// VisitKeys calls fn for every key starting with prefix, in
	// ascending order, until fn returns false.
	VisitKeys(ctx context.Context, prefix string, fn func(key string) bool) error

	// CreateRelatedKeyStore returns a store on the same backend with an
	// isolated key space.
	CreateRelatedKeyStore(namespace string) (KeyStore, error)

	// DropKeyStore removes every key in this store's namespace.
	DropKeyStore(ctx context.Context) error

	// ResetFolderHandling drops any cached folder or bucket state.
	ResetFolderHandling()
}

// namespaceSeparator joins a parent namespace and a related namespace.
const namespaceSeparator = "."

func childNamespace(parent, namespace string) (string, error) {
	if namespace == "" || strings.ContainsAny(namespace, "/\\"+namespaceSeparator) {
		return "", ErrInvalidNamespace
	}
	if parent == "" {
		return namespace, nil
	}
	return parent + namespaceSeparator + namespace, nil
}

// getBatch implements GetBatch on top of Get for backends without a
// native multi-get.
func getBatch(ctx context.Context, store KeyStore, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, err := store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func copyBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
