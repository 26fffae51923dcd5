package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memoryBackend is shared by a memory store and all its related stores.
type memoryBackend struct {
	mu         sync.RWMutex
	namespaces map[string]map[string][]byte
}

// MemoryStore keeps every namespace in process memory.
type MemoryStore struct {
	backend   *memoryBackend
	namespace string
}

// NewMemoryStore returns an empty in-memory KeyStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		backend: &memoryBackend{namespaces: make(map[string]map[string][]byte)},
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.backend.mu.RLock()
	defer m.backend.mu.RUnlock()

	value, ok := m.backend.namespaces[m.namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(value), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	values, ok := m.backend.namespaces[m.namespace]
	if !ok {
		values = make(map[string][]byte)
		m.backend.namespaces[m.namespace] = values
	}
	stored := copyBytes(value)
	if stored == nil {
		stored = []byte{}
	}
	values[key] = stored
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	delete(m.backend.namespaces[m.namespace], key)
	return nil
}

func (m *MemoryStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	m.backend.mu.RLock()
	defer m.backend.mu.RUnlock()

	_, ok := m.backend.namespaces[m.namespace][key]
	return ok, nil
}

func (m *MemoryStore) GetBatch(ctx context.Context, keys []string) ([][]byte, error) {
	m.backend.mu.RLock()
	defer m.backend.mu.RUnlock()

	values := make([][]byte, len(keys))
	namespace := m.backend.namespaces[m.namespace]
	for i, key := range keys {
		if value, ok := namespace[key]; ok {
			values[i] = copyBytes(value)
		}
	}
	return values, nil
}

func (m *MemoryStore) VisitKeys(ctx context.Context, prefix string, fn func(key string) bool) error {
	// Collect under the lock so fn may call back into the store.
	m.backend.mu.RLock()
	var keys []string
	for key := range m.backend.namespaces[m.namespace] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.backend.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(key) {
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) CreateRelatedKeyStore(namespace string) (KeyStore, error) {
	name, err := childNamespace(m.namespace, namespace)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{backend: m.backend, namespace: name}, nil
}

func (m *MemoryStore) DropKeyStore(ctx context.Context) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	delete(m.backend.namespaces, m.namespace)
	return nil
}

func (m *MemoryStore) ResetFolderHandling() {}

// Len returns the number of keys in this namespace.
func (m *MemoryStore) Len() int {
	m.backend.mu.RLock()
	defer m.backend.mu.RUnlock()
	return len(m.backend.namespaces[m.namespace])
}
