package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/uuid"
)

const (
	billyDataDir    = "data"
	billyRootFolder = "_"
	billyKeyPrefix  = "k"
)

type billyBackend struct {
	fs      billy.Filesystem
	mu      sync.RWMutex
	folders map[string]bool
}

// BillyStore stores one file per key on a go-billy filesystem. Each
// namespace is a folder below data/.
type BillyStore struct {
	backend   *billyBackend
	namespace string
}

// NewBillyStore returns a KeyStore rooted at the given filesystem.
func NewBillyStore(fs billy.Filesystem) *BillyStore {
	return &BillyStore{
		backend: &billyBackend{fs: fs, folders: make(map[string]bool)},
	}
}

// NewFileStore returns a KeyStore on the local filesystem below baseDir.
func NewFileStore(baseDir string) (*BillyStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return NewBillyStore(osfs.New(baseDir)), nil
}

// NewMemoryFileStore returns a BillyStore on an in-memory filesystem.
func NewMemoryFileStore() *BillyStore {
	return NewBillyStore(memfs.New())
}

func (b *BillyStore) folder() string {
	name := b.namespace
	if name == "" {
		name = billyRootFolder
	}
	return b.backend.fs.Join(billyDataDir, name)
}

func (b *BillyStore) filename(key string) string {
	return b.backend.fs.Join(b.folder(), billyKeyPrefix+url.PathEscape(key))
}

func decodeBillyName(name string) (string, bool) {
	if !strings.HasPrefix(name, billyKeyPrefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(name, billyKeyPrefix))
	if err != nil {
		return "", false
	}
	return key, true
}

// ensureFolder must be called with the write lock held.
func (b *BillyStore) ensureFolder() error {
	folder := b.folder()
	if b.backend.folders[folder] {
		return nil
	}
	if err := b.backend.fs.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	b.backend.folders[folder] = true
	return nil
}

func (b *BillyStore) readFile(name string) ([]byte, error) {
	f, err := b.backend.fs.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (b *BillyStore) Get(ctx context.Context, key string) ([]byte, error) {
	b.backend.mu.RLock()
	defer b.backend.mu.RUnlock()
	return b.readFile(b.filename(key))
}

func (b *BillyStore) Put(ctx context.Context, key string, value []byte) error {
	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()

	if err := b.ensureFolder(); err != nil {
		return err
	}
	// Write aside and rename so readers never see a partial file.
	tmp := b.backend.fs.Join(b.folder(), ".tmp-"+uuid.NewString())
	if err := util.WriteFile(b.backend.fs, tmp, value, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := b.backend.fs.Rename(tmp, b.filename(key)); err != nil {
		_ = b.backend.fs.Remove(tmp)
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

func (b *BillyStore) Delete(ctx context.Context, key string) error {
	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()

	err := b.backend.fs.Remove(b.filename(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *BillyStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	b.backend.mu.RLock()
	defer b.backend.mu.RUnlock()

	_, err := b.backend.fs.Stat(b.filename(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *BillyStore) GetBatch(ctx context.Context, keys []string) ([][]byte, error) {
	return getBatch(ctx, b, keys)
}

func (b *BillyStore) VisitKeys(ctx context.Context, prefix string, fn func(key string) bool) error {
	b.backend.mu.RLock()
	entries, err := b.backend.fs.ReadDir(b.folder())
	b.backend.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := decodeBillyName(entry.Name())
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
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

func (b *BillyStore) CreateRelatedKeyStore(namespace string) (KeyStore, error) {
	name, err := childNamespace(b.namespace, namespace)
	if err != nil {
		return nil, err
	}
	return &BillyStore{backend: b.backend, namespace: name}, nil
}

func (b *BillyStore) DropKeyStore(ctx context.Context) error {
	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()

	folder := b.folder()
	delete(b.backend.folders, folder)
	if err := util.RemoveAll(b.backend.fs, folder); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to drop %s: %w", folder, err)
	}
	return nil
}

func (b *BillyStore) ResetFolderHandling() {
	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()
	b.backend.folders = make(map[string]bool)
}
