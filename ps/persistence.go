package ps

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickyhof/VersionDB/kv"
)

var ErrNotInitialized = errors.New("persistence layer not initialized")

// Namespaces created below the backend store.
const (
	VersionNamespace = "version"
	MetaNamespace    = "meta"
	CacheNamespace   = "cache"
)

// Persistence bundles the stores of one repository: immutable objects in
// the version namespace, pointers in meta, and the fast path cache.
type Persistence struct {
	store   kv.KeyStore
	version kv.KeyStore
	meta    kv.KeyStore
	cache   kv.KeyStore
	objects *ObjectDatabase
	keyed   *KeyedDatabase
}

// IsInitialized returns true if the persistence layer has its stores
func (p *Persistence) IsInitialized() bool {
	return p != nil && p.objects != nil && p.keyed != nil
}

// ensureInitialized checks if the persistence layer is initialized and returns an error if not
func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// NewPersistence creates the related namespaces on store.
func NewPersistence(store kv.KeyStore) (*Persistence, error) {
	version, err := store.CreateRelatedKeyStore(VersionNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", VersionNamespace, err)
	}
	meta, err := store.CreateRelatedKeyStore(MetaNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", MetaNamespace, err)
	}
	cache, err := store.CreateRelatedKeyStore(CacheNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", CacheNamespace, err)
	}

	return &Persistence{
		store:   store,
		version: version,
		meta:    meta,
		cache:   cache,
		objects: NewObjectDatabase(version),
		keyed:   NewKeyedDatabase(meta),
	}, nil
}

func NewMemoryPersistence() (*Persistence, error) {
	return NewPersistence(kv.NewMemoryStore())
}

func NewFilePersistence(baseDir string) (*Persistence, error) {
	store, err := kv.NewFileStore(baseDir)
	if err != nil {
		return nil, err
	}
	return NewPersistence(store)
}

func (p *Persistence) Objects() *ObjectDatabase {
	return p.objects
}

func (p *Persistence) Keyed() *KeyedDatabase {
	return p.keyed
}

// Cache returns the fast path store.
func (p *Persistence) Cache() kv.KeyStore {
	return p.cache
}

// Store returns the backend store the namespaces were created on.
func (p *Persistence) Store() kv.KeyStore {
	return p.store
}

// Drop removes every namespace of the repository.
func (p *Persistence) Drop(ctx context.Context) error {
	if err := p.ensureInitialized(); err != nil {
		return err
	}
	for _, store := range []kv.KeyStore{p.version, p.meta, p.cache} {
		if err := store.DropKeyStore(ctx); err != nil {
			return err
		}
		store.ResetFolderHandling()
	}
	return nil
}
