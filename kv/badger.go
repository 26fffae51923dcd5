package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for a badger-backed store.
type BadgerConfig struct {
	// Path is the directory for badger files. Ignored when InMemory is true.
	Path string

	// InMemory runs badger without disk persistence.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives badger's internal logging. If nil, it is discarded.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// namespaceTerminator ends the namespace part of a badger key.
const namespaceTerminator = "\x00"

// BadgerStore keeps every namespace in one badger database; keys are
// prefixed by "<namespace>\x00".
type BadgerStore struct {
	db        *badger.DB
	namespace string
	owned     bool
}

// OpenBadgerStore opens a badger database and returns its root store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	store := NewBadgerStore(bdb, "")
	store.owned = true
	return store, nil
}

// NewBadgerStore wraps an open badger database. The caller keeps
// ownership of bdb.
func NewBadgerStore(bdb *badger.DB, namespace string) *BadgerStore {
	return &BadgerStore{db: bdb, namespace: namespace}
}

// Close closes the underlying database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) prefix() []byte {
	return []byte(s.namespace + namespaceTerminator)
}

func (s *BadgerStore) key(key string) []byte {
	return []byte(s.namespace + namespaceTerminator + key)
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if value == nil {
			value = []byte{}
		}
		return txn.Set(s.key(key), value)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
}

func (s *BadgerStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *BadgerStore) GetBatch(ctx context.Context, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			item, err := txn.Get(s.key(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if values[i], err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		return nil
	})
	return values, err
}

func (s *BadgerStore) VisitKeys(ctx context.Context, prefix string, fn func(key string) bool) error {
	full := s.key(prefix)
	namespacePrefix := string(s.prefix())

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().KeyCopy(nil)), namespacePrefix))
		}
		return nil
	})
	if err != nil {
		return err
	}
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

func (s *BadgerStore) CreateRelatedKeyStore(namespace string) (KeyStore, error) {
	if strings.Contains(namespace, namespaceTerminator) {
		return nil, ErrInvalidNamespace
	}
	name, err := childNamespace(s.namespace, namespace)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: s.db, namespace: name}, nil
}

func (s *BadgerStore) DropKeyStore(ctx context.Context) error {
	return s.db.DropPrefix(s.prefix())
}

func (s *BadgerStore) ResetFolderHandling() {}
