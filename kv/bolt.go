package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const boltRootBucket = "_root"

// BoltStore keeps each namespace in its own bbolt bucket.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

// OpenBoltStore opens (or creates) a bbolt file and returns its root store.
// Close releases the file.
func OpenBoltStore(path string) (*BoltStore, error) {
	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	store := NewBoltStore(bdb, "")
	store.owned = true
	return store, nil
}

// NewBoltStore wraps an open bbolt database. The caller keeps ownership
// of bdb.
func NewBoltStore(bdb *bbolt.DB, namespace string) *BoltStore {
	if namespace == "" {
		namespace = boltRootBucket
	}
	return &BoltStore{db: bdb, bucket: []byte(namespace)}
}

// Close closes the underlying database if this store opened it.
func (s *BoltStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// boltLookup seeks with a cursor so zero-length values are told apart
// from missing keys.
func boltLookup(b *bbolt.Bucket, key string) ([]byte, bool) {
	k, v := b.Cursor().Seek([]byte(key))
	if k == nil || string(k) != key {
		return nil, false
	}
	return v, true
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrNotFound
		}
		v, ok := boltLookup(b, key)
		if !ok {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction.
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	return value, err
}

func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(s.bucket); b != nil {
			_, found = boltLookup(b, key)
		}
		return nil
	})
	return found, err
}

func (s *BoltStore) GetBatch(ctx context.Context, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		for i, key := range keys {
			if v, ok := boltLookup(b, key); ok {
				values[i] = make([]byte, len(v))
				copy(values[i], v)
			}
		}
		return nil
	})
	return values, err
}

func (s *BoltStore) VisitKeys(ctx context.Context, prefix string, fn func(key string) bool) error {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return err
	}
	// fn runs outside the read transaction so it may write.
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

func (s *BoltStore) CreateRelatedKeyStore(namespace string) (KeyStore, error) {
	parent := string(s.bucket)
	if parent == boltRootBucket {
		parent = ""
	}
	name, err := childNamespace(parent, namespace)
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: s.db, bucket: []byte(name)}, nil
}

func (s *BoltStore) DropKeyStore(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(s.bucket)
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (s *BoltStore) ResetFolderHandling() {}
