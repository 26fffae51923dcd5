package db

import (
	"context"
	"errors"

	"github.com/nickyhof/VersionDB/kv"
)

// documentCache holds the latest content of documents per perspective,
// keyed "<perspective>/<path>". It is written only after a commit is
// published. The head key "<perspective>:head" names the commit the
// entries of a perspective agree with; entries are only trusted while it
// matches the perspective's latest commit.
type documentCache struct {
	store kv.KeyStore
}

func cacheKey(perspective, path string) string {
	return perspective + "/" + path
}

func headKey(perspective string) string {
	return perspective + ":head"
}

func (c *documentCache) head(ctx context.Context, perspective string) string {
	value, err := c.store.Get(ctx, headKey(perspective))
	if err != nil {
		return ""
	}
	return string(value)
}

func (c *documentCache) setHead(ctx context.Context, perspective, commitRef string) error {
	return c.store.Put(ctx, headKey(perspective), []byte(commitRef))
}

// reset empties the entries of perspective and marks the empty cache as
// agreeing with commitRef.
func (c *documentCache) reset(ctx context.Context, perspective, commitRef string) error {
	if err := c.drop(ctx, perspective); err != nil {
		return err
	}
	return c.setHead(ctx, perspective, commitRef)
}

func (c *documentCache) get(ctx context.Context, perspective, path string) ([]byte, bool) {
	value, err := c.store.Get(ctx, cacheKey(perspective, path))
	if err != nil {
		return nil, false
	}
	return value, true
}

func (c *documentCache) put(ctx context.Context, perspective, path string, content []byte) error {
	return c.store.Put(ctx, cacheKey(perspective, path), content)
}

func (c *documentCache) remove(ctx context.Context, perspective, path string) error {
	err := c.store.Delete(ctx, cacheKey(perspective, path))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

// drop removes every entry of perspective and its head.
func (c *documentCache) drop(ctx context.Context, perspective string) error {
	keys := []string{headKey(perspective)}
	err := c.store.VisitKeys(ctx, perspective+"/", func(key string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return err
		}
	}
	return nil
}
