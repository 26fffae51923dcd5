package ps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/kv"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	perspectivePrefix = "perspective/"
	tagPrefix         = "tag/"
	commentaryPrefix  = "commentary/"
)

// KeyedDatabase stores the mutable pointers of a repository under
// human readable names. Every write replaces the whole object.
type KeyedDatabase struct {
	store kv.KeyStore
}

func NewKeyedDatabase(store kv.KeyStore) *KeyedDatabase {
	return &KeyedDatabase{store: store}
}

func (k *KeyedDatabase) get(ctx context.Context, key, kind string, v any) (bool, error) {
	data, err := k.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return false, &core.CorruptObjectError{Ref: key, Kind: kind, Err: err}
	}
	return true, nil
}

func (k *KeyedDatabase) put(ctx context.Context, key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := k.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (k *KeyedDatabase) names(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := k.store.VisitKeys(ctx, prefix, func(key string) bool {
		names = append(names, strings.TrimPrefix(key, prefix))
		return true
	})
	return names, err
}

// GetPerspective returns nil, nil for a perspective that was never
// written.
func (k *KeyedDatabase) GetPerspective(ctx context.Context, name string) (*core.PerspectiveObject, error) {
	var perspective core.PerspectiveObject
	ok, err := k.get(ctx, perspectivePrefix+name, "perspective", &perspective)
	if !ok {
		return nil, err
	}
	return &perspective, nil
}

func (k *KeyedDatabase) WritePerspective(ctx context.Context, name string, perspective *core.PerspectiveObject) error {
	return k.put(ctx, perspectivePrefix+name, perspective)
}

func (k *KeyedDatabase) DeletePerspective(ctx context.Context, name string) error {
	return k.store.Delete(ctx, perspectivePrefix+name)
}

// GetPerspectives lists perspective names in ascending order.
func (k *KeyedDatabase) GetPerspectives(ctx context.Context) ([]string, error) {
	return k.names(ctx, perspectivePrefix)
}

func (k *KeyedDatabase) GetTag(ctx context.Context, name string) (*core.TagObject, error) {
	var tag core.TagObject
	ok, err := k.get(ctx, tagPrefix+name, "tag", &tag)
	if !ok {
		return nil, err
	}
	return &tag, nil
}

func (k *KeyedDatabase) WriteTag(ctx context.Context, name string, tag *core.TagObject) error {
	return k.put(ctx, tagPrefix+name, tag)
}

func (k *KeyedDatabase) DeleteTag(ctx context.Context, name string) error {
	return k.store.Delete(ctx, tagPrefix+name)
}

func (k *KeyedDatabase) GetTags(ctx context.Context) ([]string, error) {
	return k.names(ctx, tagPrefix)
}

// GetCommentaryHead returns the newest commentary reference attached to
// targetRef, or "" when there is none.
func (k *KeyedDatabase) GetCommentaryHead(ctx context.Context, targetRef string) (string, error) {
	data, err := k.store.Get(ctx, commentaryPrefix+targetRef)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (k *KeyedDatabase) WriteCommentaryHead(ctx context.Context, targetRef, commentaryRef string) error {
	return k.store.Put(ctx, commentaryPrefix+targetRef, []byte(commentaryRef))
}
