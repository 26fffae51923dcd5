package db

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/kv"
)

// SimpleRepo keeps only the current content of each document, directly
// in a KeyStore. Writes are not versioned; reads ignore nothing but a
// non-nil directive, which fails with core.ErrUnsupported.
type SimpleRepo struct {
	Unversioned

	store  kv.KeyStore
	logger *slog.Logger
}

// NewSimpleRepo stores documents in the "documents" namespace of store.
func NewSimpleRepo(store kv.KeyStore, logger *slog.Logger) (*SimpleRepo, error) {
	docs, err := store.CreateRelatedKeyStore("documents")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SimpleRepo{store: docs, logger: logger.With("component", "simple_repo")}, nil
}

func simpleKey(key string) (string, error) {
	segments, err := core.DocumentPath(key)
	if err != nil {
		return "", err
	}
	return core.JoinPath(segments...), nil
}

func unversioned(directive Directive) error {
	if directive != nil {
		return fmt.Errorf("%w: directives need a versioned repository", core.ErrUnsupported)
	}
	return nil
}

func (r *SimpleRepo) AddDocument(ctx context.Context, key string, value []byte, user, comment string, mustBeNew bool) (CommitResult, error) {
	return r.AddDocuments(ctx, map[string][]byte{key: value}, user, comment, mustBeNew)
}

func (r *SimpleRepo) AddDocuments(ctx context.Context, docs map[string][]byte, _, _ string, mustBeNew bool) (CommitResult, error) {
	start := time.Now()
	keys := make(map[string]string, len(docs))
	for key := range docs {
		path, err := simpleKey(key)
		if err != nil {
			return CommitResult{}, err
		}
		if mustBeNew {
			exists, err := r.store.ContainsKey(ctx, path)
			if err != nil {
				return CommitResult{}, err
			}
			if exists {
				return CommitResult{}, fmt.Errorf("%s: %w", path, core.ErrAlreadyExists)
			}
		}
		keys[key] = path
	}

	result := CommitResult{Committed: len(docs) > 0}
	for _, key := range slices.Sorted(maps.Keys(docs)) {
		if err := r.store.Put(ctx, keys[key], docs[key]); err != nil {
			return result, err
		}
		result.DocumentsWritten++
	}
	result.ExecutionTimeSec = time.Since(start).Seconds()
	return result, nil
}

func (r *SimpleRepo) RemoveDocument(ctx context.Context, key, user, comment string) (CommitResult, error) {
	return r.RemoveDocuments(ctx, []string{key}, user, comment)
}

func (r *SimpleRepo) RemoveDocuments(ctx context.Context, keys []string, _, _ string) (CommitResult, error) {
	start := time.Now()
	var result CommitResult
	for _, key := range keys {
		path, err := simpleKey(key)
		if err != nil {
			return result, err
		}
		exists, err := r.store.ContainsKey(ctx, path)
		if err != nil {
			return result, err
		}
		if !exists {
			continue
		}
		if err := r.store.Delete(ctx, path); err != nil {
			return result, err
		}
		result.DocumentsRemoved++
	}
	result.Committed = result.DocumentsRemoved > 0
	result.ExecutionTimeSec = time.Since(start).Seconds()
	return result, nil
}

func (r *SimpleRepo) RemoveFolder(ctx context.Context, folder, user, comment string) (CommitResult, error) {
	prefix := folderPrefix(folder)
	if prefix == "" {
		return CommitResult{}, fmt.Errorf("%w: %q", core.ErrInvalidPath, folder)
	}
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return CommitResult{}, err
	}
	return r.RemoveDocuments(ctx, keys, user, comment)
}

func (r *SimpleRepo) GetDocument(ctx context.Context, key string, directive Directive) ([]byte, bool, error) {
	if err := unversioned(directive); err != nil {
		return nil, false, err
	}
	path, err := simpleKey(key)
	if err != nil {
		return nil, false, err
	}
	value, err := r.store.Get(ctx, path)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *SimpleRepo) GetDocuments(ctx context.Context, keys []string, directive Directive) (map[string][]byte, error) {
	if err := unversioned(directive); err != nil {
		return nil, err
	}
	paths := make([]string, len(keys))
	for i, key := range keys {
		path, err := simpleKey(key)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}
	values, err := r.store.GetBatch(ctx, paths)
	if err != nil {
		return nil, err
	}
	docs := make(map[string][]byte, len(keys))
	for i, key := range keys {
		if values[i] != nil {
			docs[key] = values[i]
		}
	}
	return docs, nil
}

func (r *SimpleRepo) DocumentExists(ctx context.Context, key string, directive Directive) (bool, error) {
	exists, err := r.GetExistence(ctx, []string{key}, directive)
	if err != nil {
		return false, err
	}
	return exists[0], nil
}

func (r *SimpleRepo) GetExistence(ctx context.Context, keys []string, directive Directive) ([]bool, error) {
	if err := unversioned(directive); err != nil {
		return nil, err
	}
	exists := make([]bool, len(keys))
	for i, key := range keys {
		path, err := simpleKey(key)
		if err != nil {
			return nil, err
		}
		if exists[i], err = r.store.ContainsKey(ctx, path); err != nil {
			return nil, err
		}
	}
	return exists, nil
}

func (r *SimpleRepo) keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.store.VisitKeys(ctx, prefix, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// folder is a listing of one level rebuilt from flat keys.
type folder struct {
	docs     []string
	children map[string]*folder
}

func (f *folder) add(segments []string, key string) {
	if len(segments) == 1 {
		f.docs = append(f.docs, key)
		return
	}
	if f.children == nil {
		f.children = make(map[string]*folder)
	}
	child, ok := f.children[segments[0]]
	if !ok {
		child = &folder{}
		f.children[segments[0]] = child
	}
	child.add(segments[1:], key)
}

func (r *SimpleRepo) listing(ctx context.Context, prefix string) (*folder, error) {
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	root := &folder{}
	for _, key := range keys {
		root.add(core.SplitPath(strings.TrimPrefix(key, prefix)), key)
	}
	return root, nil
}

func (r *SimpleRepo) walk(ctx context.Context, f *folder, prefix string, deep bool, visit Visitor) (bool, error) {
	for _, key := range f.docs {
		value, err := r.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		name := key
		if !deep {
			name = strings.TrimPrefix(key, prefix)
		}
		if !visit(name, value, false) {
			return false, nil
		}
	}
	for _, name := range slices.Sorted(maps.Keys(f.children)) {
		folderName := prefix + name
		if !deep {
			folderName = name
		}
		if !visit(folderName, nil, true) {
			return false, nil
		}
		if !deep {
			continue
		}
		more, err := r.walk(ctx, f.children[name], prefix+name+"/", true, visit)
		if err != nil || !more {
			return false, err
		}
	}
	return true, nil
}

func (r *SimpleRepo) VisitAll(ctx context.Context, prefix string, directive Directive, visit Visitor) error {
	if err := unversioned(directive); err != nil {
		return err
	}
	p := folderPrefix(prefix)
	root, err := r.listing(ctx, p)
	if err != nil {
		return err
	}
	_, err = r.walk(ctx, root, p, true, visit)
	return err
}

func (r *SimpleRepo) VisitFolder(ctx context.Context, folder string, directive Directive, visit Visitor) error {
	if err := unversioned(directive); err != nil {
		return err
	}
	p := folderPrefix(folder)
	root, err := r.listing(ctx, p)
	if err != nil {
		return err
	}
	_, err = r.walk(ctx, root, p, false, visit)
	return err
}

func (r *SimpleRepo) VisitFolders(ctx context.Context, folder string, directive Directive, visit FolderVisitor) error {
	if err := unversioned(directive); err != nil {
		return err
	}
	root, err := r.listing(ctx, folderPrefix(folder))
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(root.children)) {
		if !visit(name) {
			return nil
		}
	}
	return nil
}

func (r *SimpleRepo) All(ctx context.Context, prefix string, directive Directive) iter.Seq2[string, []byte] {
	return func(yield func(path string, content []byte) bool) {
		err := r.VisitAll(ctx, prefix, directive, func(path string, content []byte, isFolder bool) bool {
			return isFolder || yield(path, content)
		})
		if err != nil {
			r.logger.Error("document iteration failed", "prefix", prefix, "error", err)
		}
	}
}

func (r *SimpleRepo) Drop(ctx context.Context) error {
	if err := r.store.DropKeyStore(ctx); err != nil {
		return err
	}
	r.store.ResetFolderHandling()
	return nil
}
