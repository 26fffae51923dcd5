package db

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
)

// AddDocument writes one document to OFFICIAL in its own commit. With
// mustBeNew an existing document fails the write with
// core.ErrAlreadyExists.
func (r *VersionedRepo) AddDocument(ctx context.Context, key string, value []byte, user, comment string, mustBeNew bool) (CommitResult, error) {
	return r.AddDocumentsIn(ctx, core.OfficialPerspective, map[string][]byte{key: value}, user, comment, mustBeNew)
}

// AddDocuments writes several documents to OFFICIAL in one commit.
func (r *VersionedRepo) AddDocuments(ctx context.Context, docs map[string][]byte, user, comment string, mustBeNew bool) (CommitResult, error) {
	return r.AddDocumentsIn(ctx, core.OfficialPerspective, docs, user, comment, mustBeNew)
}

func (r *VersionedRepo) AddDocumentsIn(ctx context.Context, perspective string, docs map[string][]byte, user, comment string, mustBeNew bool) (CommitResult, error) {
	return r.transact(ctx, perspective, user, comment, func(stage *ps.Stage) error {
		for _, key := range slices.Sorted(maps.Keys(docs)) {
			if err := stage.Add(ctx, key, docs[key], mustBeNew); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveDocument removes one document from OFFICIAL. Removing a missing
// document commits nothing.
func (r *VersionedRepo) RemoveDocument(ctx context.Context, key, user, comment string) (CommitResult, error) {
	return r.RemoveDocumentsIn(ctx, core.OfficialPerspective, []string{key}, user, comment)
}

func (r *VersionedRepo) RemoveDocuments(ctx context.Context, keys []string, user, comment string) (CommitResult, error) {
	return r.RemoveDocumentsIn(ctx, core.OfficialPerspective, keys, user, comment)
}

func (r *VersionedRepo) RemoveDocumentsIn(ctx context.Context, perspective string, keys []string, user, comment string) (CommitResult, error) {
	return r.transact(ctx, perspective, user, comment, func(stage *ps.Stage) error {
		for _, key := range keys {
			if _, err := stage.Remove(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveFolder removes a folder of OFFICIAL with everything below it.
func (r *VersionedRepo) RemoveFolder(ctx context.Context, folder, user, comment string) (CommitResult, error) {
	return r.transact(ctx, core.OfficialPerspective, user, comment, func(stage *ps.Stage) error {
		_, err := stage.RemoveFolder(ctx, folder)
		return err
	})
}

// resolve returns the commit of perspective that directive selects, or
// nil when no commit satisfies it.
func (r *VersionedRepo) resolve(ctx context.Context, perspectiveName string, directive Directive) (string, *core.CommitObject, error) {
	perspective, err := r.loadPerspective(ctx, perspectiveName)
	if err != nil {
		return "", nil, err
	}
	if directive == nil {
		commit, err := r.loadCommit(ctx, perspective.LatestCommit)
		return perspective.LatestCommit, commit, err
	}

	directive.Reset(ctx)
	err = r.objects.WalkCommits(ctx, perspective.LatestCommit, perspective.RootCommit, directive.Incorrect)
	if err != nil {
		return "", nil, err
	}
	ref, commit := directive.RetrieveCommit()
	return ref, commit, nil
}

// readDocument finds a document below treeRef. Corrupt objects on the
// way are logged and read as absent.
func (r *VersionedRepo) readDocument(ctx context.Context, treeRef string, segments []string) ([]byte, bool, error) {
	_, doc, err := r.objects.FindDocument(ctx, treeRef, segments)
	if errors.Is(err, core.ErrCorruptObject) {
		r.logger.Warn("corrupt object on read", "path", core.JoinPath(segments...), "error", err)
		return nil, false, nil
	}
	if err != nil || doc == nil {
		return nil, false, err
	}
	return doc.Content, true, nil
}

// GetDocument reads key from OFFICIAL. A nil directive reads the latest
// commit and may be served from the cache.
func (r *VersionedRepo) GetDocument(ctx context.Context, key string, directive Directive) ([]byte, bool, error) {
	return r.GetDocumentIn(ctx, core.OfficialPerspective, key, directive)
}

func (r *VersionedRepo) GetDocumentIn(ctx context.Context, perspective, key string, directive Directive) ([]byte, bool, error) {
	segments, err := core.DocumentPath(key)
	if err != nil {
		return nil, false, err
	}

	if directive == nil && r.cache != nil {
		if content, ok, err := r.cached(ctx, perspective, core.JoinPath(segments...)); err != nil || ok {
			return content, ok, err
		}
	}

	_, commit, err := r.resolve(ctx, perspective, directive)
	if err != nil || commit == nil {
		return nil, false, err
	}
	return r.readDocument(ctx, commit.TreeRef, segments)
}

// cached serves path from the cache when the cache agrees with the latest
// commit of perspective. A cache left behind by a commit that did not
// update it is reset to that commit.
func (r *VersionedRepo) cached(ctx context.Context, perspective, path string) ([]byte, bool, error) {
	p, err := r.loadPerspective(ctx, perspective)
	if err != nil {
		return nil, false, err
	}
	if head := r.cache.head(ctx, perspective); head != p.LatestCommit {
		r.logger.Debug("resetting stale cache", "perspective", perspective, "head", head, "latest", p.LatestCommit)
		if err := r.cache.reset(ctx, perspective, p.LatestCommit); err != nil {
			r.logger.Warn("failed to reset cache", "perspective", perspective, "error", err)
		}
		r.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if content, ok := r.cache.get(ctx, perspective, path); ok {
		r.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return content, true, nil
	}
	r.metrics.CacheLookups.WithLabelValues("miss").Inc()
	return nil, false, nil
}

// GetDocuments reads several keys from one commit. Missing keys are left
// out of the result.
func (r *VersionedRepo) GetDocuments(ctx context.Context, keys []string, directive Directive) (map[string][]byte, error) {
	return r.GetDocumentsIn(ctx, core.OfficialPerspective, keys, directive)
}

func (r *VersionedRepo) GetDocumentsIn(ctx context.Context, perspective string, keys []string, directive Directive) (map[string][]byte, error) {
	_, commit, err := r.resolve(ctx, perspective, directive)
	if err != nil {
		return nil, err
	}
	docs := make(map[string][]byte, len(keys))
	if commit == nil {
		return docs, nil
	}
	for _, key := range keys {
		segments, err := core.DocumentPath(key)
		if err != nil {
			return nil, err
		}
		content, ok, err := r.readDocument(ctx, commit.TreeRef, segments)
		if err != nil {
			return nil, err
		}
		if ok {
			docs[key] = content
		}
	}
	return docs, nil
}

// DocumentExists reports whether key exists in OFFICIAL.
func (r *VersionedRepo) DocumentExists(ctx context.Context, key string, directive Directive) (bool, error) {
	exists, err := r.GetExistenceIn(ctx, core.OfficialPerspective, []string{key}, directive)
	if err != nil {
		return false, err
	}
	return exists[0], nil
}

// GetExistence reports for each key whether it exists in OFFICIAL,
// resolving all keys in one walk of the tree.
func (r *VersionedRepo) GetExistence(ctx context.Context, keys []string, directive Directive) ([]bool, error) {
	return r.GetExistenceIn(ctx, core.OfficialPerspective, keys, directive)
}

func (r *VersionedRepo) GetExistenceIn(ctx context.Context, perspective string, keys []string, directive Directive) ([]bool, error) {
	candidates := make([]candidate, len(keys))
	for i, key := range keys {
		segments, err := core.DocumentPath(key)
		if err != nil {
			return nil, err
		}
		candidates[i] = candidate{index: i, segments: segments}
	}

	exists := make([]bool, len(keys))
	_, commit, err := r.resolve(ctx, perspective, directive)
	if err != nil || commit == nil {
		return exists, err
	}
	return exists, r.existence(ctx, commit.TreeRef, 0, candidates, exists)
}

type candidate struct {
	index    int
	segments []string
}

// existence resolves the candidates below the tree at treeRef, depth
// segments down. Documents at this level are matched against the bags,
// stopping once all of them are found; deeper candidates are grouped by
// child folder so each subtree is entered once.
func (r *VersionedRepo) existence(ctx context.Context, treeRef string, depth int, candidates []candidate, exists []bool) error {
	tree, err := r.objects.GetTree(ctx, treeRef)
	if errors.Is(err, core.ErrCorruptObject) || (err == nil && tree == nil) {
		r.logger.Warn("corrupt tree on existence check", "tree", treeRef, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	var leaves []candidate
	deeper := make(map[string][]candidate)
	for _, c := range candidates {
		if len(c.segments) == depth+1 {
			leaves = append(leaves, c)
		} else {
			name := c.segments[depth]
			deeper[name] = append(deeper[name], c)
		}
	}

	remaining := len(leaves)
	for _, bagRef := range tree.Bags {
		if remaining == 0 {
			break
		}
		bag, err := r.objects.GetDocumentBag(ctx, bagRef)
		if errors.Is(err, core.ErrCorruptObject) || (err == nil && bag == nil) {
			r.logger.Warn("corrupt bag on existence check", "bag", bagRef, "error", err)
			continue
		}
		if err != nil {
			return err
		}
		for _, c := range leaves {
			if exists[c.index] {
				continue
			}
			if _, ok := bag.Lookup(c.segments[depth]); ok {
				exists[c.index] = true
				remaining--
			}
		}
	}

	for _, name := range slices.Sorted(maps.Keys(deeper)) {
		childRef, ok := tree.Child(name)
		if !ok {
			continue
		}
		if err := r.existence(ctx, childRef, depth+1, deeper[name], exists); err != nil {
			return err
		}
	}
	return nil
}
