package db

import (
	"context"
	"fmt"

	"github.com/nickyhof/VersionDB/core"
)

// CreateTag names the latest commit of perspective. Tags never move.
func (r *VersionedRepo) CreateTag(ctx context.Context, name, perspective, owner string) (*core.TagObject, error) {
	if err := validName("tag", name); err != nil {
		return nil, err
	}
	if perspective == "" {
		perspective = core.OfficialPerspective
	}

	var tag *core.TagObject
	err := r.withLock(ctx, "tag/"+name, func() error {
		existing, err := r.keyed.GetTag(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", core.ErrTagExists, name)
		}
		p, err := r.loadPerspective(ctx, perspective)
		if err != nil {
			return err
		}
		tag = &core.TagObject{
			CommitRef:   p.LatestCommit,
			Perspective: perspective,
			Owner:       owner,
			When:        r.now().UTC(),
		}
		return r.keyed.WriteTag(ctx, name, tag)
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (r *VersionedRepo) RemoveTag(ctx context.Context, name string) error {
	return r.withLock(ctx, "tag/"+name, func() error {
		if _, err := r.GetTag(ctx, name); err != nil {
			return err
		}
		return r.keyed.DeleteTag(ctx, name)
	})
}

func (r *VersionedRepo) GetTags(ctx context.Context) ([]string, error) {
	return r.keyed.GetTags(ctx)
}

// GetTag returns the named tag or core.ErrTagNotFound.
func (r *VersionedRepo) GetTag(ctx context.Context, name string) (*core.TagObject, error) {
	tag, err := r.keyed.GetTag(ctx, name)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrTagNotFound, name)
	}
	return tag, nil
}

func (r *VersionedRepo) tagTree(ctx context.Context, name string) (string, error) {
	tag, err := r.GetTag(ctx, name)
	if err != nil {
		return "", err
	}
	commit, err := r.loadCommit(ctx, tag.CommitRef)
	if err != nil {
		return "", err
	}
	return commit.TreeRef, nil
}

// VisitTag visits every document and folder below prefix as of the tag.
func (r *VersionedRepo) VisitTag(ctx context.Context, name, prefix string, visit Visitor) error {
	rootRef, err := r.tagTree(ctx, name)
	if err != nil {
		return err
	}
	treeRef, err := r.treeAt(ctx, rootRef, prefix)
	if err != nil || treeRef == "" {
		return err
	}
	_, err = r.walkFolder(ctx, treeRef, folderPrefix(prefix), true, visit)
	return err
}

// VisitTagFolder visits the direct children of folder as of the tag.
func (r *VersionedRepo) VisitTagFolder(ctx context.Context, name, folder string, visit Visitor) error {
	rootRef, err := r.tagTree(ctx, name)
	if err != nil {
		return err
	}
	treeRef, err := r.treeAt(ctx, rootRef, folder)
	if err != nil || treeRef == "" {
		return err
	}
	_, err = r.walkFolder(ctx, treeRef, "", false, visit)
	return err
}

// GetTagDocument reads key as of the tag.
func (r *VersionedRepo) GetTagDocument(ctx context.Context, name, key string) ([]byte, bool, error) {
	segments, err := core.DocumentPath(key)
	if err != nil {
		return nil, false, err
	}
	rootRef, err := r.tagTree(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return r.readDocument(ctx, rootRef, segments)
}
