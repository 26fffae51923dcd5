package db

import (
	"context"
	"fmt"

	"github.com/nickyhof/VersionDB/core"
)

// commentaryTarget resolves key in the latest commit of OFFICIAL to the
// document it names or, failing that, the folder. An empty key names the
// root folder.
func (r *VersionedRepo) commentaryTarget(ctx context.Context, key string) (string, string, error) {
	_, commit, err := r.resolve(ctx, core.OfficialPerspective, nil)
	if err != nil {
		return "", "", err
	}
	segments := core.SplitPath(key)
	path := core.JoinPath(segments...)
	if len(segments) > 0 {
		docRef, doc, err := r.objects.FindDocument(ctx, commit.TreeRef, segments)
		if err != nil {
			return "", "", err
		}
		if doc != nil {
			return docRef, path, nil
		}
	}
	_, treeRef, err := r.objects.FindTree(ctx, commit.TreeRef, segments)
	if err != nil {
		return "", "", err
	}
	if treeRef == "" {
		return "", "", fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return treeRef, path, nil
}

// AddCommentary attaches a note to the document or folder at key in the
// current commit and returns the note's reference.
func (r *VersionedRepo) AddCommentary(ctx context.Context, key, user, message string) (string, error) {
	targetRef, path, err := r.commentaryTarget(ctx, key)
	if err != nil {
		return "", err
	}

	var ref string
	err = r.withLock(ctx, "commentary/"+targetRef, func() error {
		head, err := r.keyed.GetCommentaryHead(ctx, targetRef)
		if err != nil {
			return err
		}
		ref, err = r.objects.WriteCommentary(ctx, &core.CommentaryObject{
			TargetRef:   targetRef,
			Path:        path,
			User:        user,
			When:        r.now().UTC(),
			Message:     message,
			PreviousRef: head,
		})
		if err != nil {
			return err
		}
		return r.keyed.WriteCommentaryHead(ctx, targetRef, ref)
	})
	return ref, err
}

// GetCommentary returns the notes attached to the object at key in the
// current commit, newest first.
func (r *VersionedRepo) GetCommentary(ctx context.Context, key string) ([]*core.CommentaryObject, error) {
	targetRef, _, err := r.commentaryTarget(ctx, key)
	if err != nil {
		return nil, err
	}
	ref, err := r.keyed.GetCommentaryHead(ctx, targetRef)
	if err != nil {
		return nil, err
	}

	var notes []*core.CommentaryObject
	for ref != "" {
		note, err := r.objects.GetCommentary(ctx, ref)
		if err != nil {
			return nil, err
		}
		if note == nil {
			r.logger.Warn("commentary chain broken", "target", targetRef, "ref", ref)
			break
		}
		notes = append(notes, note)
		ref = note.PreviousRef
	}
	return notes, nil
}
