package db

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"

	"github.com/nickyhof/VersionDB/core"
)

// Visitor receives documents and folders. Folders have nil content.
// Returning false stops the visit.
type Visitor func(name string, content []byte, isFolder bool) bool

// FolderVisitor receives folder names. Returning false stops the visit.
type FolderVisitor func(name string) bool

// walkFolder calls fn for the documents of the tree at treeRef, sorted
// by name, then for its child folders. With deep set it descends into
// each child after reporting it. Names are prefixed with prefix.
// Corrupt objects are logged and skipped.
func (r *VersionedRepo) walkFolder(ctx context.Context, treeRef, prefix string, deep bool, fn Visitor) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tree, err := r.objects.GetTree(ctx, treeRef)
	if err != nil || tree == nil {
		return r.skipCorrupt("tree", treeRef, err)
	}

	type document struct {
		name string
		ref  string
	}
	var docs []document
	for _, bagRef := range tree.Bags {
		bag, err := r.objects.GetDocumentBag(ctx, bagRef)
		if err != nil || bag == nil {
			if _, err := r.skipCorrupt("bag", bagRef, err); err != nil {
				return false, err
			}
			continue
		}
		for _, entry := range bag.Entries {
			docs = append(docs, document{name: entry.Name, ref: entry.Ref})
		}
	}
	slices.SortFunc(docs, func(a, b document) int { return strings.Compare(a.name, b.name) })

	for _, d := range docs {
		doc, err := r.objects.GetDocument(ctx, d.ref)
		if err != nil || doc == nil {
			if _, err := r.skipCorrupt("document", d.ref, err); err != nil {
				return false, err
			}
			continue
		}
		if !fn(prefix+d.name, doc.Content, false) {
			return false, nil
		}
	}

	for _, child := range tree.Trees {
		if !fn(prefix+child.Name, nil, true) {
			return false, nil
		}
		if !deep {
			continue
		}
		more, err := r.walkFolder(ctx, child.Ref, prefix+child.Name+"/", true, fn)
		if err != nil || !more {
			return false, err
		}
	}
	return true, nil
}

// skipCorrupt logs a corrupt or missing object so the walk can go on.
// Errors of other kinds are returned.
func (r *VersionedRepo) skipCorrupt(kind, ref string, err error) (bool, error) {
	if err != nil && !errors.Is(err, core.ErrCorruptObject) {
		return false, err
	}
	r.logger.Warn("skipping corrupt object", "kind", kind, "ref", ref, "error", err)
	return true, nil
}

// folderTree resolves the tree of folder in the commit the directive
// selects. It returns "" when the folder does not exist.
func (r *VersionedRepo) folderTree(ctx context.Context, perspective, folder string, directive Directive) (string, error) {
	_, commit, err := r.resolve(ctx, perspective, directive)
	if err != nil || commit == nil {
		return "", err
	}
	return r.treeAt(ctx, commit.TreeRef, folder)
}

func (r *VersionedRepo) treeAt(ctx context.Context, rootRef, folder string) (string, error) {
	_, ref, err := r.objects.FindTree(ctx, rootRef, core.SplitPath(folder))
	if errors.Is(err, core.ErrCorruptObject) {
		r.logger.Warn("corrupt tree on visit", "folder", folder, "error", err)
		return "", nil
	}
	return ref, err
}

func folderPrefix(folder string) string {
	segments := core.SplitPath(folder)
	if len(segments) == 0 {
		return ""
	}
	return core.JoinPath(segments...) + "/"
}

// VisitAll visits every document and folder below prefix in depth-first
// pre-order, passing full paths.
func (r *VersionedRepo) VisitAll(ctx context.Context, prefix string, directive Directive, visit Visitor) error {
	return r.VisitAllIn(ctx, core.OfficialPerspective, prefix, directive, visit)
}

func (r *VersionedRepo) VisitAllIn(ctx context.Context, perspective, prefix string, directive Directive, visit Visitor) error {
	treeRef, err := r.folderTree(ctx, perspective, prefix, directive)
	if err != nil || treeRef == "" {
		return err
	}
	_, err = r.walkFolder(ctx, treeRef, folderPrefix(prefix), true, visit)
	return err
}

// VisitFolder visits the documents and child folders directly in
// folder, passing bare names.
func (r *VersionedRepo) VisitFolder(ctx context.Context, folder string, directive Directive, visit Visitor) error {
	return r.VisitFolderIn(ctx, core.OfficialPerspective, folder, directive, visit)
}

func (r *VersionedRepo) VisitFolderIn(ctx context.Context, perspective, folder string, directive Directive, visit Visitor) error {
	treeRef, err := r.folderTree(ctx, perspective, folder, directive)
	if err != nil || treeRef == "" {
		return err
	}
	_, err = r.walkFolder(ctx, treeRef, "", false, visit)
	return err
}

// VisitFolders visits the names of the child folders of folder.
func (r *VersionedRepo) VisitFolders(ctx context.Context, folder string, directive Directive, visit FolderVisitor) error {
	return r.VisitFoldersIn(ctx, core.OfficialPerspective, folder, directive, visit)
}

func (r *VersionedRepo) VisitFoldersIn(ctx context.Context, perspective, folder string, directive Directive, visit FolderVisitor) error {
	treeRef, err := r.folderTree(ctx, perspective, folder, directive)
	if err != nil || treeRef == "" {
		return err
	}
	tree, err := r.objects.GetTree(ctx, treeRef)
	if err != nil || tree == nil {
		_, err = r.skipCorrupt("tree", treeRef, err)
		return err
	}
	for _, child := range tree.Trees {
		if !visit(child.Name) {
			return nil
		}
	}
	return nil
}

// All yields every document below prefix with its full path. Errors end
// the sequence and are logged.
func (r *VersionedRepo) All(ctx context.Context, prefix string, directive Directive) iter.Seq2[string, []byte] {
	return r.AllIn(ctx, core.OfficialPerspective, prefix, directive)
}

func (r *VersionedRepo) AllIn(ctx context.Context, perspective, prefix string, directive Directive) iter.Seq2[string, []byte] {
	return func(yield func(path string, content []byte) bool) {
		err := r.VisitAllIn(ctx, perspective, prefix, directive, func(path string, content []byte, isFolder bool) bool {
			return isFolder || yield(path, content)
		})
		if err != nil {
			r.logger.Error("document iteration failed", "perspective", perspective, "prefix", prefix, "error", err)
		}
	}
}
