package ps

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/kv"
)

// errMissingObject marks a reference held by a stored object that no
// longer resolves.
var errMissingObject = errors.New("referenced object is missing")

// ObjectDatabase stores immutable objects under their content reference.
type ObjectDatabase struct {
	store kv.KeyStore
}

func NewObjectDatabase(store kv.KeyStore) *ObjectDatabase {
	return &ObjectDatabase{store: store}
}

func (o *ObjectDatabase) write(ctx context.Context, kind objectKind, v any) (string, error) {
	data, err := encodeObject(kind, v)
	if err != nil {
		return "", err
	}
	ref := Sum(data)
	if err := o.store.Put(ctx, ref, data); err != nil {
		return "", fmt.Errorf("failed to store %s %s: %w", kind, ref, err)
	}
	return ref, nil
}

// read decodes the object at ref into v. It reports false for unknown
// references.
func (o *ObjectDatabase) read(ctx context.Context, kind objectKind, ref string, v any) (bool, error) {
	if ref == "" {
		return false, nil
	}
	data, err := o.store.Get(ctx, ref)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s %s: %w", kind, ref, err)
	}
	if err := decodeObject(ref, kind, data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (o *ObjectDatabase) WriteDocument(ctx context.Context, doc *core.DocumentObject) (string, error) {
	return o.write(ctx, kindDocument, doc)
}

func (o *ObjectDatabase) WriteDocumentBag(ctx context.Context, bag *core.DocumentBagObject) (string, error) {
	return o.write(ctx, kindBag, bag)
}

func (o *ObjectDatabase) WriteTree(ctx context.Context, tree *core.TreeObject) (string, error) {
	return o.write(ctx, kindTree, tree)
}

func (o *ObjectDatabase) WriteCommit(ctx context.Context, commit *core.CommitObject) (string, error) {
	return o.write(ctx, kindCommit, commit)
}

func (o *ObjectDatabase) WriteCommentary(ctx context.Context, commentary *core.CommentaryObject) (string, error) {
	return o.write(ctx, kindCommentary, commentary)
}

// GetDocument returns nil, nil when ref is unknown. The same holds for
// the other getters.
func (o *ObjectDatabase) GetDocument(ctx context.Context, ref string) (*core.DocumentObject, error) {
	var doc core.DocumentObject
	ok, err := o.read(ctx, kindDocument, ref, &doc)
	if !ok {
		return nil, err
	}
	return &doc, nil
}

func (o *ObjectDatabase) GetDocumentBag(ctx context.Context, ref string) (*core.DocumentBagObject, error) {
	var bag core.DocumentBagObject
	ok, err := o.read(ctx, kindBag, ref, &bag)
	if !ok {
		return nil, err
	}
	return &bag, nil
}

func (o *ObjectDatabase) GetTree(ctx context.Context, ref string) (*core.TreeObject, error) {
	var tree core.TreeObject
	ok, err := o.read(ctx, kindTree, ref, &tree)
	if !ok {
		return nil, err
	}
	return &tree, nil
}

func (o *ObjectDatabase) GetCommit(ctx context.Context, ref string) (*core.CommitObject, error) {
	var commit core.CommitObject
	ok, err := o.read(ctx, kindCommit, ref, &commit)
	if !ok {
		return nil, err
	}
	return &commit, nil
}

func (o *ObjectDatabase) GetCommentary(ctx context.Context, ref string) (*core.CommentaryObject, error) {
	var commentary core.CommentaryObject
	ok, err := o.read(ctx, kindCommentary, ref, &commentary)
	if !ok {
		return nil, err
	}
	return &commentary, nil
}

// Exists reports whether ref resolves to a stored object of any kind.
func (o *ObjectDatabase) Exists(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	return o.store.ContainsKey(ctx, ref)
}

// Delete removes every object in refs. Unknown references are ignored.
func (o *ObjectDatabase) Delete(ctx context.Context, refs []string) error {
	for _, ref := range refs {
		if err := o.store.Delete(ctx, ref); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", ref, err)
		}
	}
	return nil
}

// FindTree descends from treeRef along segments. It returns nil when a
// folder on the way does not exist.
func (o *ObjectDatabase) FindTree(ctx context.Context, treeRef string, segments []string) (*core.TreeObject, string, error) {
	tree, err := o.GetTree(ctx, treeRef)
	if err != nil {
		return nil, "", err
	}
	if tree == nil {
		return nil, "", &core.CorruptObjectError{Ref: treeRef, Kind: kindTree.String(), Err: errMissingObject}
	}

	ref := treeRef
	for _, segment := range segments {
		childRef, ok := tree.Child(segment)
		if !ok {
			return nil, "", nil
		}
		child, err := o.GetTree(ctx, childRef)
		if err != nil {
			return nil, "", err
		}
		if child == nil {
			return nil, "", &core.CorruptObjectError{Ref: childRef, Kind: kindTree.String(), Err: errMissingObject}
		}
		tree, ref = child, childRef
	}
	return tree, ref, nil
}

// LookupInTree finds the document named name among the bags of tree.
func (o *ObjectDatabase) LookupInTree(ctx context.Context, tree *core.TreeObject, name string) (string, bool, error) {
	for _, bagRef := range tree.Bags {
		bag, err := o.GetDocumentBag(ctx, bagRef)
		if err != nil {
			return "", false, err
		}
		if bag == nil {
			return "", false, &core.CorruptObjectError{Ref: bagRef, Kind: kindBag.String(), Err: errMissingObject}
		}
		if docRef, ok := bag.Lookup(name); ok {
			return docRef, true, nil
		}
	}
	return "", false, nil
}

// FindDocument resolves the document at segments below treeRef. It
// returns an empty reference when the path does not exist.
func (o *ObjectDatabase) FindDocument(ctx context.Context, treeRef string, segments []string) (string, *core.DocumentObject, error) {
	if len(segments) == 0 {
		return "", nil, core.ErrInvalidPath
	}
	folder, _, err := o.FindTree(ctx, treeRef, segments[:len(segments)-1])
	if err != nil || folder == nil {
		return "", nil, err
	}
	docRef, ok, err := o.LookupInTree(ctx, folder, segments[len(segments)-1])
	if err != nil || !ok {
		return "", nil, err
	}
	doc, err := o.GetDocument(ctx, docRef)
	if err != nil {
		return "", nil, err
	}
	if doc == nil {
		return "", nil, &core.CorruptObjectError{Ref: docRef, Kind: kindDocument.String(), Err: errMissingObject}
	}
	return docRef, doc, nil
}

// DiffTrees lists the documents that differ between the trees at from
// and to, sorted by path. An empty reference stands for an empty tree.
// Subtrees with equal references are not walked.
func (o *ObjectDatabase) DiffTrees(ctx context.Context, from, to string) ([]core.DocumentChange, error) {
	var changes []core.DocumentChange
	if err := o.diffTrees(ctx, from, to, "", &changes); err != nil {
		return nil, err
	}
	slices.SortFunc(changes, func(a, b core.DocumentChange) int {
		return strings.Compare(a.Path, b.Path)
	})
	return changes, nil
}

func (o *ObjectDatabase) diffTrees(ctx context.Context, from, to, prefix string, changes *[]core.DocumentChange) error {
	if from == to {
		return nil
	}
	fromDocs, fromTrees, err := o.treeLevel(ctx, from)
	if err != nil {
		return err
	}
	toDocs, toTrees, err := o.treeLevel(ctx, to)
	if err != nil {
		return err
	}

	for name, ref := range toDocs {
		old, ok := fromDocs[name]
		switch {
		case !ok:
			*changes = append(*changes, core.DocumentChange{Path: prefix + name, Kind: core.ChangeAdded})
		case old != ref:
			*changes = append(*changes, core.DocumentChange{Path: prefix + name, Kind: core.ChangeUpdated})
		}
	}
	for name := range fromDocs {
		if _, ok := toDocs[name]; !ok {
			*changes = append(*changes, core.DocumentChange{Path: prefix + name, Kind: core.ChangeRemoved})
		}
	}
	for name, ref := range toTrees {
		if err := o.diffTrees(ctx, fromTrees[name], ref, prefix+name+"/", changes); err != nil {
			return err
		}
	}
	for name, ref := range fromTrees {
		if _, ok := toTrees[name]; ok {
			continue
		}
		if err := o.diffTrees(ctx, ref, "", prefix+name+"/", changes); err != nil {
			return err
		}
	}
	return nil
}

// treeLevel returns the document and child tree references directly in
// the tree at ref, keyed by name.
func (o *ObjectDatabase) treeLevel(ctx context.Context, ref string) (map[string]string, map[string]string, error) {
	docs := make(map[string]string)
	trees := make(map[string]string)
	if ref == "" {
		return docs, trees, nil
	}
	tree, err := o.GetTree(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if tree == nil {
		return nil, nil, &core.CorruptObjectError{Ref: ref, Kind: kindTree.String(), Err: errMissingObject}
	}
	for _, bagRef := range tree.Bags {
		bag, err := o.GetDocumentBag(ctx, bagRef)
		if err != nil {
			return nil, nil, err
		}
		if bag == nil {
			return nil, nil, &core.CorruptObjectError{Ref: bagRef, Kind: kindBag.String(), Err: errMissingObject}
		}
		for _, entry := range bag.Entries {
			docs[entry.Name] = entry.Ref
		}
	}
	for _, child := range tree.Trees {
		trees[child.Name] = child.Ref
	}
	return docs, trees, nil
}
