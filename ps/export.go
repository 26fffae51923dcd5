package ps

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"

	"github.com/nickyhof/VersionDB/core"
)

// NewMemoryGitRepository returns an empty in-memory git repository to
// export into.
func NewMemoryGitRepository() (*git.Repository, error) {
	return git.Init(memory.NewStorage(), git.WithWorkTree(memfs.New()))
}

// OpenGitRepository opens the git repository at baseDir, creating it
// when it does not exist yet.
func OpenGitRepository(baseDir string) (*git.Repository, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	if _, statErr := os.Stat(fs.Root()); statErr != nil {
		return git.Init(storer, git.WithWorkTree(wt))
	}
	return git.Open(storer, wt)
}

// GitExporter mirrors commit chains into a git repository: every
// document becomes a blob, every folder a tree, every commit a git
// commit, perspectives become branches and tags lightweight tags.
type GitExporter struct {
	objects *ObjectDatabase
	keyed   *KeyedDatabase
	repo    *git.Repository

	blobs   map[string]plumbing.Hash
	trees   map[string]plumbing.Hash
	commits map[string]plumbing.Hash
}

func (p *Persistence) NewGitExporter(repo *git.Repository) (*GitExporter, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	return &GitExporter{
		objects: p.objects,
		keyed:   p.keyed,
		repo:    repo,
		blobs:   make(map[string]plumbing.Hash),
		trees:   make(map[string]plumbing.Hash),
		commits: make(map[string]plumbing.Hash),
	}, nil
}

// ExportGit mirrors every perspective and tag into repo.
func (p *Persistence) ExportGit(ctx context.Context, repo *git.Repository) error {
	exporter, err := p.NewGitExporter(repo)
	if err != nil {
		return err
	}
	perspectives, err := p.keyed.GetPerspectives(ctx)
	if err != nil {
		return err
	}
	for _, name := range perspectives {
		if _, err := exporter.ExportPerspective(ctx, name); err != nil {
			return fmt.Errorf("failed to export perspective %s: %w", name, err)
		}
	}
	tags, err := p.keyed.GetTags(ctx)
	if err != nil {
		return err
	}
	for _, name := range tags {
		if _, err := exporter.ExportTag(ctx, name); err != nil {
			return fmt.Errorf("failed to export tag %s: %w", name, err)
		}
	}
	return nil
}

// ExportPerspective writes the perspective's history and points the
// branch of the same name at its latest commit.
func (e *GitExporter) ExportPerspective(ctx context.Context, name string) (plumbing.Hash, error) {
	perspective, err := e.keyed.GetPerspective(ctx, name)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if perspective == nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", core.ErrPerspectiveNotFound, name)
	}
	hash, err := e.exportChain(ctx, perspective.LatestCommit, perspective.RootCommit)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	return hash, e.repo.Storer.SetReference(ref)
}

// ExportTag writes the tagged history and a lightweight tag.
func (e *GitExporter) ExportTag(ctx context.Context, name string) (plumbing.Hash, error) {
	tag, err := e.keyed.GetTag(ctx, name)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if tag == nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", core.ErrTagNotFound, name)
	}
	root := ""
	if perspective, err := e.keyed.GetPerspective(ctx, tag.Perspective); err == nil && perspective != nil {
		root = perspective.RootCommit
	}
	hash, err := e.exportChain(ctx, tag.CommitRef, root)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), hash)
	return hash, e.repo.Storer.SetReference(ref)
}

// exportChain writes the commits from start back to root, oldest first,
// and returns the git hash of start.
func (e *GitExporter) exportChain(ctx context.Context, start, root string) (plumbing.Hash, error) {
	type link struct {
		ref    string
		commit *core.CommitObject
	}
	var chain []link
	err := e.objects.WalkCommits(ctx, start, root, func(ref string, commit *core.CommitObject) bool {
		if _, ok := e.commits[ref]; ok {
			chain = append(chain, link{ref: ref})
			return false
		}
		chain = append(chain, link{ref: ref, commit: commit})
		return true
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if len(chain) == 0 {
		return plumbing.ZeroHash, &core.CorruptObjectError{Ref: start, Kind: kindCommit.String(), Err: errMissingObject}
	}

	var parent plumbing.Hash
	for _, l := range slices.Backward(chain) {
		if l.commit == nil {
			parent = e.commits[l.ref]
			continue
		}
		hash, err := e.exportCommit(ctx, l.commit, parent)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		e.commits[l.ref] = hash
		parent = hash
	}
	return parent, nil
}

func (e *GitExporter) exportCommit(ctx context.Context, commit *core.CommitObject, parent plumbing.Hash) (plumbing.Hash, error) {
	treeHash, err := e.exportTree(ctx, commit.TreeRef)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	var parentHashes []plumbing.Hash
	if parent != plumbing.ZeroHash {
		parentHashes = []plumbing.Hash{parent}
	}

	sig := signature(commit)
	gitCommit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("%s\n\nversion: %d", commit.Comment, commit.Version),
		TreeHash:     treeHash,
		ParentHashes: parentHashes,
	}

	obj := e.repo.Storer.NewEncodedObject()
	if err := gitCommit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode commit: %w", err)
	}
	hash, err := e.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store commit: %w", err)
	}
	return hash, nil
}

// signature splits a "Name <email>" user into a git signature.
func signature(commit *core.CommitObject) object.Signature {
	name, email := commit.User, ""
	if open := strings.LastIndex(name, "<"); open >= 0 && strings.HasSuffix(name, ">") {
		name, email = strings.TrimSpace(name[:open]), name[open+1:len(name)-1]
	}
	return object.Signature{Name: name, Email: email, When: commit.When}
}

func (e *GitExporter) exportTree(ctx context.Context, treeRef string) (plumbing.Hash, error) {
	if hash, ok := e.trees[treeRef]; ok {
		return hash, nil
	}
	tree, err := e.objects.GetTree(ctx, treeRef)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if tree == nil {
		return plumbing.ZeroHash, &core.CorruptObjectError{Ref: treeRef, Kind: kindTree.String(), Err: errMissingObject}
	}

	entries := make([]object.TreeEntry, 0, len(tree.Trees))
	for _, child := range tree.Trees {
		hash, err := e.exportTree(ctx, child.Ref)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: child.Name, Mode: filemode.Dir, Hash: hash})
	}
	for _, bagRef := range tree.Bags {
		bag, err := e.objects.GetDocumentBag(ctx, bagRef)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if bag == nil {
			return plumbing.ZeroHash, &core.CorruptObjectError{Ref: bagRef, Kind: kindBag.String(), Err: errMissingObject}
		}
		for _, entry := range bag.Entries {
			hash, err := e.exportBlob(ctx, entry.Ref)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			entries = append(entries, object.TreeEntry{Name: entry.Name, Mode: filemode.Regular, Hash: hash})
		}
	}

	// Sort entries by name (Git requirement)
	slices.SortFunc(entries, func(a, b object.TreeEntry) int {
		return strings.Compare(gitSortName(a), gitSortName(b))
	})

	obj := e.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: entries}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}
	hash, err := e.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tree: %w", err)
	}
	e.trees[treeRef] = hash
	return hash, nil
}

// gitSortName compares directories with a trailing slash.
func gitSortName(entry object.TreeEntry) string {
	if entry.Mode == filemode.Dir {
		return entry.Name + "/"
	}
	return entry.Name
}

func (e *GitExporter) exportBlob(ctx context.Context, docRef string) (plumbing.Hash, error) {
	if hash, ok := e.blobs[docRef]; ok {
		return hash, nil
	}
	doc, err := e.objects.GetDocument(ctx, docRef)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if doc == nil {
		return plumbing.ZeroHash, &core.CorruptObjectError{Ref: docRef, Kind: kindDocument.String(), Err: errMissingObject}
	}

	obj := e.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(doc.Content)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to create blob writer: %w", err)
	}
	if _, err := writer.Write(doc.Content); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob data: %w", err)
	}
	writer.Close()

	hash, err := e.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store blob: %w", err)
	}
	e.blobs[docRef] = hash
	return hash, nil
}
