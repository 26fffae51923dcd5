package db

import (
	"context"
	"fmt"
	"time"

	"github.com/nickyhof/VersionDB/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ArchiveRepoVersions archives old commits of OFFICIAL.
func (r *VersionedRepo) ArchiveRepoVersions(ctx context.Context, versionLimit int, timeLimit time.Time, ensureVersionLimit bool, user string) (bool, error) {
	return r.ArchivePerspectiveVersions(ctx, core.OfficialPerspective, versionLimit, timeLimit, ensureVersionLimit, user)
}

// ArchivePerspectiveVersions deletes old commits of a perspective and the
// objects only they reference. It reports whether anything was archived.
//
// Walking back from the latest commit, the first versionLimit commits
// are kept. A commit older than timeLimit is archived even inside that
// window unless ensureVersionLimit is set; a zero timeLimit disables the
// age rule. Once one commit is archived every older one is too, except
// the root commit, the perspective's base, tagged commits and commits
// in the history of other perspectives, which are always kept.
func (r *VersionedRepo) ArchivePerspectiveVersions(ctx context.Context, perspective string, versionLimit int, timeLimit time.Time, ensureVersionLimit bool, user string) (bool, error) {
	if versionLimit <= 0 {
		return false, fmt.Errorf("%w: version limit must be positive, got %d", core.ErrArchivePrecondition, versionLimit)
	}

	ctx, span := tracer.Start(ctx, "VersionedRepo.Archive", trace.WithAttributes(
		attribute.String("perspective", perspective),
		attribute.Int("version_limit", versionLimit),
	))
	defer span.End()

	var archived bool
	err := r.withLock(ctx, perspectiveLock(perspective), func() error {
		var err error
		archived, err = r.archive(ctx, perspective, versionLimit, timeLimit, ensureVersionLimit, user)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetStatus(codes.Ok, "")
	return archived, nil
}

type chainLink struct {
	ref    string
	commit *core.CommitObject
}

func (r *VersionedRepo) archive(ctx context.Context, name string, versionLimit int, timeLimit time.Time, ensureVersionLimit bool, user string) (bool, error) {
	perspective, err := r.loadPerspective(ctx, name)
	if err != nil {
		return false, err
	}

	var chain []chainLink
	err = r.objects.WalkCommits(ctx, perspective.LatestCommit, perspective.RootCommit, func(ref string, commit *core.CommitObject) bool {
		chain = append(chain, chainLink{ref: ref, commit: commit})
		return true
	})
	if err != nil {
		return false, err
	}

	protected, err := r.protectedCommits(ctx, name, perspective)
	if err != nil {
		return false, err
	}

	var archived []chainLink
	retained := make([]string, 0, len(chain))
	cut := false
	for i, link := range chain {
		isRoot := link.ref == perspective.RootCommit || link.commit.IsRoot()
		if i > 0 && !isRoot && !cut {
			expired := !timeLimit.IsZero() && link.commit.When.Before(timeLimit) && !ensureVersionLimit
			cut = i >= versionLimit || expired
		}
		if cut && !isRoot && !protected[link.ref] {
			archived = append(archived, link)
			continue
		}
		retained = append(retained, link.ref)
	}
	if len(archived) == 0 {
		return false, nil
	}

	reachable := make(map[string]struct{})
	for _, ref := range retained {
		protected[ref] = true
	}
	for ref := range protected {
		commit, err := r.objects.GetCommit(ctx, ref)
		if err != nil {
			return false, err
		}
		if commit == nil {
			continue
		}
		if err := r.markReachable(ctx, commit.TreeRef, reachable); err != nil {
			return false, err
		}
	}

	seen := make(map[string]struct{})
	var doomed []string
	add := func(ref string) {
		if _, ok := reachable[ref]; ok {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		doomed = append(doomed, ref)
	}
	for _, link := range archived {
		add(link.ref)
		for _, refs := range [][]string{link.commit.TreeReferences, link.commit.BagReferences, link.commit.DocReferences} {
			for _, ref := range refs {
				add(ref)
			}
		}
	}

	if err := r.objects.Delete(ctx, doomed); err != nil {
		return false, err
	}
	r.metrics.ObjectsArchived.Add(float64(len(doomed)))
	r.logger.Info("archived versions", "perspective", name, "user", user,
		"commits", len(archived), "objects", len(doomed), "retained", len(retained))
	return true, nil
}

// protectedCommits lists the commits archival of perspective name must
// keep: its base, every tagged commit and the full history of every
// other perspective.
func (r *VersionedRepo) protectedCommits(ctx context.Context, name string, perspective *core.PerspectiveObject) (map[string]bool, error) {
	protected := map[string]bool{perspective.BaseCommit: true}

	tags, err := r.keyed.GetTags(ctx)
	if err != nil {
		return nil, err
	}
	for _, tagName := range tags {
		tag, err := r.keyed.GetTag(ctx, tagName)
		if err != nil {
			return nil, err
		}
		if tag != nil {
			protected[tag.CommitRef] = true
		}
	}

	names, err := r.keyed.GetPerspectives(ctx)
	if err != nil {
		return nil, err
	}
	for _, other := range names {
		if other == name {
			continue
		}
		p, err := r.keyed.GetPerspective(ctx, other)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		err = r.objects.WalkCommits(ctx, p.LatestCommit, p.RootCommit, func(ref string, _ *core.CommitObject) bool {
			protected[ref] = true
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return protected, nil
}

// markReachable adds every tree, bag and document below treeRef to
// reachable. Trees already marked are not walked again.
func (r *VersionedRepo) markReachable(ctx context.Context, treeRef string, reachable map[string]struct{}) error {
	if _, ok := reachable[treeRef]; ok {
		return nil
	}
	reachable[treeRef] = struct{}{}

	tree, err := r.objects.GetTree(ctx, treeRef)
	if err != nil {
		return err
	}
	if tree == nil {
		return nil
	}
	for _, bagRef := range tree.Bags {
		if _, ok := reachable[bagRef]; ok {
			continue
		}
		reachable[bagRef] = struct{}{}
		bag, err := r.objects.GetDocumentBag(ctx, bagRef)
		if err != nil {
			return err
		}
		if bag == nil {
			continue
		}
		for _, entry := range bag.Entries {
			reachable[entry.Ref] = struct{}{}
		}
	}
	for _, child := range tree.Trees {
		if err := r.markReachable(ctx, child.Ref, reachable); err != nil {
			return err
		}
	}
	return nil
}
