package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MergePerspective replays the commits source made since its base onto
// target, oldest first, and commits the result on target. Where both
// sides wrote the same path the replayed source write wins. The base of
// source then moves to its latest commit. With nothing to replay the
// merge commits nothing.
func (r *VersionedRepo) MergePerspective(ctx context.Context, target, source, user string) (CommitResult, error) {
	if target == source {
		return CommitResult{}, fmt.Errorf("cannot merge perspective %s into itself", target)
	}

	ctx, span := tracer.Start(ctx, "VersionedRepo.Merge", trace.WithAttributes(
		attribute.String("target", target),
		attribute.String("source", source),
	))
	defer span.End()

	// Both perspective locks, taken in name order.
	first, second := perspectiveLock(target), perspectiveLock(source)
	if second < first {
		first, second = second, first
	}

	var result CommitResult
	err := r.withLock(ctx, first, func() error {
		return r.withLock(ctx, second, func() error {
			var err error
			result, err = r.merge(ctx, target, source, user)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (r *VersionedRepo) merge(ctx context.Context, target, source, user string) (CommitResult, error) {
	sourcePerspective, err := r.loadPerspective(ctx, source)
	if err != nil {
		return CommitResult{}, err
	}
	targetPerspective, err := r.loadPerspective(ctx, target)
	if err != nil {
		return CommitResult{}, err
	}

	type replay struct {
		ref    string
		commit *core.CommitObject
	}
	var commits []replay
	reachedBase, linked := false, true
	next := sourcePerspective.LatestCommit
	err = r.objects.WalkCommits(ctx, sourcePerspective.LatestCommit, sourcePerspective.RootCommit, func(ref string, commit *core.CommitObject) bool {
		if ref != next {
			linked = false
		}
		if ref == sourcePerspective.BaseCommit {
			reachedBase = true
			return false
		}
		commits = append(commits, replay{ref: ref, commit: commit})
		next = commit.PreviousReference
		return true
	})
	if err != nil {
		return CommitResult{}, err
	}
	if len(commits) == 0 {
		latest, err := r.loadCommit(ctx, targetPerspective.LatestCommit)
		if err != nil {
			return CommitResult{}, err
		}
		return CommitResult{Transaction: ps.TransactionOf(targetPerspective.LatestCommit, latest)}, nil
	}

	stage, err := ps.OpenStage(ctx, r.objects, "merge", target, targetPerspective, r.config.Capacity)
	if err != nil {
		return CommitResult{}, err
	}
	if reachedBase && linked {
		for _, c := range slices.Backward(commits) {
			if err := stage.Apply(ctx, c.commit.TreeRef, c.commit); err != nil {
				return CommitResult{}, fmt.Errorf("failed to replay commit %s: %w", c.ref, err)
			}
		}
	} else if err := r.applyDiff(ctx, stage, sourcePerspective); err != nil {
		return CommitResult{}, err
	}

	comment := fmt.Sprintf("merge %s into %s", source, target)
	result, err := r.publishLocked(ctx, stage, user, comment, sourcePerspective.LatestCommit)
	if err != nil {
		return result, err
	}

	sourcePerspective.BaseCommit = sourcePerspective.LatestCommit
	if err := r.keyed.WritePerspective(ctx, source, sourcePerspective); err != nil {
		return result, fmt.Errorf("failed to advance base of %s: %w", source, err)
	}
	r.logger.Info("merged perspective", "source", source, "target", target,
		"commits", len(commits), "commit", result.Transaction.Id)
	return result, nil
}

// applyDiff stages the difference between the base and latest trees of
// source. It stands in for the replay when archival has removed part of
// the commit chain in between.
func (r *VersionedRepo) applyDiff(ctx context.Context, stage *ps.Stage, source *core.PerspectiveObject) error {
	base, err := r.loadCommit(ctx, source.BaseCommit)
	if err != nil {
		return err
	}
	latest, err := r.loadCommit(ctx, source.LatestCommit)
	if err != nil {
		return err
	}
	changes, err := r.objects.DiffTrees(ctx, base.TreeRef, latest.TreeRef)
	if err != nil {
		return fmt.Errorf("failed to diff %s against its base: %w", source.LatestCommit, err)
	}
	r.logger.Debug("merging archived chain by diff", "perspective", stage.PerspectiveName,
		"from", source.LatestCommit, "changes", len(changes))
	if err := stage.Apply(ctx, latest.TreeRef, &core.CommitObject{Changes: changes}); err != nil {
		return fmt.Errorf("failed to apply diff of %s: %w", source.LatestCommit, err)
	}
	return nil
}
