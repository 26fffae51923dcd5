package db

import (
	"context"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
)

// GetCommitHistory lists up to limit commits of perspective, newest
// first. A limit of zero or less falls back to Config.HistoryLimit.
func (r *VersionedRepo) GetCommitHistory(ctx context.Context, perspectiveName string, limit int) ([]ps.Transaction, error) {
	perspective, err := r.loadPerspective(ctx, perspectiveName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = r.config.HistoryLimit
	}

	var history []ps.Transaction
	err = r.objects.WalkCommits(ctx, perspective.LatestCommit, perspective.RootCommit, func(ref string, commit *core.CommitObject) bool {
		history = append(history, ps.TransactionOf(ref, commit))
		return limit <= 0 || len(history) < limit
	})
	return history, err
}

// LatestTransaction describes the newest commit of perspective.
func (r *VersionedRepo) LatestTransaction(ctx context.Context, perspective string) (ps.Transaction, error) {
	return r.persistence.LatestTransaction(ctx, perspective)
}

// TransactionsSince lists the commits of perspective made at or after
// asof, newest first.
func (r *VersionedRepo) TransactionsSince(ctx context.Context, perspective string, asof time.Time) ([]ps.Transaction, error) {
	return r.persistence.TransactionsSince(ctx, perspective, asof)
}

// GetCommitObject reads a commit by reference; nil when unknown.
func (r *VersionedRepo) GetCommitObject(ctx context.Context, ref string) (*core.CommitObject, error) {
	return r.objects.GetCommit(ctx, ref)
}

func (r *VersionedRepo) GetTreeObject(ctx context.Context, ref string) (*core.TreeObject, error) {
	return r.objects.GetTree(ctx, ref)
}

func (r *VersionedRepo) GetDocumentObject(ctx context.Context, ref string) (*core.DocumentObject, error) {
	return r.objects.GetDocument(ctx, ref)
}

// ExportGit mirrors every perspective and tag into repo.
func (r *VersionedRepo) ExportGit(ctx context.Context, repo *git.Repository) error {
	return r.persistence.ExportGit(ctx, repo)
}
