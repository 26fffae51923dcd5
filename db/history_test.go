package db

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitHistoryIsLinked(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	for _, value := range []string{"1", "2", "3", "4", "5"} {
		put(t, repo, "doc", value)
	}

	history, err := repo.GetCommitHistory(ctx, core.OfficialPerspective, 0)
	require.NoError(t, err)
	require.Len(t, history, 6)

	for i, tx := range history {
		assert.Equal(t, int64(5-i), tx.Version)
		commit, err := repo.GetCommitObject(ctx, tx.Id)
		require.NoError(t, err)
		if i+1 < len(history) {
			assert.Equal(t, history[i+1].Id, commit.PreviousReference)
			assert.True(t, tx.When.After(history[i+1].When))
			assert.Equal(t, testUser, tx.Author)
		} else {
			assert.True(t, commit.IsRoot())
		}
	}

	limited, err := repo.GetCommitHistory(ctx, core.OfficialPerspective, 2)
	require.NoError(t, err)
	assert.Equal(t, history[:2], limited)
}

func TestHistoryLimitDefault(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, func(cfg *Config) { cfg.HistoryLimit = 3 })
	for _, value := range []string{"1", "2", "3", "4"} {
		put(t, repo, "doc", value)
	}

	history, err := repo.GetCommitHistory(ctx, core.OfficialPerspective, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "a", "1")
	second := put(t, repo, "b", "2")
	third := put(t, repo, "c", "3")

	latest, err := repo.LatestTransaction(ctx, core.OfficialPerspective)
	require.NoError(t, err)
	assert.Equal(t, third.Transaction.Id, latest.Id)
	assert.Equal(t, int64(3), latest.Version)
	assert.True(t, third.Transaction.When.Equal(latest.When))
	assert.Equal(t, []core.DocumentChange{{Path: "c", Kind: core.ChangeAdded}}, latest.Changes)

	since, err := repo.TransactionsSince(ctx, core.OfficialPerspective, second.Transaction.When)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, third.Transaction.Id, since[0].Id)
	assert.Equal(t, second.Transaction.Id, since[1].Id)

	_, err = repo.LatestTransaction(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrPerspectiveNotFound)
}

func TestEmptyWriteCommitsNothing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	first := put(t, repo, "a", "1")

	result, err := repo.AddDocuments(ctx, map[string][]byte{}, testUser, "", false)
	require.NoError(t, err)
	assert.False(t, result.Committed)
	assert.Equal(t, first.Transaction.Id, result.Transaction.Id)

	history, err := repo.GetCommitHistory(ctx, core.OfficialPerspective, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDirectives(t *testing.T) {
	repo := newTestRepo(t)
	first := put(t, repo, "doc", "v1")
	second := put(t, repo, "doc", "v2")
	put(t, repo, "doc", "v3")

	content, ok := get(t, repo, "doc", AsOfVersion(1))
	assert.True(t, ok)
	assert.Equal(t, "v1", content)

	content, _ = get(t, repo, "doc", AsOfVersion(2))
	assert.Equal(t, "v2", content)

	content, _ = get(t, repo, "doc", AsOfVersion(100))
	assert.Equal(t, "v3", content)

	_, ok = get(t, repo, "doc", AsOfVersion(0))
	assert.False(t, ok, "the root commit is empty")

	content, _ = get(t, repo, "doc", AtCommit(second.Transaction.Id))
	assert.Equal(t, "v2", content)

	_, ok = get(t, repo, "doc", AtCommit("unknown"))
	assert.False(t, ok)

	content, _ = get(t, repo, "doc", AsOf(first.Transaction.When))
	assert.Equal(t, "v1", content)

	content, _ = get(t, repo, "doc", AsOf(second.Transaction.When.Add(time.Second)))
	assert.Equal(t, "v2", content)

	_, ok = get(t, repo, "doc", AsOf(time.Time{}))
	assert.False(t, ok, "nothing existed before the root commit")
}

func TestDirectiveReuse(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "a", "1")
	put(t, repo, "b", "2")

	directive := AsOfVersion(1)
	exists, err := repo.GetExistence(ctx, []string{"a", "b"}, directive)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, exists)

	ref, commit := directive.RetrieveCommit()
	assert.NotEmpty(t, ref)
	assert.Equal(t, int64(1), commit.Version)

	var got []visited
	require.NoError(t, repo.VisitFolder(ctx, "", directive, visitor(&got)))
	assert.Equal(t, []visited{{name: "a"}}, got)
}

func TestExportGit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "foo/bar", "one")
	_, err := repo.CreateTag(ctx, "v1", "", testUser)
	require.NoError(t, err)
	put(t, repo, "foo/bar", "two")

	gitRepo, err := ps.NewMemoryGitRepository()
	require.NoError(t, err)
	require.NoError(t, repo.ExportGit(ctx, gitRepo))

	for name, want := range map[plumbing.ReferenceName]string{
		plumbing.NewBranchReferenceName(core.OfficialPerspective): "two",
		plumbing.NewTagReferenceName("v1"):                        "one",
	} {
		ref, err := gitRepo.Reference(name, true)
		require.NoError(t, err, name)
		commit, err := gitRepo.CommitObject(ref.Hash())
		require.NoError(t, err)
		file, err := commit.File("foo/bar")
		require.NoError(t, err)
		contents, err := file.Contents()
		require.NoError(t, err)
		assert.Equal(t, want, contents, name)
	}
}

func TestCommitResultString(t *testing.T) {
	result := CommitResult{
		Committed:        true,
		DocumentsWritten: 2,
		DocumentsRemoved: 1,
		ExecutionTimeSec: 0.25,
		Transaction:      ps.Transaction{Version: 4},
	}
	assert.Equal(t, "2 document(s) written, 1 document(s) removed, version 4 (250ms)", result.String())

	var buf bytes.Buffer
	CommitResult{ExecutionTimeSec: 75}.Display(&buf)
	assert.Equal(t, "nothing to commit (1m15s)\n", buf.String())

	assert.Equal(t, "<1ms", formatDuration(0.0001))
	assert.Equal(t, "2.5s", formatDuration(2.5))
	assert.Equal(t, "2m", formatDuration(120))
}
