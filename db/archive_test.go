package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nickyhof/VersionDB/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noCache(cfg *Config) { cfg.Cache = false }

// fill writes doc0..doc<n-1>, one commit each, and returns the commit
// references oldest first.
func fill(t *testing.T, repo *VersionedRepo, n int) []string {
	t.Helper()
	refs := make([]string, n)
	for i := range n {
		refs[i] = put(t, repo, fmt.Sprintf("doc%d", i), fmt.Sprintf("v%d", i)).Transaction.Id
	}
	return refs
}

func TestArchiveVersionLimit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, noCache)
	refs := fill(t, repo, 5)
	perspective, err := repo.GetPerspective(ctx, core.OfficialPerspective)
	require.NoError(t, err)

	archived, err := repo.ArchiveRepoVersions(ctx, 2, time.Time{}, false, testUser)
	require.NoError(t, err)
	assert.True(t, archived)

	for i, ref := range refs {
		commit, err := repo.GetCommitObject(ctx, ref)
		require.NoError(t, err)
		if i >= 3 {
			assert.NotNil(t, commit, "commit %d is within the limit", i)
		} else {
			assert.Nil(t, commit, "commit %d is archived", i)
		}
	}
	root, err := repo.GetCommitObject(ctx, perspective.RootCommit)
	require.NoError(t, err)
	assert.NotNil(t, root, "the root commit is kept")

	for i := range 5 {
		content, ok := get(t, repo, fmt.Sprintf("doc%d", i), nil)
		assert.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", i), content)
	}

	history, err := repo.GetCommitHistory(ctx, core.OfficialPerspective, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, refs[4], history[0].Id)
	assert.Equal(t, refs[3], history[1].Id)
	assert.Equal(t, perspective.RootCommit, history[2].Id)

	// Reads pinned inside the gap fall through to the root.
	_, ok := get(t, repo, "doc0", AsOfVersion(2))
	assert.False(t, ok)
	content, ok := get(t, repo, "doc3", AsOfVersion(4))
	assert.True(t, ok)
	assert.Equal(t, "v3", content)

	archived, err = repo.ArchiveRepoVersions(ctx, 2, time.Time{}, false, testUser)
	require.NoError(t, err)
	assert.False(t, archived, "nothing left to archive")

	content, _ = get(t, repo, "doc0", nil)
	assert.Equal(t, "v0", content)
}

func TestArchiveDeletesReplacedDocuments(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, noCache)
	put(t, repo, "doc", "old")
	put(t, repo, "doc", "new")
	put(t, repo, "other", "x")

	history, err := repo.GetCommitHistory(ctx, core.OfficialPerspective, 0)
	require.NoError(t, err)
	oldCommit, err := repo.GetCommitObject(ctx, history[2].Id)
	require.NoError(t, err)
	require.NotEmpty(t, oldCommit.DocReferences)
	oldDoc := oldCommit.DocReferences[0]

	archived, err := repo.ArchiveRepoVersions(ctx, 1, time.Time{}, false, testUser)
	require.NoError(t, err)
	assert.True(t, archived)

	doc, err := repo.GetDocumentObject(ctx, oldDoc)
	require.NoError(t, err)
	assert.Nil(t, doc, "content only old commits referenced is deleted")

	content, _ := get(t, repo, "doc", nil)
	assert.Equal(t, "new", content)
}

func TestArchivePrecondition(t *testing.T) {
	repo := newTestRepo(t)
	fill(t, repo, 2)

	_, err := repo.ArchiveRepoVersions(context.Background(), 0, time.Time{}, false, testUser)
	assert.ErrorIs(t, err, core.ErrArchivePrecondition)
}

func TestArchiveKeepsTaggedCommits(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, noCache)
	refs := fill(t, repo, 2)
	_, err := repo.CreateTag(ctx, "release", core.OfficialPerspective, testUser)
	require.NoError(t, err)
	put(t, repo, "doc0", "changed")
	put(t, repo, "doc1", "changed")

	archived, err := repo.ArchiveRepoVersions(ctx, 1, time.Time{}, false, testUser)
	require.NoError(t, err)
	assert.True(t, archived)

	tagged, err := repo.GetCommitObject(ctx, refs[1])
	require.NoError(t, err)
	assert.NotNil(t, tagged)
	first, err := repo.GetCommitObject(ctx, refs[0])
	require.NoError(t, err)
	assert.Nil(t, first)

	content, ok, err := repo.GetTagDocument(ctx, "release", "doc0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v0", string(content))
}

func TestArchiveKeepsOtherPerspectives(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, noCache)
	refs := fill(t, repo, 3)
	_, err := repo.CreatePerspective(ctx, "dev", "", testUser, "")
	require.NoError(t, err)
	for i := range 3 {
		put(t, repo, fmt.Sprintf("other%d", i), "x")
	}

	_, err = repo.ArchiveRepoVersions(ctx, 1, time.Time{}, false, testUser)
	require.NoError(t, err)

	for _, ref := range refs {
		commit, err := repo.GetCommitObject(ctx, ref)
		require.NoError(t, err)
		assert.NotNil(t, commit, "history of dev is kept")
	}
	history, err := repo.GetCommitHistory(ctx, "dev", 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestArchiveTimeLimit(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*VersionedRepo, []string, time.Time) {
		repo := newTestRepo(t, noCache)
		refs := fill(t, repo, 5)
		third, err := repo.GetCommitObject(ctx, refs[2])
		require.NoError(t, err)
		return repo, refs, third.When.Add(time.Second)
	}

	t.Run("ArchivesExpired", func(t *testing.T) {
		repo, refs, cutoff := setup(t)
		archived, err := repo.ArchiveRepoVersions(ctx, 10, cutoff, false, testUser)
		require.NoError(t, err)
		assert.True(t, archived)

		for i, ref := range refs {
			commit, err := repo.GetCommitObject(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, i >= 3, commit != nil, "commit %d", i)
		}
	})

	t.Run("EnsureVersionLimit", func(t *testing.T) {
		repo, refs, cutoff := setup(t)
		archived, err := repo.ArchiveRepoVersions(ctx, 10, cutoff, true, testUser)
		require.NoError(t, err)
		assert.False(t, archived)

		for _, ref := range refs {
			commit, err := repo.GetCommitObject(ctx, ref)
			require.NoError(t, err)
			assert.NotNil(t, commit)
		}
	})

	t.Run("EnsureVersionLimitStillCutsAtLimit", func(t *testing.T) {
		repo, refs, cutoff := setup(t)
		archived, err := repo.ArchiveRepoVersions(ctx, 4, cutoff, true, testUser)
		require.NoError(t, err)
		assert.True(t, archived)

		first, err := repo.GetCommitObject(ctx, refs[0])
		require.NoError(t, err)
		assert.Nil(t, first)
		second, err := repo.GetCommitObject(ctx, refs[1])
		require.NoError(t, err)
		assert.NotNil(t, second)
	})
}
