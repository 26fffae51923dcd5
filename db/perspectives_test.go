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

func TestPerspectives(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	first := put(t, repo, "shared", "1")

	dev, err := repo.CreatePerspective(ctx, "dev", "", testUser, "feature work")
	require.NoError(t, err)
	assert.Equal(t, first.Transaction.Id, dev.BaseCommit)
	assert.Equal(t, first.Transaction.Id, dev.LatestCommit)
	assert.Equal(t, core.OfficialPerspective, dev.RemoteLink)

	_, err = repo.CreatePerspective(ctx, "dev", "", testUser, "")
	assert.ErrorIs(t, err, core.ErrPerspectiveExists)
	_, err = repo.CreatePerspective(ctx, "bad/name", "", testUser, "")
	assert.Error(t, err)
	_, err = repo.CreatePerspective(ctx, "orphan", "missing", testUser, "")
	assert.ErrorIs(t, err, core.ErrPerspectiveNotFound)

	names, err := repo.ListPerspectives(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{core.OfficialPerspective, "dev"}, names)

	_, err = repo.AddDocumentsIn(ctx, "dev", map[string][]byte{"feature": []byte("x")}, testUser, "", false)
	require.NoError(t, err)

	_, ok := get(t, repo, "feature", nil)
	assert.False(t, ok, "dev writes stay out of OFFICIAL")
	content, ok, err := repo.GetDocumentIn(ctx, "dev", "feature", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", string(content))
	content, ok, err = repo.GetDocumentIn(ctx, "dev", "shared", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(content))

	history, err := repo.GetCommitHistory(ctx, "dev", 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	assert.ErrorIs(t, repo.DeletePerspective(ctx, core.OfficialPerspective), core.ErrUnsupported)
	require.NoError(t, repo.DeletePerspective(ctx, "dev"))
	_, err = repo.GetPerspective(ctx, "dev")
	assert.ErrorIs(t, err, core.ErrPerspectiveNotFound)
	assert.ErrorIs(t, repo.DeletePerspective(ctx, "dev"), core.ErrPerspectiveNotFound)
}

func TestMergePerspective(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "a", "base")
	_, err := repo.CreatePerspective(ctx, "dev", "", testUser, "")
	require.NoError(t, err)

	put(t, repo, "a", "official")
	put(t, repo, "c", "official only")
	_, err = repo.AddDocumentsIn(ctx, "dev", map[string][]byte{"a": []byte("dev")}, testUser, "", false)
	require.NoError(t, err)
	_, err = repo.AddDocumentsIn(ctx, "dev", map[string][]byte{"b": []byte("dev")}, testUser, "", false)
	require.NoError(t, err)
	_, err = repo.RemoveDocumentsIn(ctx, "dev", []string{"a"}, testUser, "")
	require.NoError(t, err)
	_, err = repo.AddDocumentsIn(ctx, "dev", map[string][]byte{"a": []byte("dev again")}, testUser, "", false)
	require.NoError(t, err)

	result, err := repo.MergePerspective(ctx, core.OfficialPerspective, "dev", testUser)
	require.NoError(t, err)
	assert.True(t, result.Committed)

	docs, err := repo.GetDocuments(ctx, []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"a": []byte("dev again"),
		"b": []byte("dev"),
		"c": []byte("official only"),
	}, docs)

	dev, err := repo.GetPerspective(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, dev.LatestCommit, dev.BaseCommit)

	_, commit := latestCommit(t, repo, core.OfficialPerspective)
	assert.Equal(t, dev.LatestCommit, commit.MergedFrom)
	assert.Equal(t, []core.DocumentChange{
		{Path: "a", Kind: core.ChangeUpdated},
		{Path: "b", Kind: core.ChangeAdded},
	}, commit.Changes)

	again, err := repo.MergePerspective(ctx, core.OfficialPerspective, "dev", testUser)
	require.NoError(t, err)
	assert.False(t, again.Committed, "nothing new to merge")
	assert.Equal(t, result.Transaction.Id, again.Transaction.Id)

	_, err = repo.MergePerspective(ctx, "dev", "dev", testUser)
	assert.Error(t, err)
	_, err = repo.MergePerspective(ctx, core.OfficialPerspective, "missing", testUser)
	assert.ErrorIs(t, err, core.ErrPerspectiveNotFound)
}

func TestMergeAfterArchive(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, noCache)
	put(t, repo, "shared", "base")
	_, err := repo.CreatePerspective(ctx, "dev", "", testUser, "")
	require.NoError(t, err)

	for _, key := range []string{"x", "y", "z"} {
		_, err := repo.AddDocumentsIn(ctx, "dev", map[string][]byte{key: []byte(key)}, testUser, "", false)
		require.NoError(t, err)
	}
	_, err = repo.RemoveDocumentsIn(ctx, "dev", []string{"shared"}, testUser, "")
	require.NoError(t, err)

	archived, err := repo.ArchivePerspectiveVersions(ctx, "dev", 1, time.Time{}, false, testUser)
	require.NoError(t, err)
	require.True(t, archived)

	result, err := repo.MergePerspective(ctx, core.OfficialPerspective, "dev", testUser)
	require.NoError(t, err)
	assert.True(t, result.Committed)

	exists, err := repo.GetExistence(ctx, []string{"x", "y", "z", "shared"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, false}, exists)

	_, commit := latestCommit(t, repo, core.OfficialPerspective)
	assert.Equal(t, []core.DocumentChange{
		{Path: "shared", Kind: core.ChangeRemoved},
		{Path: "x", Kind: core.ChangeAdded},
		{Path: "y", Kind: core.ChangeAdded},
		{Path: "z", Kind: core.ChangeAdded},
	}, commit.Changes)
}

func TestMergeOfficialAfterArchive(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, noCache)
	_, err := repo.CreatePerspective(ctx, "dev", "", testUser, "")
	require.NoError(t, err)

	fill(t, repo, 4)
	archived, err := repo.ArchiveRepoVersions(ctx, 2, time.Time{}, false, testUser)
	require.NoError(t, err)
	require.True(t, archived)

	_, err = repo.MergePerspective(ctx, "dev", core.OfficialPerspective, testUser)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("doc%d", i)
		content, ok, err := repo.GetDocumentIn(ctx, "dev", key, nil)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, fmt.Sprintf("v%d", i), string(content))
	}
}
