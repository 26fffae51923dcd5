package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/kv"
	"github.com/nickyhof/VersionDB/ps"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBootstrapsOfficial(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	perspective, err := repo.GetPerspective(ctx, core.OfficialPerspective)
	require.NoError(t, err)
	assert.Equal(t, perspective.RootCommit, perspective.LatestCommit)
	assert.Equal(t, perspective.RootCommit, perspective.BaseCommit)

	root, err := repo.GetCommitObject(ctx, perspective.RootCommit)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.True(t, root.IsRoot())
	assert.Equal(t, int64(0), root.Version)
	assert.Equal(t, "system", root.User)

	// Reopening the same persistence keeps the existing perspective.
	again, err := New(ctx, repo.Persistence(), testConfig())
	require.NoError(t, err)
	reopened, err := again.GetPerspective(ctx, core.OfficialPerspective)
	require.NoError(t, err)
	assert.Equal(t, perspective.RootCommit, reopened.RootCommit)
}

func TestNewRequiresPersistence(t *testing.T) {
	_, err := New(context.Background(), &ps.Persistence{}, testConfig())
	assert.ErrorIs(t, err, ps.ErrNotInitialized)
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	result := put(t, repo, "foo/bar", `{"x":1}`)
	assert.True(t, result.Committed)
	assert.Equal(t, 1, result.DocumentsWritten)
	assert.Equal(t, int64(1), result.Transaction.Version)

	content, ok := get(t, repo, "foo/bar", nil)
	assert.True(t, ok)
	assert.Equal(t, `{"x":1}`, content)

	_, ok = get(t, repo, "foo/missing", nil)
	assert.False(t, ok)

	exists, err := repo.DocumentExists(ctx, "/foo//bar/", nil)
	require.NoError(t, err)
	assert.True(t, exists, "paths are normalized")

	_, err = repo.AddDocument(ctx, "", []byte("x"), testUser, "", false)
	assert.ErrorIs(t, err, core.ErrInvalidPath)
}

func TestAddDocumentMustBeNew(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "foo", "one")

	_, err := repo.AddDocument(ctx, "foo", []byte("two"), testUser, "", true)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	content, _ := get(t, repo, "foo", nil)
	assert.Equal(t, "one", content)
}

func TestAddDocumentsSingleCommit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	result, err := repo.AddDocuments(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"c": []byte("3"),
	}, testUser, "batch", false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.DocumentsWritten)
	assert.Equal(t, int64(1), result.Transaction.Version)

	_, commit := latestCommit(t, repo, core.OfficialPerspective)
	assert.Equal(t, []core.DocumentChange{
		{Path: "a", Kind: core.ChangeAdded},
		{Path: "b", Kind: core.ChangeAdded},
		{Path: "c", Kind: core.ChangeAdded},
	}, commit.Changes)
}

func TestRemoveDocument(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "foo/bar", "x")

	result, err := repo.RemoveDocument(ctx, "foo/bar", testUser, "rm")
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, 1, result.DocumentsRemoved)

	_, ok := get(t, repo, "foo/bar", nil)
	assert.False(t, ok)

	result, err = repo.RemoveDocument(ctx, "foo/bar", testUser, "rm again")
	require.NoError(t, err)
	assert.False(t, result.Committed, "removing a missing document commits nothing")
	assert.Equal(t, int64(2), result.Transaction.Version)
}

func TestRemoveFolder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_, err := repo.AddDocuments(ctx, map[string][]byte{
		"foo/a":     []byte("1"),
		"foo/sub/b": []byte("2"),
		"keep":      []byte("3"),
	}, testUser, "", false)
	require.NoError(t, err)

	result, err := repo.RemoveFolder(ctx, "foo", testUser, "rm -r")
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocumentsRemoved)

	exists, err := repo.GetExistence(ctx, []string{"foo/a", "foo/sub/b", "keep"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, exists)

	var folders []string
	require.NoError(t, repo.VisitFolders(ctx, "", nil, func(name string) bool {
		folders = append(folders, name)
		return true
	}))
	assert.Empty(t, folders)
}

func TestGetDocuments(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "a/1", "one")
	put(t, repo, "b/2", "two")

	docs, err := repo.GetDocuments(ctx, []string{"a/1", "b/2", "c/3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a/1": []byte("one"), "b/2": []byte("two")}, docs)
}

func TestGetExistenceMatchesSingleLookups(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, func(cfg *Config) { cfg.Capacity = 3 })

	docs := make(map[string][]byte)
	for i := range 20 {
		docs[fmt.Sprintf("folder%d/doc%02d", i%3, i)] = []byte("x")
	}
	_, err := repo.AddDocuments(ctx, docs, testUser, "", false)
	require.NoError(t, err)

	keys := []string{"folder0/doc00", "folder1/doc01", "folder1/doc00", "nope/doc01", "folder2/doc20", "folder2/doc17", "doc00"}
	exists, err := repo.GetExistence(ctx, keys, nil)
	require.NoError(t, err)
	for i, key := range keys {
		single, err := repo.DocumentExists(ctx, key, nil)
		require.NoError(t, err)
		assert.Equal(t, single, exists[i], key)
	}
	assert.Equal(t, []bool{true, true, false, false, false, true, false}, exists)
}

func TestVisitFolder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "foo/bar", "1")
	put(t, repo, "foo/baz", "2")

	var got []visited
	require.NoError(t, repo.VisitFolder(ctx, "foo", nil, visitor(&got)))
	assert.Equal(t, []visited{{name: "bar"}, {name: "baz"}}, got)
}

func TestVisitAllOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, func(cfg *Config) { cfg.Capacity = 1 })
	_, err := repo.AddDocuments(ctx, map[string][]byte{
		"z":     []byte("1"),
		"a":     []byte("2"),
		"b/c":   []byte("3"),
		"b/d/e": []byte("4"),
	}, testUser, "", false)
	require.NoError(t, err)

	var got []visited
	require.NoError(t, repo.VisitAll(ctx, "", nil, visitor(&got)))
	assert.Equal(t, []visited{
		{name: "a"},
		{name: "z"},
		{name: "b", isFolder: true},
		{name: "b/c"},
		{name: "b/d", isFolder: true},
		{name: "b/d/e"},
	}, got)

	got = nil
	require.NoError(t, repo.VisitAll(ctx, "b", nil, visitor(&got)))
	assert.Equal(t, []visited{
		{name: "b/c"},
		{name: "b/d", isFolder: true},
		{name: "b/d/e"},
	}, got)

	got = nil
	require.NoError(t, repo.VisitAll(ctx, "missing", nil, visitor(&got)))
	assert.Empty(t, got)

	paths := make(map[string]string)
	for path, content := range repo.All(ctx, "", nil) {
		paths[path] = string(content)
	}
	assert.Equal(t, map[string]string{"a": "2", "z": "1", "b/c": "3", "b/d/e": "4"}, paths)
}

func TestVisitStops(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_, err := repo.AddDocuments(ctx, map[string][]byte{"a": nil, "b": nil, "c": nil}, testUser, "", false)
	require.NoError(t, err)

	count := 0
	require.NoError(t, repo.VisitAll(ctx, "", nil, func(string, []byte, bool) bool {
		count++
		return count < 2
	}))
	assert.Equal(t, 2, count)
}

func TestStructuralSharing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "a/x", "1")
	put(t, repo, "b/y", "2")
	_, first := latestCommit(t, repo, core.OfficialPerspective)

	put(t, repo, "a/x", "3")
	_, second := latestCommit(t, repo, core.OfficialPerspective)

	firstRoot, err := repo.GetTreeObject(ctx, first.TreeRef)
	require.NoError(t, err)
	secondRoot, err := repo.GetTreeObject(ctx, second.TreeRef)
	require.NoError(t, err)

	firstB, _ := firstRoot.Child("b")
	secondB, _ := secondRoot.Child("b")
	assert.Equal(t, firstB, secondB, "untouched folder is shared")
	assert.NotContains(t, second.TreeReferences, secondB)

	firstA, _ := firstRoot.Child("a")
	secondA, _ := secondRoot.Child("a")
	assert.NotEqual(t, firstA, secondA)
	assert.Contains(t, second.TreeReferences, secondA)
	assert.Contains(t, second.TreeReferences, second.TreeRef)
	assert.Equal(t, []core.DocumentChange{{Path: "a/x", Kind: core.ChangeUpdated}}, second.Changes)
}

func TestBagCapacity(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, func(cfg *Config) { cfg.Capacity = 4 })

	docs := make(map[string][]byte)
	for i := range 10 {
		docs[fmt.Sprintf("d%d", i)] = []byte{byte(i)}
	}
	_, err := repo.AddDocuments(ctx, docs, testUser, "", false)
	require.NoError(t, err)

	_, commit := latestCommit(t, repo, core.OfficialPerspective)
	tree, err := repo.GetTreeObject(ctx, commit.TreeRef)
	require.NoError(t, err)
	assert.Len(t, tree.Bags, 3)
	for _, bagRef := range tree.Bags {
		bag, err := repo.Objects().GetDocumentBag(ctx, bagRef)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(bag.Entries), 4)
	}
}

func TestCorruptBagIsSkipped(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, func(cfg *Config) {
		cfg.Capacity = 1
		cfg.Cache = false
	})
	_, err := repo.AddDocuments(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, testUser, "", false)
	require.NoError(t, err)

	_, commit := latestCommit(t, repo, core.OfficialPerspective)
	tree, err := repo.GetTreeObject(ctx, commit.TreeRef)
	require.NoError(t, err)
	require.Len(t, tree.Bags, 2)

	bag, err := repo.Objects().GetDocumentBag(ctx, tree.Bags[0])
	require.NoError(t, err)
	corrupted, kept := bag.Entries[0].Name, "a"
	if corrupted == "a" {
		kept = "b"
	}

	version, err := repo.Persistence().Store().CreateRelatedKeyStore(ps.VersionNamespace)
	require.NoError(t, err)
	require.NoError(t, version.Put(ctx, tree.Bags[0], []byte("garbage")))

	var got []visited
	require.NoError(t, repo.VisitFolder(ctx, "", nil, visitor(&got)))
	assert.Equal(t, []visited{{name: kept}}, got)

	exists, err := repo.GetExistence(ctx, []string{corrupted, kept}, nil)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, exists)
}

func TestCacheServesLatest(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	put(t, repo, "foo", "one")

	cached, err := repo.Persistence().Cache().Get(ctx, cacheKey(core.OfficialPerspective, "foo"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), cached)

	put(t, repo, "foo", "two")
	content, _ := get(t, repo, "foo", nil)
	assert.Equal(t, "two", content)

	_, err = repo.RemoveDocument(ctx, "foo", testUser, "")
	require.NoError(t, err)
	_, err = repo.Persistence().Cache().Get(ctx, cacheKey(core.OfficialPerspective, "foo"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
	_, ok := get(t, repo, "foo", nil)
	assert.False(t, ok)
}

func TestCacheIgnoresCommitsMadeWithoutIt(t *testing.T) {
	ctx := context.Background()
	persistence, err := ps.NewMemoryPersistence()
	require.NoError(t, err)

	open := func(cache bool) *VersionedRepo {
		cfg := testConfig()
		cfg.Cache = cache
		repo, err := New(ctx, persistence, cfg)
		require.NoError(t, err)
		return repo
	}

	cached := open(true)
	put(t, cached, "foo", "one")
	content, _ := get(t, cached, "foo", nil)
	assert.Equal(t, "one", content)

	put(t, open(false), "foo", "two")

	reopened := open(true)
	content, _ = get(t, reopened, "foo", nil)
	assert.Equal(t, "two", content)
	content, _ = get(t, cached, "foo", nil)
	assert.Equal(t, "two", content)

	_, err = persistence.Cache().Get(ctx, cacheKey(core.OfficialPerspective, "foo"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	put(t, reopened, "bar", "three")
	content, _ = get(t, reopened, "bar", nil)
	assert.Equal(t, "three", content)
	assert.Equal(t, 1.0, testutil.ToFloat64(reopened.Metrics().CacheLookups.WithLabelValues("hit")))
}
