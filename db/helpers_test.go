package db

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
	"github.com/stretchr/testify/require"
)

const testUser = "test <test@test.com>"

// testClock advances one minute on every read so commits get distinct,
// ordered times.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Now = newTestClock().Now
	return cfg
}

func newTestRepo(t *testing.T, configure ...func(cfg *Config)) *VersionedRepo {
	t.Helper()
	cfg := testConfig()
	for _, fn := range configure {
		fn(&cfg)
	}
	persistence, err := ps.NewMemoryPersistence()
	require.NoError(t, err)
	repo, err := New(context.Background(), persistence, cfg)
	require.NoError(t, err)
	return repo
}

func put(t *testing.T, repo *VersionedRepo, key, value string) CommitResult {
	t.Helper()
	result, err := repo.AddDocument(context.Background(), key, []byte(value), testUser, "put "+key, false)
	require.NoError(t, err)
	return result
}

func get(t *testing.T, repo *VersionedRepo, key string, directive Directive) (string, bool) {
	t.Helper()
	content, ok, err := repo.GetDocument(context.Background(), key, directive)
	require.NoError(t, err)
	return string(content), ok
}

type visited struct {
	name     string
	isFolder bool
}

func visitor(out *[]visited) Visitor {
	return func(name string, _ []byte, isFolder bool) bool {
		*out = append(*out, visited{name: name, isFolder: isFolder})
		return true
	}
}

func latestCommit(t *testing.T, repo *VersionedRepo, perspective string) (string, *core.CommitObject) {
	t.Helper()
	ctx := context.Background()
	p, err := repo.GetPerspective(ctx, perspective)
	require.NoError(t, err)
	commit, err := repo.GetCommitObject(ctx, p.LatestCommit)
	require.NoError(t, err)
	require.NotNil(t, commit)
	return p.LatestCommit, commit
}
