package ps

import (
	"context"
	"errors"
	"testing"
)

func TestNewMemoryPersistence(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create memory persistence: %v", err)
	}

	if !persistence.IsInitialized() {
		t.Error("Expected persistence to be initialized")
	}
}

func TestPersistenceNotInitialized(t *testing.T) {
	var persistence Persistence

	if persistence.IsInitialized() {
		t.Error("Expected uninitialized persistence to return false")
	}

	err := persistence.ensureInitialized()
	if err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}

	if err := persistence.Drop(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected Drop to fail with ErrNotInitialized, got %v", err)
	}
}

func TestNewFilePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	persistence, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	perspective := bootstrap(t, persistence)

	reopened, err := NewFilePersistence(dir)
	if err != nil {
		t.Fatalf("Failed to reopen file persistence: %v", err)
	}
	got, err := reopened.Keyed().GetPerspective(ctx, "OFFICIAL")
	if err != nil {
		t.Fatalf("Failed to read perspective: %v", err)
	}
	if got == nil || got.LatestCommit != perspective.LatestCommit {
		t.Errorf("Expected perspective to survive reopen, got %+v", got)
	}
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	persistence := newTestPersistence(t)
	perspective := bootstrap(t, persistence)

	if err := persistence.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop: %v", err)
	}

	got, err := persistence.Keyed().GetPerspective(ctx, "OFFICIAL")
	if err != nil || got != nil {
		t.Errorf("Expected perspective to be gone, got %+v, %v", got, err)
	}
	commit, err := persistence.Objects().GetCommit(ctx, perspective.RootCommit)
	if err != nil || commit != nil {
		t.Errorf("Expected root commit to be gone, got %+v, %v", commit, err)
	}
}
