package ps

import (
	"context"
	"testing"
	"time"

	"github.com/nickyhof/VersionDB/core"
)

const testUser = "test <test@test.com>"

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	return persistence
}

// bootstrap writes an empty root commit and the OFFICIAL perspective.
func bootstrap(t *testing.T, p *Persistence) *core.PerspectiveObject {
	t.Helper()
	ctx := context.Background()

	treeRef, err := p.Objects().WriteTree(ctx, &core.TreeObject{})
	if err != nil {
		t.Fatalf("Failed to write empty tree: %v", err)
	}
	rootRef, err := p.Objects().WriteCommit(ctx, &core.CommitObject{
		TreeRef: treeRef,
		User:    testUser,
		When:    time.Now(),
		Comment: "root",
	})
	if err != nil {
		t.Fatalf("Failed to write root commit: %v", err)
	}
	perspective := &core.PerspectiveObject{
		BaseCommit:   rootRef,
		LatestCommit: rootRef,
		RootCommit:   rootRef,
		Owner:        testUser,
		Created:      time.Now(),
	}
	if err := p.Keyed().WritePerspective(ctx, core.OfficialPerspective, perspective); err != nil {
		t.Fatalf("Failed to write perspective: %v", err)
	}
	return perspective
}

func openStage(t *testing.T, p *Persistence, capacity int) *Stage {
	t.Helper()
	ctx := context.Background()
	perspective, err := p.Keyed().GetPerspective(ctx, core.OfficialPerspective)
	if err != nil || perspective == nil {
		t.Fatalf("Failed to read perspective: %v", err)
	}
	stage, err := OpenStage(ctx, p.Objects(), "default", core.OfficialPerspective, perspective, capacity)
	if err != nil {
		t.Fatalf("Failed to open stage: %v", err)
	}
	return stage
}

// commitStage publishes the stage the way the repository does and
// returns the new commit reference.
func commitStage(t *testing.T, p *Persistence, stage *Stage, comment string) string {
	t.Helper()
	ctx := context.Background()

	previous, err := p.Objects().GetCommit(ctx, stage.BaseCommit())
	if err != nil || previous == nil {
		t.Fatalf("Failed to read base commit: %v", err)
	}
	changes := stage.Changes()
	treeRef, collector, err := stage.Tree.Commit(ctx)
	if err != nil {
		t.Fatalf("Failed to flush stage: %v", err)
	}
	commitRef, err := p.Objects().WriteCommit(ctx, &core.CommitObject{
		PreviousReference: stage.BaseCommit(),
		TreeRef:           treeRef,
		Version:           previous.Version + 1,
		User:              testUser,
		When:              time.Now(),
		Comment:           comment,
		Changes:           changes,
		TreeReferences:    collector.Trees,
		BagReferences:     collector.Bags,
		DocReferences:     collector.Documents,
	})
	if err != nil {
		t.Fatalf("Failed to write commit: %v", err)
	}

	perspective := stage.Perspective
	perspective.LatestCommit = commitRef
	if err := p.Keyed().WritePerspective(ctx, stage.PerspectiveName, &perspective); err != nil {
		t.Fatalf("Failed to write perspective: %v", err)
	}
	if err := stage.Clear(ctx, &perspective); err != nil {
		t.Fatalf("Failed to clear stage: %v", err)
	}
	return commitRef
}

func latestTree(t *testing.T, p *Persistence) string {
	t.Helper()
	ctx := context.Background()
	perspective, _ := p.Keyed().GetPerspective(ctx, core.OfficialPerspective)
	commit, err := p.Objects().GetCommit(ctx, perspective.LatestCommit)
	if err != nil || commit == nil {
		t.Fatalf("Failed to read latest commit: %v", err)
	}
	return commit.TreeRef
}
