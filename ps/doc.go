// Package ps provides the persistence layer for VersionDB.
//
// Objects are immutable and content addressed: a document, bag, tree,
// commit or commentary is stored under the sha3-256 of its encoded form
// in the "version" namespace. Perspectives, tags and the commentary
// index are mutable pointers kept in the "meta" namespace.
//
// # Memory Persistence
//
// For testing or ephemeral repositories:
//
//	persistence, err := ps.NewMemoryPersistence()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Staging
//
// A Stage collects document writes on top of a perspective's latest
// tree and flushes them as new objects:
//
//	stage, _ := ps.OpenStage(ctx, persistence.Objects(), "default", "OFFICIAL", perspective, ps.DefaultCapacity)
//	stage.Add(ctx, "foo/bar", []byte(`{"x":1}`), false)
//	treeRef, collector, _ := stage.Tree.Commit(ctx)
//
// # Git Export
//
// ExportGit mirrors perspectives as branches and tags as git tags:
//
//	repo, _ := ps.NewMemoryGitRepository()
//	err := persistence.ExportGit(ctx, repo)
package ps
