// Package db is the repository layer of VersionDB.
//
// VersionedRepo stores documents under slash separated keys and keeps
// the full history of every perspective. A perspective is a line of
// commits; OFFICIAL is created on first open and is the target of the
// plain document methods. Each write becomes a commit, and reads can be
// pinned to an earlier state with a Directive:
//
//	repo, err := db.New(ctx, ps.NewMemoryPersistence(), db.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	repo.AddDocument(ctx, "foo/bar", []byte("x"), "alice", "first", false)
//	old, ok, err := repo.GetDocument(ctx, "foo/bar", db.AsOfVersion(1))
//
// # Concurrency
//
// Writes take named locks from a LockHandler: a stage lock, then the
// lock of the perspective being published. Merges lock both
// perspectives in name order. A lock that cannot be acquired after the
// configured retries fails the call with core.ErrLockUnavailable.
//
// # Capabilities
//
// Repository groups every capability. SimpleRepo implements Documents
// only and answers the rest with core.ErrUnsupported.
package db
