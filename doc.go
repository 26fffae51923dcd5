// Package VersionDB is a versioned document repository.
//
// Documents are byte values stored under slash separated keys such as
// "customers/42/profile". Every write is a commit; older states stay
// readable by version, time or commit reference until they are
// archived. Unchanged folders are shared between commits, so a commit
// only stores the path from the changed documents up to the root.
//
// # Quick Start
//
//	instance, err := VersionDB.Open(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer instance.Close()
//
//	repo := instance.Repo
//	repo.AddDocument(ctx, "foo/bar", []byte(`{"x":1}`), "alice", "first", false)
//	repo.AddDocument(ctx, "foo/bar", []byte(`{"x":2}`), "alice", "second", false)
//
//	latest, _, _ := repo.GetDocument(ctx, "foo/bar", nil)
//	first, _, _ := repo.GetDocument(ctx, "foo/bar", db.AsOfVersion(1))
//
// # Backends
//
// The backend is chosen by config.BackendConfig:
//   - memory: process memory, for tests
//   - file: one file per key through go-billy
//   - bolt: a bbolt database file
//   - badger: a badger directory
//   - s3: an S3 bucket or compatible service
//
// # Perspectives, Tags and Archival
//
// OFFICIAL is the trunk. CreatePerspective branches it, MergePerspective
// replays a branch back. Tags name fixed commits. ArchiveRepoVersions
// deletes old commits and the content only they reference.
package VersionDB
