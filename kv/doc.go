// Package kv defines the KeyStore contract the repository engine is
// built on, and the backends that implement it.
//
// A KeyStore is a namespaced key/value store. Related stores created
// with CreateRelatedKeyStore share the backend of their parent but see
// an isolated key space, which is how the engine keeps its "version",
// "meta" and "cache" data apart.
//
// # Backends
//
//   - NewMemoryStore: process memory, for tests and ephemeral repositories
//   - NewBillyStore: files on a go-billy filesystem (osfs on disk, memfs in memory)
//   - OpenBoltStore / NewBoltStore: one bbolt bucket per namespace
//   - OpenBadgerStore / NewBadgerStore: badger keys prefixed by namespace
//   - NewS3Store: objects in an S3 bucket below a key prefix
package kv
