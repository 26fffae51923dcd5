// Package core provides core types used throughout VersionDB.
//
// The package defines the immutable object model stored by the
// repository engine (documents, document bags, trees, commits and
// commentary), the mutable pointer objects (perspectives and tags),
// the Identity of a writer, path helpers and the shared error values.
//
// # Identity
//
// Identity identifies the author of a commit:
//
//	identity := core.Identity{
//	    Name:  "John Doe",
//	    Email: "john@example.com",
//	}
//
// # Object Model
//
// A commit points at a root tree. A tree maps child folder names to
// child tree references and holds a list of document bag references
// for the documents stored directly at that level. A bag maps leaf
// names to document references. Every one of these objects is written
// once and never changed; a change produces new objects and a new
// commit chained to the previous one.
package core
