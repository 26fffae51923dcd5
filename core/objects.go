package core

import (
	"sort"
	"time"
)

// OfficialPerspective is the name of the trunk perspective.
const OfficialPerspective = "OFFICIAL"

// DocumentObject holds the content of one document version.
type DocumentObject struct {
	Content []byte `msgpack:"content"`
}

// BagEntry maps a leaf name to a document reference.
type BagEntry struct {
	Name string `msgpack:"name"`
	Ref  string `msgpack:"ref"`
}

// DocumentBagObject is a batch of documents stored at one tree level.
// Entries are kept sorted by name.
type DocumentBagObject struct {
	Entries []BagEntry `msgpack:"entries"`
}

// Lookup returns the document reference stored under name.
func (bag *DocumentBagObject) Lookup(name string) (string, bool) {
	i := sort.Search(len(bag.Entries), func(i int) bool { return bag.Entries[i].Name >= name })
	if i < len(bag.Entries) && bag.Entries[i].Name == name {
		return bag.Entries[i].Ref, true
	}
	return "", false
}

// TreeEntry maps a child folder name to a tree reference.
type TreeEntry struct {
	Name string `msgpack:"name"`
	Ref  string `msgpack:"ref"`
}

// TreeObject is a snapshot of one folder: its child folders plus the
// bags holding the documents stored directly in it.
type TreeObject struct {
	Trees []TreeEntry `msgpack:"trees"`
	Bags  []string    `msgpack:"bags"`
}

// Child returns the reference of the child folder with the given name.
func (tree *TreeObject) Child(name string) (string, bool) {
	i := sort.Search(len(tree.Trees), func(i int) bool { return tree.Trees[i].Name >= name })
	if i < len(tree.Trees) && tree.Trees[i].Name == name {
		return tree.Trees[i].Ref, true
	}
	return "", false
}

// ChangeKind describes what a commit did to a document path.
type ChangeKind int8

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeUpdated
	ChangeRemoved
)

func (kind ChangeKind) String() string {
	switch kind {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// DocumentChange is one entry of a commit's change summary.
type DocumentChange struct {
	Path string     `msgpack:"path"`
	Kind ChangeKind `msgpack:"kind"`
}

// CommitObject links a tree snapshot to the commit before it.
//
// TreeReferences, BagReferences and DocReferences list the objects
// written while building this commit; archival uses them to find what
// an archived commit introduced.
type CommitObject struct {
	PreviousReference string           `msgpack:"previous,omitempty"`
	TreeRef           string           `msgpack:"tree"`
	Version           int64            `msgpack:"version"`
	User              string           `msgpack:"user"`
	When              time.Time        `msgpack:"when"`
	Comment           string           `msgpack:"comment"`
	Changes           []DocumentChange `msgpack:"changes"`
	TreeReferences    []string         `msgpack:"trees,omitempty"`
	BagReferences     []string         `msgpack:"bags,omitempty"`
	DocReferences     []string         `msgpack:"docs,omitempty"`
	MergedFrom        string           `msgpack:"merged_from,omitempty"`
}

// IsRoot reports whether the commit starts its history.
func (commit *CommitObject) IsRoot() bool {
	return commit.PreviousReference == ""
}

// PerspectiveObject is the mutable head of one line of history.
type PerspectiveObject struct {
	BaseCommit   string    `msgpack:"base"`
	LatestCommit string    `msgpack:"latest"`
	RootCommit   string    `msgpack:"root"`
	Owner        string    `msgpack:"owner"`
	Description  string    `msgpack:"description"`
	RemoteLink   string    `msgpack:"remote,omitempty"`
	Created      time.Time `msgpack:"created"`
}

// TagObject names a fixed commit.
type TagObject struct {
	CommitRef   string    `msgpack:"commit"`
	Perspective string    `msgpack:"perspective"`
	Owner       string    `msgpack:"owner"`
	When        time.Time `msgpack:"when"`
}

// CommentaryObject is an audit note attached to a document or tree.
// PreviousRef chains the notes of one target, newest first.
type CommentaryObject struct {
	TargetRef   string    `msgpack:"target"`
	Path        string    `msgpack:"path"`
	User        string    `msgpack:"user"`
	When        time.Time `msgpack:"when"`
	Message     string    `msgpack:"message"`
	PreviousRef string    `msgpack:"previous,omitempty"`
}
