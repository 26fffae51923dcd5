package db

import (
	"context"
	"time"

	"github.com/nickyhof/VersionDB/core"
)

// Directive selects a historical commit while a read walks a
// perspective's history from its latest commit backwards.
//
// The walk calls Reset once, then Incorrect for each commit until it
// returns false; RetrieveCommit then returns that commit. Directives
// carry walk state and must not be shared between concurrent reads.
type Directive interface {
	Reset(ctx context.Context)
	Incorrect(ref string, commit *core.CommitObject) bool
	RetrieveCommit() (string, *core.CommitObject)
}

// selected keeps the commit a directive settled on.
type selected struct {
	ref    string
	commit *core.CommitObject
}

func (s *selected) Reset(context.Context) {
	s.ref, s.commit = "", nil
}

func (s *selected) RetrieveCommit() (string, *core.CommitObject) {
	return s.ref, s.commit
}

func (s *selected) accept(ref string, commit *core.CommitObject) bool {
	s.ref, s.commit = ref, commit
	return false
}

// VersionDirective selects the newest commit whose version is at most
// Version.
type VersionDirective struct {
	Version int64
	selected
}

func AsOfVersion(version int64) *VersionDirective {
	return &VersionDirective{Version: version}
}

func (d *VersionDirective) Incorrect(ref string, commit *core.CommitObject) bool {
	if commit.Version > d.Version {
		return true
	}
	return d.accept(ref, commit)
}

// TimeDirective selects the newest commit made at or before At.
type TimeDirective struct {
	At time.Time
	selected
}

func AsOf(at time.Time) *TimeDirective {
	return &TimeDirective{At: at}
}

func (d *TimeDirective) Incorrect(ref string, commit *core.CommitObject) bool {
	if commit.When.After(d.At) {
		return true
	}
	return d.accept(ref, commit)
}

// CommitDirective selects the commit with reference Ref.
type CommitDirective struct {
	Ref string
	selected
}

func AtCommit(ref string) *CommitDirective {
	return &CommitDirective{Ref: ref}
}

func (d *CommitDirective) Incorrect(ref string, commit *core.CommitObject) bool {
	if ref != d.Ref {
		return true
	}
	return d.accept(ref, commit)
}
