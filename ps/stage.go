package ps

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nickyhof/VersionDB/core"
)

// Operation is one recorded mutation of a stage.
type Operation struct {
	Type      OperationType
	Path      string
	Data      []byte
	Ref       string
	MustBeNew bool
}

type OperationType int

const (
	WriteOp OperationType = iota
	DeleteOp
	DeleteFolderOp
	ReferenceOp
)

// Stage is one in-flight transaction against a perspective: a working
// tree plus the perspective snapshot it started from.
//
// Mutations are recorded so the stage can be rebased when the
// perspective advances before the stage is committed.
type Stage struct {
	Name            string
	PerspectiveName string
	Perspective     core.PerspectiveObject
	Tree            *StageTree

	operations []Operation
	base       map[string]bool
	present    map[string]bool
}

// OpenStage starts a stage on the latest commit of perspective.
func OpenStage(ctx context.Context, objects *ObjectDatabase, name, perspectiveName string, perspective *core.PerspectiveObject, capacity int) (*Stage, error) {
	stage := &Stage{
		Name:            name,
		PerspectiveName: perspectiveName,
	}
	if err := stage.reset(ctx, objects, perspective, capacity); err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *Stage) reset(ctx context.Context, objects *ObjectDatabase, perspective *core.PerspectiveObject, capacity int) error {
	commit, err := objects.GetCommit(ctx, perspective.LatestCommit)
	if err != nil {
		return err
	}
	if commit == nil {
		return &core.CorruptObjectError{Ref: perspective.LatestCommit, Kind: kindCommit.String(), Err: errMissingObject}
	}
	s.Perspective = *perspective
	s.Tree = NewStageTree(objects, commit.TreeRef, capacity)
	s.base = make(map[string]bool)
	s.present = make(map[string]bool)
	return nil
}

// BaseCommit is the commit the stage's tree was built from.
func (s *Stage) BaseCommit() string {
	return s.Perspective.LatestCommit
}

// OperationCount returns the number of recorded operations
func (s *Stage) OperationCount() int {
	return len(s.operations)
}

// Empty reports whether the stage has no net changes.
func (s *Stage) Empty() bool {
	return len(s.Changes()) == 0
}

func (s *Stage) record(op Operation, path string, existed, present bool) {
	if _, ok := s.base[path]; !ok {
		s.base[path] = existed
	}
	s.present[path] = present
	s.operations = append(s.operations, op)
}

func (s *Stage) apply(ctx context.Context, op Operation) error {
	segments, err := core.DocumentPath(op.Path)
	if err != nil {
		return err
	}
	path := core.JoinPath(segments...)

	switch op.Type {
	case WriteOp, ReferenceOp:
		var existed bool
		if op.Type == WriteOp {
			existed, err = s.Tree.AddDocument(ctx, segments, op.Data, op.MustBeNew)
		} else {
			existed, err = s.Tree.AddReference(ctx, segments, op.Ref, op.MustBeNew)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		s.record(op, path, existed, true)
	case DeleteOp:
		removed, err := s.Tree.RemoveDocument(ctx, segments)
		if err != nil {
			return err
		}
		if removed {
			s.record(op, path, true, false)
		}
	case DeleteFolderOp:
		if _, err := s.removeFolder(ctx, segments, op); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown operation type %d", op.Type)
	}
	return nil
}

// Add stages content under key.
func (s *Stage) Add(ctx context.Context, key string, content []byte, mustBeNew bool) error {
	return s.apply(ctx, Operation{Type: WriteOp, Path: key, Data: slices.Clone(content), MustBeNew: mustBeNew})
}

// Remove stages the removal of key and reports whether it existed.
func (s *Stage) Remove(ctx context.Context, key string) (bool, error) {
	before := len(s.operations)
	if err := s.apply(ctx, Operation{Type: DeleteOp, Path: key}); err != nil {
		return false, err
	}
	return len(s.operations) > before, nil
}

// RemoveFolder stages the removal of a folder and returns the document
// paths it held.
func (s *Stage) RemoveFolder(ctx context.Context, key string) ([]string, error) {
	segments, err := core.DocumentPath(key)
	if err != nil {
		return nil, err
	}
	return s.removeFolder(ctx, segments, Operation{Type: DeleteFolderOp, Path: key})
}

func (s *Stage) removeFolder(ctx context.Context, segments []string, op Operation) ([]string, error) {
	removed, err := s.Tree.RemoveFolder(ctx, segments)
	if err != nil || removed == nil {
		return nil, err
	}
	for _, docPath := range removed {
		if _, ok := s.base[docPath]; !ok {
			s.base[docPath] = true
		}
		s.present[docPath] = false
	}
	s.operations = append(s.operations, op)
	return removed, nil
}

// Apply replays the changes of commit, whose snapshot is treeRef.
func (s *Stage) Apply(ctx context.Context, treeRef string, commit *core.CommitObject) error {
	for _, change := range commit.Changes {
		if change.Kind == core.ChangeRemoved {
			if _, err := s.Remove(ctx, change.Path); err != nil {
				return err
			}
			continue
		}
		segments, err := core.DocumentPath(change.Path)
		if err != nil {
			return err
		}
		docRef, doc, err := s.Tree.objects.FindDocument(ctx, treeRef, segments)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		if err := s.apply(ctx, Operation{Type: ReferenceOp, Path: change.Path, Ref: docRef}); err != nil {
			return err
		}
	}
	return nil
}

// Get reads key through the stage.
func (s *Stage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	segments, err := core.DocumentPath(key)
	if err != nil {
		return nil, false, err
	}
	return s.Tree.GetDocument(ctx, segments)
}

// Rebase rebuilds the stage on the latest commit of perspective and
// replays the recorded operations. A mustBeNew write that now collides
// fails with core.ErrAlreadyExists and leaves the stage as it was.
func (s *Stage) Rebase(ctx context.Context, perspective *core.PerspectiveObject) error {
	next := &Stage{Name: s.Name, PerspectiveName: s.PerspectiveName}
	if err := next.reset(ctx, s.Tree.objects, perspective, s.Tree.capacity); err != nil {
		return err
	}
	for _, op := range s.operations {
		if err := next.apply(ctx, op); err != nil {
			return err
		}
	}
	*s = *next
	return nil
}

// Clear drops the recorded operations and restarts on perspective.
func (s *Stage) Clear(ctx context.Context, perspective *core.PerspectiveObject) error {
	s.operations = nil
	return s.reset(ctx, s.Tree.objects, perspective, s.Tree.capacity)
}

// Changes collapses the operation log to one change per path, sorted by
// path. A path added and removed again that did not exist at the base
// is left out.
func (s *Stage) Changes() []core.DocumentChange {
	changes := make([]core.DocumentChange, 0, len(s.present))
	for path, present := range s.present {
		existed := s.base[path]
		switch {
		case present && existed:
			changes = append(changes, core.DocumentChange{Path: path, Kind: core.ChangeUpdated})
		case present:
			changes = append(changes, core.DocumentChange{Path: path, Kind: core.ChangeAdded})
		case existed:
			changes = append(changes, core.DocumentChange{Path: path, Kind: core.ChangeRemoved})
		}
	}
	slices.SortFunc(changes, func(a, b core.DocumentChange) int {
		return strings.Compare(a.Path, b.Path)
	})
	return changes
}
