package db

import (
	"context"
	"fmt"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
)

// CreateStage returns the named stage, opening it on the latest commit
// of perspective if it does not exist yet. An existing stage is returned
// as is, whatever perspective it was opened on.
func (r *VersionedRepo) CreateStage(ctx context.Context, name, perspective string) (*ps.Stage, error) {
	if err := validName("stage", name); err != nil {
		return nil, err
	}
	if perspective == "" {
		perspective = core.OfficialPerspective
	}

	var stage *ps.Stage
	err := r.withLock(ctx, stageLock(name), func() error {
		r.mu.Lock()
		existing, ok := r.stages[name]
		r.mu.Unlock()
		if ok {
			stage = existing
			return nil
		}

		opened, err := r.openStage(ctx, name, perspective)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.stages[name] = opened
		r.mu.Unlock()
		stage = opened
		return nil
	})
	return stage, err
}

// GetStage returns an open stage or core.ErrStageNotFound.
func (r *VersionedRepo) GetStage(name string) (*ps.Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage, ok := r.stages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrStageNotFound, name)
	}
	return stage, nil
}

// withStage runs fn on the named stage under its lock.
func (r *VersionedRepo) withStage(ctx context.Context, name string, fn func(stage *ps.Stage) error) error {
	return r.withLock(ctx, stageLock(name), func() error {
		stage, err := r.GetStage(name)
		if err != nil {
			return err
		}
		return fn(stage)
	})
}

func (r *VersionedRepo) AddToStage(ctx context.Context, name, key string, value []byte, mustBeNew bool) error {
	return r.withStage(ctx, name, func(stage *ps.Stage) error {
		return stage.Add(ctx, key, value, mustBeNew)
	})
}

// RemoveFromStage stages a removal and reports whether the document
// existed in the stage.
func (r *VersionedRepo) RemoveFromStage(ctx context.Context, name, key string) (bool, error) {
	var removed bool
	err := r.withStage(ctx, name, func(stage *ps.Stage) error {
		var err error
		removed, err = stage.Remove(ctx, key)
		return err
	})
	return removed, err
}

// CommitStage publishes the named stage. The stage stays open on the new
// latest commit.
func (r *VersionedRepo) CommitStage(ctx context.Context, name, user, comment string) (CommitResult, error) {
	var result CommitResult
	err := r.withStage(ctx, name, func(stage *ps.Stage) error {
		var err error
		result, err = r.publish(ctx, stage, user, comment)
		return err
	})
	return result, err
}

// RemoveStage discards the named stage and whatever it staged.
func (r *VersionedRepo) RemoveStage(ctx context.Context, name string) error {
	return r.withLock(ctx, stageLock(name), func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.stages[name]; !ok {
			return fmt.Errorf("%w: %s", core.ErrStageNotFound, name)
		}
		delete(r.stages, name)
		return nil
	})
}
