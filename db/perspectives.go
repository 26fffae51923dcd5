package db

import (
	"context"
	"fmt"

	"github.com/nickyhof/VersionDB/core"
)

// CreatePerspective starts a perspective at the latest commit of from,
// which defaults to OFFICIAL.
func (r *VersionedRepo) CreatePerspective(ctx context.Context, name, from, owner, description string) (*core.PerspectiveObject, error) {
	if err := validName("perspective", name); err != nil {
		return nil, err
	}
	if from == "" {
		from = core.OfficialPerspective
	}

	var created *core.PerspectiveObject
	err := r.withLock(ctx, perspectiveLock(name), func() error {
		existing, err := r.keyed.GetPerspective(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", core.ErrPerspectiveExists, name)
		}
		source, err := r.loadPerspective(ctx, from)
		if err != nil {
			return err
		}

		created = &core.PerspectiveObject{
			BaseCommit:   source.LatestCommit,
			LatestCommit: source.LatestCommit,
			RootCommit:   source.RootCommit,
			Owner:        owner,
			Description:  description,
			RemoteLink:   from,
			Created:      r.now().UTC(),
		}
		if err := r.keyed.WritePerspective(ctx, name, created); err != nil {
			return err
		}
		if r.cache != nil {
			if err := r.cache.reset(ctx, name, created.LatestCommit); err != nil {
				r.logger.Warn("failed to reset cache", "perspective", name, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("created perspective", "perspective", name, "from", from, "commit", created.LatestCommit)
	return created, nil
}

// GetPerspective returns the named perspective or
// core.ErrPerspectiveNotFound.
func (r *VersionedRepo) GetPerspective(ctx context.Context, name string) (*core.PerspectiveObject, error) {
	return r.loadPerspective(ctx, name)
}

func (r *VersionedRepo) ListPerspectives(ctx context.Context) ([]string, error) {
	return r.keyed.GetPerspectives(ctx)
}

// DeletePerspective removes the pointer of a perspective other than
// OFFICIAL. Its objects stay in the object database.
func (r *VersionedRepo) DeletePerspective(ctx context.Context, name string) error {
	if name == core.OfficialPerspective {
		return fmt.Errorf("%w: cannot delete %s", core.ErrUnsupported, name)
	}
	return r.withLock(ctx, perspectiveLock(name), func() error {
		if _, err := r.loadPerspective(ctx, name); err != nil {
			return err
		}
		if err := r.keyed.DeletePerspective(ctx, name); err != nil {
			return err
		}
		if r.cache != nil {
			if err := r.cache.drop(ctx, name); err != nil {
				r.logger.Warn("failed to drop cache", "perspective", name, "error", err)
			}
		}
		return nil
	})
}
