package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStage is the stage single document writes go through.
const DefaultStage = "DEFAULT"

var tracer = otel.Tracer("versiondb.db")

// Config configures a VersionedRepo.
type Config struct {
	// Capacity is the number of documents per bag.
	Capacity int

	// LockHandler hands out the write locks. A MemoryLockHandler is
	// used when nil.
	LockHandler LockHandler
	LockTimeout time.Duration
	LockRetries int

	// Cache enables the fast path for latest reads.
	Cache bool

	// HistoryLimit caps GetCommitHistory when no limit is passed. Zero
	// means unlimited.
	HistoryLimit int

	Logger     *slog.Logger
	Registerer prometheus.Registerer

	// Now is the clock used for commit, tag and perspective times.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Capacity:    ps.DefaultCapacity,
		LockTimeout: 5 * time.Second,
		LockRetries: 3,
		Cache:       true,
	}
}

// VersionedRepo is a document repository that keeps the full history of
// every perspective.
type VersionedRepo struct {
	persistence *ps.Persistence
	objects     *ps.ObjectDatabase
	keyed       *ps.KeyedDatabase
	cache       *documentCache
	locks       LockHandler
	config      Config
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time

	mu     sync.Mutex
	stages map[string]*ps.Stage
}

// New opens the repository stored in persistence, bootstrapping the
// OFFICIAL perspective with an empty root commit when the store is new.
func New(ctx context.Context, persistence *ps.Persistence, cfg Config) (*VersionedRepo, error) {
	if !persistence.IsInitialized() {
		return nil, ps.ErrNotInitialized
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = ps.DefaultCapacity
	}
	if cfg.LockHandler == nil {
		cfg.LockHandler = NewMemoryLockHandler()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	repo := &VersionedRepo{
		persistence: persistence,
		objects:     persistence.Objects(),
		keyed:       persistence.Keyed(),
		locks:       cfg.LockHandler,
		config:      cfg,
		logger:      cfg.Logger.With("component", "versioned_repo"),
		metrics:     NewMetrics(cfg.Registerer),
		now:         cfg.Now,
		stages:      make(map[string]*ps.Stage),
	}
	if cfg.Cache {
		repo.cache = &documentCache{store: persistence.Cache()}
	}

	if err := repo.bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("failed to bootstrap repository: %w", err)
	}
	return repo, nil
}

func (r *VersionedRepo) bootstrap(ctx context.Context) error {
	return r.withLock(ctx, perspectiveLock(core.OfficialPerspective), func() error {
		perspective, err := r.keyed.GetPerspective(ctx, core.OfficialPerspective)
		if err != nil || perspective != nil {
			return err
		}

		treeRef, err := r.objects.WriteTree(ctx, &core.TreeObject{})
		if err != nil {
			return err
		}
		now := r.now().UTC()
		rootRef, err := r.objects.WriteCommit(ctx, &core.CommitObject{
			TreeRef:        treeRef,
			User:           "system",
			When:           now,
			Comment:        "initial commit",
			TreeReferences: []string{treeRef},
		})
		if err != nil {
			return err
		}

		r.logger.Info("bootstrapped repository", "perspective", core.OfficialPerspective, "commit", rootRef)
		err = r.keyed.WritePerspective(ctx, core.OfficialPerspective, &core.PerspectiveObject{
			BaseCommit:   rootRef,
			LatestCommit: rootRef,
			RootCommit:   rootRef,
			Owner:        "system",
			Description:  "trunk",
			Created:      now,
		})
		if err != nil {
			return err
		}
		if r.cache != nil {
			return r.cache.reset(ctx, core.OfficialPerspective, rootRef)
		}
		return nil
	})
}

// Objects gives low level access to the object database.
func (r *VersionedRepo) Objects() *ps.ObjectDatabase {
	return r.objects
}

// Keyed gives low level access to the pointer database.
func (r *VersionedRepo) Keyed() *ps.KeyedDatabase {
	return r.keyed
}

// Persistence returns the stores the repository lives in.
func (r *VersionedRepo) Persistence() *ps.Persistence {
	return r.persistence
}

// Metrics returns the repository's collectors.
func (r *VersionedRepo) Metrics() *Metrics {
	return r.metrics
}

// Drop deletes everything the repository stored.
func (r *VersionedRepo) Drop(ctx context.Context) error {
	r.mu.Lock()
	r.stages = make(map[string]*ps.Stage)
	r.mu.Unlock()
	return r.persistence.Drop(ctx)
}

func perspectiveLock(name string) string {
	return "perspective/" + name
}

func stageLock(name string) string {
	return "stage/" + name
}

// validName rejects names that cannot be used as pointer or lock keys.
func validName(kind, name string) error {
	if name == "" || strings.ContainsAny(name, "/\\:") {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}

// withLock runs fn while holding the named lock.
func (r *VersionedRepo) withLock(ctx context.Context, name string, fn func() error) error {
	handle, err := r.locks.AcquireLock(ctx, name, r.config.LockTimeout, r.config.LockRetries)
	if err != nil {
		if errors.Is(err, core.ErrLockUnavailable) {
			r.metrics.LockFailures.Inc()
		}
		return err
	}
	defer func() {
		if err := r.locks.ReleaseLock(ctx, name, handle); err != nil {
			r.logger.Error("failed to release lock", "lock", name, "error", err)
		}
	}()
	return fn()
}

func (r *VersionedRepo) loadPerspective(ctx context.Context, name string) (*core.PerspectiveObject, error) {
	perspective, err := r.keyed.GetPerspective(ctx, name)
	if err != nil {
		return nil, err
	}
	if perspective == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrPerspectiveNotFound, name)
	}
	return perspective, nil
}

func (r *VersionedRepo) loadCommit(ctx context.Context, ref string) (*core.CommitObject, error) {
	commit, err := r.objects.GetCommit(ctx, ref)
	if err != nil {
		return nil, err
	}
	if commit == nil {
		return nil, &core.CorruptObjectError{Ref: ref, Kind: "commit", Err: core.ErrNotFound}
	}
	return commit, nil
}

func (r *VersionedRepo) openStage(ctx context.Context, name, perspectiveName string) (*ps.Stage, error) {
	perspective, err := r.loadPerspective(ctx, perspectiveName)
	if err != nil {
		return nil, err
	}
	return ps.OpenStage(ctx, r.objects, name, perspectiveName, perspective, r.config.Capacity)
}

// transact runs fn on a fresh stage of perspective and commits it, all
// under the lock of the default stage of that perspective.
func (r *VersionedRepo) transact(ctx context.Context, perspective, user, comment string, fn func(stage *ps.Stage) error) (CommitResult, error) {
	var result CommitResult
	lock := stageLock(perspective + ":" + DefaultStage)
	err := r.withLock(ctx, lock, func() error {
		stage, err := r.openStage(ctx, DefaultStage, perspective)
		if err != nil {
			return err
		}
		if err := fn(stage); err != nil {
			return err
		}
		result, err = r.publish(ctx, stage, user, comment)
		return err
	})
	return result, err
}

// publish commits stage under the lock of its perspective.
func (r *VersionedRepo) publish(ctx context.Context, stage *ps.Stage, user, comment string) (CommitResult, error) {
	var result CommitResult
	err := r.withLock(ctx, perspectiveLock(stage.PerspectiveName), func() error {
		var err error
		result, err = r.publishLocked(ctx, stage, user, comment, "")
		return err
	})
	return result, err
}

// publishLocked is the commit point. The caller holds the perspective
// lock. The stage is rebased first if the perspective moved since the
// stage was opened; objects are written before the perspective pointer
// and are left behind if that last write fails.
func (r *VersionedRepo) publishLocked(ctx context.Context, stage *ps.Stage, user, comment, mergedFrom string) (CommitResult, error) {
	ctx, span := tracer.Start(ctx, "VersionedRepo.Commit", trace.WithAttributes(
		attribute.String("perspective", stage.PerspectiveName),
		attribute.String("stage", stage.Name),
	))
	defer span.End()

	start := time.Now()
	result, err := r.commit(ctx, stage, user, comment, mergedFrom)
	result.ExecutionTimeSec = time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	if result.Committed {
		r.metrics.CommitDuration.Observe(result.ExecutionTimeSec)
		span.SetAttributes(attribute.String("commit", result.Transaction.Id), attribute.Int64("version", result.Transaction.Version))
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (r *VersionedRepo) commit(ctx context.Context, stage *ps.Stage, user, comment, mergedFrom string) (CommitResult, error) {
	perspective, err := r.loadPerspective(ctx, stage.PerspectiveName)
	if err != nil {
		return CommitResult{}, err
	}
	if perspective.LatestCommit != stage.BaseCommit() {
		r.logger.Debug("rebasing stage", "stage", stage.Name, "perspective", stage.PerspectiveName,
			"from", stage.BaseCommit(), "to", perspective.LatestCommit)
		if err := stage.Rebase(ctx, perspective); err != nil {
			return CommitResult{}, fmt.Errorf("failed to rebase stage %s: %w", stage.Name, err)
		}
	}

	previous, err := r.loadCommit(ctx, perspective.LatestCommit)
	if err != nil {
		return CommitResult{}, err
	}

	changes := stage.Changes()
	if len(changes) == 0 && mergedFrom == "" {
		if err := stage.Clear(ctx, perspective); err != nil {
			return CommitResult{}, err
		}
		return CommitResult{Transaction: ps.TransactionOf(perspective.LatestCommit, previous)}, nil
	}

	treeRef, collector, err := stage.Tree.Commit(ctx)
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to flush stage %s: %w", stage.Name, err)
	}

	commit := &core.CommitObject{
		PreviousReference: perspective.LatestCommit,
		TreeRef:           treeRef,
		Version:           previous.Version + 1,
		User:              user,
		When:              r.now().UTC(),
		Comment:           comment,
		Changes:           changes,
		TreeReferences:    collector.Trees,
		BagReferences:     collector.Bags,
		DocReferences:     collector.Documents,
		MergedFrom:        mergedFrom,
	}
	commitRef, err := r.objects.WriteCommit(ctx, commit)
	if err != nil {
		return CommitResult{}, err
	}

	perspective.LatestCommit = commitRef
	if err := r.keyed.WritePerspective(ctx, stage.PerspectiveName, perspective); err != nil {
		return CommitResult{}, fmt.Errorf("failed to publish commit %s: %w", commitRef, err)
	}

	result := CommitResult{Transaction: ps.TransactionOf(commitRef, commit), Committed: true}
	for _, change := range changes {
		if change.Kind == core.ChangeRemoved {
			result.DocumentsRemoved++
		} else {
			result.DocumentsWritten++
		}
	}
	r.metrics.Commits.WithLabelValues(stage.PerspectiveName).Inc()
	r.metrics.DocumentsWritten.Add(float64(result.DocumentsWritten))
	r.metrics.DocumentsRemoved.Add(float64(result.DocumentsRemoved))

	r.logger.Debug("committed", "perspective", stage.PerspectiveName, "commit", commitRef,
		"version", commit.Version, "changes", len(changes))

	r.updateCache(ctx, stage.PerspectiveName, commit.PreviousReference, commitRef, treeRef, changes)
	if err := stage.Clear(ctx, perspective); err != nil {
		return result, err
	}
	return result, nil
}

// updateCache brings the fast path in line with a published commit. A
// failed update is logged and the entry dropped. When the cache did not
// agree with previous, it is reset to the new commit instead.
func (r *VersionedRepo) updateCache(ctx context.Context, perspective, previous, commitRef, treeRef string, changes []core.DocumentChange) {
	if r.cache == nil {
		return
	}
	if head := r.cache.head(ctx, perspective); head != previous {
		if err := r.cache.reset(ctx, perspective, commitRef); err != nil {
			r.logger.Warn("failed to reset cache", "perspective", perspective, "error", err)
		}
		return
	}
	for _, change := range changes {
		var err error
		if change.Kind == core.ChangeRemoved {
			err = r.cache.remove(ctx, perspective, change.Path)
		} else {
			var doc *core.DocumentObject
			_, doc, err = r.objects.FindDocument(ctx, treeRef, core.SplitPath(change.Path))
			if err == nil && doc != nil {
				err = r.cache.put(ctx, perspective, change.Path, doc.Content)
			}
		}
		if err != nil {
			r.logger.Warn("failed to update cache", "perspective", perspective, "path", change.Path, "error", err)
			r.cache.remove(ctx, perspective, change.Path)
		}
	}
	if err := r.cache.setHead(ctx, perspective, commitRef); err != nil {
		r.logger.Warn("failed to advance cache head", "perspective", perspective, "error", err)
		r.cache.drop(ctx, perspective)
	}
}
