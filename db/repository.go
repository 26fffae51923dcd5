package db

import (
	"context"
	"iter"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/nickyhof/VersionDB/core"
	"github.com/nickyhof/VersionDB/ps"
)

// Documents is the capability every repository has.
type Documents interface {
	AddDocument(ctx context.Context, key string, value []byte, user, comment string, mustBeNew bool) (CommitResult, error)
	AddDocuments(ctx context.Context, docs map[string][]byte, user, comment string, mustBeNew bool) (CommitResult, error)
	RemoveDocument(ctx context.Context, key, user, comment string) (CommitResult, error)
	RemoveDocuments(ctx context.Context, keys []string, user, comment string) (CommitResult, error)
	RemoveFolder(ctx context.Context, folder, user, comment string) (CommitResult, error)
	GetDocument(ctx context.Context, key string, directive Directive) ([]byte, bool, error)
	GetDocuments(ctx context.Context, keys []string, directive Directive) (map[string][]byte, error)
	DocumentExists(ctx context.Context, key string, directive Directive) (bool, error)
	GetExistence(ctx context.Context, keys []string, directive Directive) ([]bool, error)
	VisitAll(ctx context.Context, prefix string, directive Directive, visit Visitor) error
	VisitFolder(ctx context.Context, folder string, directive Directive, visit Visitor) error
	VisitFolders(ctx context.Context, folder string, directive Directive, visit FolderVisitor) error
	All(ctx context.Context, prefix string, directive Directive) iter.Seq2[string, []byte]
	Drop(ctx context.Context) error
}

// History reads and maintains commit history.
type History interface {
	GetCommitHistory(ctx context.Context, perspective string, limit int) ([]ps.Transaction, error)
	LatestTransaction(ctx context.Context, perspective string) (ps.Transaction, error)
	TransactionsSince(ctx context.Context, perspective string, asof time.Time) ([]ps.Transaction, error)
	ArchiveRepoVersions(ctx context.Context, versionLimit int, timeLimit time.Time, ensureVersionLimit bool, user string) (bool, error)
	ExportGit(ctx context.Context, repo *git.Repository) error
}

// Staging groups long lived named transactions.
type Staging interface {
	CreateStage(ctx context.Context, name, perspective string) (*ps.Stage, error)
	GetStage(name string) (*ps.Stage, error)
	AddToStage(ctx context.Context, name, key string, value []byte, mustBeNew bool) error
	RemoveFromStage(ctx context.Context, name, key string) (bool, error)
	CommitStage(ctx context.Context, name, user, comment string) (CommitResult, error)
	RemoveStage(ctx context.Context, name string) error
}

// Perspectives manages branch-like lines of history.
type Perspectives interface {
	CreatePerspective(ctx context.Context, name, from, owner, description string) (*core.PerspectiveObject, error)
	GetPerspective(ctx context.Context, name string) (*core.PerspectiveObject, error)
	ListPerspectives(ctx context.Context) ([]string, error)
	DeletePerspective(ctx context.Context, name string) error
	MergePerspective(ctx context.Context, target, source, user string) (CommitResult, error)
}

// Tags manages named commits.
type Tags interface {
	CreateTag(ctx context.Context, name, perspective, owner string) (*core.TagObject, error)
	RemoveTag(ctx context.Context, name string) error
	GetTags(ctx context.Context) ([]string, error)
	GetTag(ctx context.Context, name string) (*core.TagObject, error)
	VisitTag(ctx context.Context, name, prefix string, visit Visitor) error
	VisitTagFolder(ctx context.Context, name, folder string, visit Visitor) error
	GetTagDocument(ctx context.Context, name, key string) ([]byte, bool, error)
}

// Commentary attaches audit notes to stored objects.
type Commentary interface {
	AddCommentary(ctx context.Context, key, user, message string) (string, error)
	GetCommentary(ctx context.Context, key string) ([]*core.CommentaryObject, error)
}

// Queries runs backend specific queries.
type Queries interface {
	NativeQuery(ctx context.Context, query string) ([][]byte, error)
}

// Repository is the full repository contract. Variants that lack a
// capability return core.ErrUnsupported from its methods.
type Repository interface {
	Documents
	History
	Staging
	Perspectives
	Tags
	Commentary
	Queries
}

var (
	_ Repository = (*VersionedRepo)(nil)
	_ Repository = (*SimpleRepo)(nil)
)

// NativeQuery is not supported by the versioned repository.
func (r *VersionedRepo) NativeQuery(context.Context, string) ([][]byte, error) {
	return nil, core.ErrUnsupported
}

// Unversioned implements every capability except Documents by returning
// core.ErrUnsupported. Repository variants without history embed it.
type Unversioned struct{}

func (Unversioned) GetCommitHistory(context.Context, string, int) ([]ps.Transaction, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) LatestTransaction(context.Context, string) (ps.Transaction, error) {
	return ps.Transaction{}, core.ErrUnsupported
}

func (Unversioned) TransactionsSince(context.Context, string, time.Time) ([]ps.Transaction, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) ArchiveRepoVersions(context.Context, int, time.Time, bool, string) (bool, error) {
	return false, core.ErrUnsupported
}

func (Unversioned) ExportGit(context.Context, *git.Repository) error {
	return core.ErrUnsupported
}

func (Unversioned) CreateStage(context.Context, string, string) (*ps.Stage, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) GetStage(string) (*ps.Stage, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) AddToStage(context.Context, string, string, []byte, bool) error {
	return core.ErrUnsupported
}

func (Unversioned) RemoveFromStage(context.Context, string, string) (bool, error) {
	return false, core.ErrUnsupported
}

func (Unversioned) CommitStage(context.Context, string, string, string) (CommitResult, error) {
	return CommitResult{}, core.ErrUnsupported
}

func (Unversioned) RemoveStage(context.Context, string) error {
	return core.ErrUnsupported
}

func (Unversioned) CreatePerspective(context.Context, string, string, string, string) (*core.PerspectiveObject, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) GetPerspective(context.Context, string) (*core.PerspectiveObject, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) ListPerspectives(context.Context) ([]string, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) DeletePerspective(context.Context, string) error {
	return core.ErrUnsupported
}

func (Unversioned) MergePerspective(context.Context, string, string, string) (CommitResult, error) {
	return CommitResult{}, core.ErrUnsupported
}

func (Unversioned) CreateTag(context.Context, string, string, string) (*core.TagObject, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) RemoveTag(context.Context, string) error {
	return core.ErrUnsupported
}

func (Unversioned) GetTags(context.Context) ([]string, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) GetTag(context.Context, string) (*core.TagObject, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) VisitTag(context.Context, string, string, Visitor) error {
	return core.ErrUnsupported
}

func (Unversioned) VisitTagFolder(context.Context, string, string, Visitor) error {
	return core.ErrUnsupported
}

func (Unversioned) GetTagDocument(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, core.ErrUnsupported
}

func (Unversioned) AddCommentary(context.Context, string, string, string) (string, error) {
	return "", core.ErrUnsupported
}

func (Unversioned) GetCommentary(context.Context, string) ([]*core.CommentaryObject, error) {
	return nil, core.ErrUnsupported
}

func (Unversioned) NativeQuery(context.Context, string) ([][]byte, error) {
	return nil, core.ErrUnsupported
}
