package ps

import (
	"context"
	"fmt"
	"time"

	"github.com/nickyhof/VersionDB/core"
)

type Transaction struct {
	Id      string
	Version int64
	When    time.Time
	Author  string
	Comment string
	Changes []core.DocumentChange
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, Version: %d, When: %s, Author: %s}", transaction.Id, transaction.Version, transaction.When, transaction.Author)
}

// TransactionOf describes the commit stored at ref.
func TransactionOf(ref string, commit *core.CommitObject) Transaction {
	return Transaction{
		Id:      ref,
		Version: commit.Version,
		When:    commit.When,
		Author:  commit.User,
		Comment: commit.Comment,
		Changes: commit.Changes,
	}
}

// WalkCommits follows the commit chain from start backwards and calls fn
// for every commit until fn returns false or the root is passed.
//
// Archival leaves gaps in the chain. When a previous commit is missing
// the walk continues at root, unless root was already visited.
func (o *ObjectDatabase) WalkCommits(ctx context.Context, start, root string, fn func(ref string, commit *core.CommitObject) bool) error {
	ref := start
	seenRoot := false
	for ref != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		commit, err := o.GetCommit(ctx, ref)
		if err != nil {
			return err
		}
		if commit == nil {
			if ref == start || seenRoot || root == "" || ref == root {
				return nil
			}
			ref = root
			continue
		}
		if ref == root {
			seenRoot = true
		}
		if !fn(ref, commit) {
			return nil
		}
		if seenRoot || commit.IsRoot() {
			return nil
		}
		ref = commit.PreviousReference
	}
	return nil
}

func (p *Persistence) perspective(ctx context.Context, name string) (*core.PerspectiveObject, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	perspective, err := p.keyed.GetPerspective(ctx, name)
	if err != nil {
		return nil, err
	}
	if perspective == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrPerspectiveNotFound, name)
	}
	return perspective, nil
}

// LatestTransaction describes the newest commit of a perspective.
func (p *Persistence) LatestTransaction(ctx context.Context, perspectiveName string) (Transaction, error) {
	perspective, err := p.perspective(ctx, perspectiveName)
	if err != nil {
		return Transaction{}, err
	}
	commit, err := p.objects.GetCommit(ctx, perspective.LatestCommit)
	if err != nil {
		return Transaction{}, err
	}
	if commit == nil {
		return Transaction{}, &core.CorruptObjectError{Ref: perspective.LatestCommit, Kind: kindCommit.String(), Err: errMissingObject}
	}
	return TransactionOf(perspective.LatestCommit, commit), nil
}

// TransactionsSince lists the commits made at or after asof, newest
// first.
func (p *Persistence) TransactionsSince(ctx context.Context, perspectiveName string, asof time.Time) ([]Transaction, error) {
	perspective, err := p.perspective(ctx, perspectiveName)
	if err != nil {
		return nil, err
	}
	var transactions []Transaction
	err = p.objects.WalkCommits(ctx, perspective.LatestCommit, perspective.RootCommit, func(ref string, commit *core.CommitObject) bool {
		if commit.When.Before(asof) {
			return false
		}
		transactions = append(transactions, TransactionOf(ref, commit))
		return true
	})
	return transactions, err
}

// TransactionsFrom lists the commits from ref back to the root of the
// perspective, newest first.
func (p *Persistence) TransactionsFrom(ctx context.Context, perspectiveName, ref string) ([]Transaction, error) {
	perspective, err := p.perspective(ctx, perspectiveName)
	if err != nil {
		return nil, err
	}
	var transactions []Transaction
	err = p.objects.WalkCommits(ctx, ref, perspective.RootCommit, func(ref string, commit *core.CommitObject) bool {
		transactions = append(transactions, TransactionOf(ref, commit))
		return true
	})
	return transactions, err
}
