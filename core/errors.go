package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLockUnavailable is returned when a write lock cannot be acquired.
	// It is not retried internally.
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrUnsupported marks a capability the repository does not implement.
	ErrUnsupported = errors.New("operation not supported by this repository")

	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("document already exists")
	ErrInvalidPath         = errors.New("invalid document path")
	ErrArchivePrecondition = errors.New("archive precondition failed")
	ErrPerspectiveNotFound = errors.New("perspective not found")
	ErrPerspectiveExists   = errors.New("perspective already exists")
	ErrTagNotFound         = errors.New("tag not found")
	ErrTagExists           = errors.New("tag already exists")
	ErrStageNotFound       = errors.New("stage not found")
	ErrCorruptObject       = errors.New("corrupt object")
)

// CorruptObjectError reports a stored object that could not be decoded
// or that resolved to the wrong kind.
type CorruptObjectError struct {
	Ref  string
	Kind string
	Err  error
}

func (e *CorruptObjectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt %s object %s: %v", e.Kind, e.Ref, e.Err)
	}
	return fmt.Sprintf("corrupt %s object %s", e.Kind, e.Ref)
}

func (e *CorruptObjectError) Unwrap() error {
	return e.Err
}

func (e *CorruptObjectError) Is(target error) bool {
	return target == ErrCorruptObject
}
