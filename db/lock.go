package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nickyhof/VersionDB/core"
	"golang.org/x/sync/semaphore"
)

// ErrLockNotHeld is returned when a lock is released with a handle that
// does not own it.
var ErrLockNotHeld = errors.New("lock not held by handle")

// LockHandler hands out named write locks.
type LockHandler interface {
	// AcquireLock tries to take the lock, waiting up to timeout per
	// attempt and retrying retries more times. It fails with
	// core.ErrLockUnavailable when every attempt times out.
	AcquireLock(ctx context.Context, name string, timeout time.Duration, retries int) (string, error)

	// ReleaseLock releases a lock taken with AcquireLock.
	ReleaseLock(ctx context.Context, name, handle string) error
}

type namedLock struct {
	sem    *semaphore.Weighted
	handle string
}

// MemoryLockHandler is an in-process LockHandler.
type MemoryLockHandler struct {
	mu    sync.Mutex
	locks map[string]*namedLock
}

func NewMemoryLockHandler() *MemoryLockHandler {
	return &MemoryLockHandler{locks: make(map[string]*namedLock)}
}

func (h *MemoryLockHandler) lock(name string) *namedLock {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[name]
	if !ok {
		l = &namedLock{sem: semaphore.NewWeighted(1)}
		h.locks[name] = l
	}
	return l
}

func (h *MemoryLockHandler) AcquireLock(ctx context.Context, name string, timeout time.Duration, retries int) (string, error) {
	l := h.lock(name)
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if acquire(ctx, l.sem, timeout) {
			handle := uuid.NewString()
			h.mu.Lock()
			l.handle = handle
			h.mu.Unlock()
			return handle, nil
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrLockUnavailable, name)
}

func acquire(ctx context.Context, sem *semaphore.Weighted, timeout time.Duration) bool {
	if timeout <= 0 {
		return sem.TryAcquire(1)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sem.Acquire(ctx, 1) == nil
}

func (h *MemoryLockHandler) ReleaseLock(_ context.Context, name, handle string) error {
	h.mu.Lock()
	l, ok := h.locks[name]
	if !ok || handle == "" || l.handle != handle {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLockNotHeld, name)
	}
	l.handle = ""
	h.mu.Unlock()
	l.sem.Release(1)
	return nil
}
