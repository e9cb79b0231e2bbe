// Package lock provides the exclusive per-project indexing lock: only one
// indexing operation may run against a project's state directory at a time.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/codelens/indexcore/internal/errs"
)

// IndexLock is a cross-process exclusive lock backed by a sentinel file in
// a project's state directory.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock backed by <stateDir>/index.lock. The lock file is not
// created on disk until TryLock is called.
func New(stateDir string) *IndexLock {
	path := filepath.Join(stateDir, "index.lock")
	return &IndexLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking. Returns
// errs.ErrConcurrentIndexing, not a generic error, when another process
// already holds it, so orchestrator callers can distinguish "busy" from
// "broken" with errors.Is.
func (l *IndexLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return errs.ErrConcurrentIndexing
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call multiple times or when not held.
func (l *IndexLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("release lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's path, for diagnostics.
func (l *IndexLock) Path() string { return l.path }

// IsLocked reports whether this instance currently holds the lock.
func (l *IndexLock) IsLocked() bool { return l.locked }
