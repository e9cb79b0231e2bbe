package lock

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/codelens/indexcore/internal/errs"
)

func TestIndexLock_TryLock_AcquiresWhenFree(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !l.IsLocked() {
		t.Error("expected IsLocked to be true after acquiring")
	}
	if l.Path() != filepath.Join(dir, "index.lock") {
		t.Errorf("unexpected lock path: %s", l.Path())
	}
}

func TestIndexLock_TryLock_FailsWhenHeldByAnother(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer first.Unlock()

	second := New(dir)
	err := second.TryLock()
	if !errors.Is(err, errs.ErrConcurrentIndexing) {
		t.Fatalf("expected ErrConcurrentIndexing, got %v", err)
	}
}

func TestIndexLock_UnlockThenReacquire(t *testing.T) {
	dir := t.TempDir()
	first := New(dir)
	if err := first.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if first.IsLocked() {
		t.Error("expected IsLocked false after Unlock")
	}

	second := New(dir)
	if err := second.TryLock(); err != nil {
		t.Fatalf("expected reacquire to succeed after unlock, got %v", err)
	}
}

func TestIndexLock_UnlockIsIdempotent(t *testing.T) {
	l := New(t.TempDir())
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock on a never-locked instance should be a no-op, got %v", err)
	}
}
