package lock

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "lock"))
}

func TestAcquireRelease(t *testing.T) {
	l := newTestLock(t)
	if l.IsAcquired() {
		t.Fatal("fresh lock must not be acquired")
	}
	if err := l.Acquire(); err != nil {
		t.Fatal(err)
	}
	if !l.IsAcquired() {
		t.Fatal("lock must be acquired after Acquire")
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if l.IsAcquired() {
		t.Fatal("lock must be free after Release")
	}
}

func TestAcquireFailsWhenHeld(t *testing.T) {
	l := newTestLock(t)
	if err := l.Acquire(); err != nil {
		t.Fatal(err)
	}
	err := l.Acquire()
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if !l.IsAcquired() {
		t.Fatal("failed second acquire must leave the marker in place")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := newTestLock(t)
	if err := l.Release(); err != nil {
		t.Fatalf("release without marker: %v", err)
	}
	if err := l.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}
