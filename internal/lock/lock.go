// Package lock provides the file-marker mutual exclusion guarding a
// robot's runs. The marker is durable: a killed process leaves it behind
// until an operator removes it.
package lock

import (
	"errors"
	"fmt"
	"os"
)

// ErrHeld indicates the lock marker already exists.
var ErrHeld = errors.New("lock held")

// Lock is a marker file used for cooperative mutual exclusion between
// process runs of the same robot identity.
type Lock struct {
	path string
}

// New uses the given path as lock marker.
func New(path string) *Lock { return &Lock{path: path} }

// Path returns the marker path.
func (l *Lock) Path() string { return l.path }

// IsAcquired indicates whether the marker is present.
func (l *Lock) IsAcquired() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Acquire creates the marker, failing with ErrHeld when it already
// exists. Create-if-absent is atomic at the filesystem level.
func (l *Lock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("locked by %q: %w", l.path, ErrHeld)
		}
		return err
	}
	return f.Close()
}

// Release removes the marker if present; missing markers are a no-op.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
