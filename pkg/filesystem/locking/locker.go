// Package locking provides advisory, exclusive, whole-file locks that are
// automatically released when the owning process exits.
package locking

import (
	"os"

	"github.com/pkg/errors"
)

// LockFileExtension is the extension used for lock files.
const LockFileExtension = ".lock"

// ErrLockHeld is returned by non-blocking lock attempts when another owner
// holds the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// Locker provides file locking facilities.
type Locker struct {
	// file is the underlying file object that's locked.
	file *os.File
	// held indicates whether or not the lock is currently held.
	held bool
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE
	if file, err := os.OpenFile(path, mode, permissions); err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	} else {
		return &Locker{file: file}, nil
	}
}

// Held returns whether or not the lock is currently held.
func (l *Locker) Held() bool {
	return l.held
}

// Lock attempts to acquire the file lock. If block is false and the lock is
// held elsewhere, ErrLockHeld is returned.
func (l *Locker) Lock(block bool) error {
	if l.held {
		return errors.New("lock already held")
	}
	if err := l.lock(block); err != nil {
		return err
	}
	l.held = true
	return nil
}

// Unlock releases the file lock.
func (l *Locker) Unlock() error {
	if !l.held {
		return errors.New("lock not held")
	}
	if err := l.unlock(); err != nil {
		return err
	}
	l.held = false
	return nil
}

// Current returns whether or not the specified path still refers to the file
// underlying the locker. A lock acquired on a file that has since been unlinked
// or replaced doesn't exclude owners that open the path afresh.
func (l *Locker) Current(path string) (bool, error) {
	locked, err := l.file.Stat()
	if err != nil {
		return false, errors.Wrap(err, "unable to query lock file")
	}
	named, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "unable to query lock path")
	}
	return os.SameFile(locked, named), nil
}

// Record replaces the contents of the lock file with the specified content. It
// errors if the lock is not currently held.
func (l *Locker) Record(content string) error {
	// Verify that the lock is held.
	if !l.held {
		return errors.New("lock not held")
	}

	// Replace the file contents.
	if err := l.file.Truncate(0); err != nil {
		return errors.Wrap(err, "unable to truncate lock file")
	} else if _, err = l.file.WriteAt([]byte(content), 0); err != nil {
		return errors.Wrap(err, "unable to write lock file")
	}
	return nil
}

// Close closes the file underlying the locker. This will release any lock held
// on the file and disable future locking.
func (l *Locker) Close() error {
	l.held = false
	return l.file.Close()
}
