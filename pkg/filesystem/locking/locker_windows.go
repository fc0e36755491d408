package locking

import (
	"github.com/pkg/errors"

	"golang.org/x/sys/windows"
)

// lock performs the platform lock acquisition by locking the first byte of the
// file.
func (l *Locker) lock(block bool) error {
	var overlapped windows.Overlapped
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK)
	if !block {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	err := windows.LockFileEx(windows.Handle(l.file.Fd()), flags, 0, 1, 0, &overlapped)
	if err == windows.ERROR_LOCK_VIOLATION {
		return ErrLockHeld
	} else if err != nil {
		return errors.Wrap(err, "unable to acquire lock")
	}
	return nil
}

// unlock performs the platform lock release.
func (l *Locker) unlock() error {
	var overlapped windows.Overlapped
	if err := windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &overlapped); err != nil {
		return errors.Wrap(err, "unable to release lock")
	}
	return nil
}
