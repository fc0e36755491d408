//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package locking

import (
	"github.com/pkg/errors"

	"golang.org/x/sys/unix"
)

// lock performs the platform lock acquisition. It uses flock semantics, under
// which separate opens of the same file contend even within one process.
func (l *Locker) lock(block bool) error {
	operation := unix.LOCK_EX
	if !block {
		operation |= unix.LOCK_NB
	}
	for {
		err := unix.Flock(int(l.file.Fd()), operation)
		if err == unix.EINTR {
			continue
		} else if err == unix.EWOULDBLOCK {
			return ErrLockHeld
		} else if err != nil {
			return errors.Wrap(err, "unable to acquire lock")
		}
		return nil
	}
}

// unlock performs the platform lock release.
func (l *Locker) unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return errors.Wrap(err, "unable to release lock")
	}
	return nil
}
