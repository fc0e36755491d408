package server

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/filesystem/locking"
)

// maximumLockAttempts is the maximum number of times that lock acquisition
// will be attempted if the lock file is replaced during acquisition.
const maximumLockAttempts = 3

// Lock represents the lock on a served root. It is held by a single server
// instance at a time.
type Lock struct {
	// locker is the underlying file locker.
	locker *locking.Locker
}

// AcquireLock attempts to acquire the lock at the specified path on behalf of
// a server for the specified root. The process identifier and root are
// recorded in the lock file for diagnostic purposes.
func AcquireLock(path, root string) (*Lock, error) {
	// Create the locker and attempt to acquire the lock. Housekeeping may
	// remove a stale lock file between our open and lock, in which case the
	// lock we hold is on an orphaned file and we have to start over.
	for attempt := 0; ; attempt++ {
		locker, err := locking.NewLocker(path, 0600)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create root file locker")
		} else if err = locker.Lock(false); err != nil {
			locker.Close()
			if err == locking.ErrLockHeld {
				return nil, errors.Errorf("another server is already serving %s", root)
			}
			return nil, err
		}

		// Verify that the lock file wasn't unlinked out from under us.
		if current, err := locker.Current(path); err != nil {
			locker.Close()
			return nil, err
		} else if !current {
			locker.Close()
			if attempt+1 == maximumLockAttempts {
				return nil, errors.New("lock file repeatedly replaced during acquisition")
			}
			continue
		}

		// Record the owner.
		if err := locker.Record(fmt.Sprintf("%d\n%s\n", os.Getpid(), root)); err != nil {
			locker.Unlock()
			locker.Close()
			return nil, err
		}

		// Create the lock.
		return &Lock{
			locker: locker,
		}, nil
	}
}

// Release releases the lock.
func (l *Lock) Release() error {
	// Release the lock if it's still held.
	if l.locker.Held() {
		if err := l.locker.Unlock(); err != nil {
			l.locker.Close()
			return err
		}
	}

	// Close the locker.
	return errors.Wrap(l.locker.Close(), "unable to close locker")
}
