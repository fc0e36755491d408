// Package housekeeping removes stale state left behind by fss servers.
package housekeeping

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mutagen-io/extstat"

	"github.com/fss-project/fss/pkg/filesystem"
	"github.com/fss-project/fss/pkg/filesystem/locking"
	"github.com/fss-project/fss/pkg/identifier"
	"github.com/fss-project/fss/pkg/logging"
)

const (
	// maximumLockIdlePeriod is the maximum period of time that a lock file is
	// allowed to sit on disk without being accessed before being deleted.
	maximumLockIdlePeriod = 30 * 24 * time.Hour
)

// Housekeep removes lock files in the specified directory that haven't been
// accessed within the maximum idle period and aren't currently held.
func Housekeep(directory string, logger *logging.Logger) {
	housekeepLocks(directory, time.Now(), logger)
}

// housekeepLocks performs lock file housekeeping relative to the specified
// time. Failures are logged and otherwise ignored.
func housekeepLocks(directory string, now time.Time, logger *logging.Logger) {
	// Get the list of lock files. If we fail, just abort.
	names, err := filesystem.DirectoryContentNames(directory)
	if err != nil {
		logger.Debugf("Unable to read locks directory: %v", err)
		return
	}

	// Loop through each lock file, compute the time it was last accessed, and
	// remove it if it's been idle longer than allowed.
	for _, name := range names {
		if !isLockFileName(name) {
			continue
		}
		path := filepath.Join(directory, name)
		if stat, err := extstat.NewFromFileName(path); err != nil {
			continue
		} else if now.Sub(stat.AccessTime) <= maximumLockIdlePeriod {
			continue
		}
		if removeIfUnheld(path) {
			logger.Debugf("Removed stale lock file %s", name)
		}
	}
}

// isLockFileName returns whether or not a name is that of a server lock file.
func isLockFileName(name string) bool {
	base := strings.TrimSuffix(name, locking.LockFileExtension)
	return base != name &&
		strings.HasPrefix(base, identifier.PrefixLock+"_") &&
		identifier.IsValid(base)
}

// removeIfUnheld removes a lock file if no other owner holds it. It returns
// whether or not the file was removed. Servers verify after locking that the
// path still names the file they locked, so a server that opened the file just
// before its removal will retry against a fresh file rather than holding a
// lock on the orphaned one.
func removeIfUnheld(path string) bool {
	// Attempt to acquire the lock.
	locker, err := locking.NewLocker(path, 0600)
	if err != nil {
		return false
	} else if err := locker.Lock(false); err != nil {
		locker.Close()
		return false
	}

	// If the path was replaced between our open and lock, then the file we've
	// locked isn't the one we'd be removing.
	if current, err := locker.Current(path); err != nil || !current {
		locker.Close()
		return false
	}

	// Remove the file while holding the lock. Platforms that don't allow the
	// removal of open files require closure first.
	removeErr := os.Remove(path)
	locker.Unlock()
	locker.Close()
	if removeErr != nil {
		removeErr = os.Remove(path)
	}
	return removeErr == nil
}
