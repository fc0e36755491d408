package server

import (
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/filesystem/locking"
	"github.com/fss-project/fss/pkg/identifier"
)

const (
	// DataDirectoryName is the name of the fss data directory within the
	// user's home directory.
	DataDirectoryName = ".fss"
	// LocksDirectoryName is the name of the locks subdirectory within the fss
	// data directory.
	LocksDirectoryName = "locks"
)

// LocksDirectory computes the path of the default locks directory, creating it
// if necessary.
func LocksDirectory() (string, error) {
	// Compute the home directory.
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute home directory")
	}

	// Compute the locks directory path and ensure it exists.
	locksDirectory := filepath.Join(homeDirectory, DataDirectoryName, LocksDirectoryName)
	if err := os.MkdirAll(locksDirectory, 0700); err != nil {
		return "", errors.Wrap(err, "unable to create locks directory")
	}

	// Success.
	return locksDirectory, nil
}

// subpath computes a subpath of the locks directory, creating the locks
// directory in the process.
func subpath(name string) (string, error) {
	locksDirectory, err := LocksDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(locksDirectory, name), nil
}

// lockName computes the lock file name for a root. It's derived from the root
// path so that servers for different roots don't contend.
func lockName(root string) (string, error) {
	digest := sha256.Sum256([]byte(root))
	name, err := identifier.Derive(identifier.PrefixLock, digest[:])
	if err != nil {
		return "", errors.Wrap(err, "unable to derive lock name")
	}
	return name + locking.LockFileExtension, nil
}

// DefaultLockPath computes the default lock path for a root, creating any
// intermediate directories as necessary.
func DefaultLockPath(root string) (string, error) {
	name, err := lockName(root)
	if err != nil {
		return "", err
	}
	return subpath(name)
}
