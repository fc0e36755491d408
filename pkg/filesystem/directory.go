package filesystem

import (
	"os"
	"sort"

	"github.com/pkg/errors"
)

// DirectoryContentNames returns the names of the entries in the directory at
// the specified path, normalized for the platform and sorted in ascending byte
// order.
func DirectoryContentNames(path string) ([]string, error) {
	// Open the directory and ensure its closure.
	directory, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open directory")
	}
	defer directory.Close()

	// Grab the directory content names.
	names, err := directory.Readdirnames(0)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read directory contents")
	}

	// Normalize and sort the names.
	for i, name := range names {
		names[i] = normalizeName(name)
	}
	sort.Strings(names)

	// Success.
	return names, nil
}
