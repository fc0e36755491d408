package filesystem

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyPath is returned by Root.Resolve for empty or blank paths.
	ErrEmptyPath = errors.New("empty path")
	// ErrRelativePath is returned by Root.Resolve for paths containing a "."
	// or ".." segment.
	ErrRelativePath = errors.New("relative file paths are not supported")
)

// Root is a directory that serves as the sandbox for client-supplied paths.
// Resolution is purely lexical. Symbolic links beneath the root are followed by
// subsequent filesystem operations and can therefore point outside of it.
type Root struct {
	// path is the normalized absolute path of the root.
	path string
}

// NewRoot normalizes the specified path and verifies that it refers to an
// existing directory.
func NewRoot(path string) (*Root, error) {
	// Normalize the path.
	normalized, err := Normalize(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to normalize root path")
	}

	// Verify that it's a directory.
	if metadata, err := os.Stat(normalized); err != nil {
		return nil, errors.Wrap(err, "unable to query root")
	} else if !metadata.IsDir() {
		return nil, errors.Errorf("root is not a directory: %s", normalized)
	}

	// Success.
	return &Root{path: normalized}, nil
}

// Path returns the absolute path of the root.
func (r *Root) Path() string {
	return r.path
}

// isSeparator identifies the characters on which client paths are split. The
// forward slash is always accepted, regardless of platform.
func isSeparator(c rune) bool {
	return c == '/' || c == filepath.Separator
}

// Resolve maps a client-supplied path to an absolute path beneath the root.
// Empty segments are ignored and any "." or ".." segment causes rejection with
// ErrRelativePath. A path consisting solely of a "." segment, optionally
// surrounded by separators (e.g. "./" or "/."), names the root itself.
func (r *Root) Resolve(raw string) (string, error) {
	// Reject blank paths.
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyPath
	}

	// Handle the root designation.
	if strings.TrimFunc(raw, isSeparator) == "." {
		return r.path, nil
	}

	// Split the path into segments and verify each of them.
	segments := strings.FieldsFunc(raw, isSeparator)
	for _, segment := range segments {
		if segment == "." || segment == ".." {
			return "", ErrRelativePath
		}
	}

	// Join the segments beneath the root.
	return filepath.Join(append([]string{r.path}, segments...)...), nil
}

// IsRoot indicates whether or not a resolved path refers to the root itself.
func (r *Root) IsRoot(path string) bool {
	return filepath.Clean(path) == r.path
}

// Relative computes the slash-separated path of a resolved path relative to
// the root. The root itself is represented by an empty string.
func (r *Root) Relative(path string) (string, error) {
	relative, err := filepath.Rel(r.path, path)
	if err != nil {
		return "", errors.Wrap(err, "unable to compute relative path")
	} else if relative == "." {
		return "", nil
	}
	return filepath.ToSlash(relative), nil
}
