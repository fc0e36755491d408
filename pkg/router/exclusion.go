package router

import (
	pathpkg "path"
	"strings"

	"github.com/pkg/errors"

	"github.com/bmatcuk/doublestar/v4"
)

// exclusion is a listing exclusion pattern.
type exclusion struct {
	// matchLeaf indicates whether or not the pattern should be matched against
	// an entry's name in addition to its root-relative path.
	matchLeaf bool
	// pattern is the pattern to use in matching.
	pattern string
}

// newExclusion parses and validates an exclusion pattern. Patterns with a
// leading slash are anchored at the root. Patterns without any slash match
// entry names at any depth.
func newExclusion(pattern string) (*exclusion, error) {
	// Ensure that the pattern is not empty.
	if strings.TrimSpace(pattern) == "" {
		return nil, errors.New("empty pattern")
	}

	// Clean the pattern and reject those targeting the root.
	pattern = pathpkg.Clean(pattern)
	if pattern == "/" || pattern == "." {
		return nil, errors.New("root pattern")
	}

	// Check if this is an absolute pattern. If so, remove the forward slash
	// prefix, since it won't enter into pattern matching.
	var absolute bool
	if pattern[0] == '/' {
		absolute = true
		pattern = pattern[1:]
	}

	// Ensure validity.
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid pattern: %s", pattern)
	}

	// Success.
	return &exclusion{
		matchLeaf: !absolute && strings.IndexByte(pattern, '/') < 0,
		pattern:   pattern,
	}, nil
}

// matches determines whether or not the exclusion matches a root-relative,
// slash-separated path.
func (e *exclusion) matches(path string) bool {
	// Check for a direct match. The pattern was validated at construction, so
	// matching can't fail.
	if match, _ := doublestar.Match(e.pattern, path); match {
		return true
	}

	// Attempt to match on the last component of the path if appropriate.
	if e.matchLeaf && path != "" {
		if match, _ := doublestar.Match(e.pattern, pathpkg.Base(path)); match {
			return true
		}
	}

	// No match.
	return false
}
