package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRootNonExistent(t *testing.T) {
	if _, err := NewRoot(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("root creation succeeded for non-existent path")
	}
}

func TestNewRootFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("content"), 0600); err != nil {
		t.Fatal("unable to create file:", err)
	}
	if _, err := NewRoot(path); err == nil {
		t.Error("root creation succeeded for file")
	}
}

func TestResolve(t *testing.T) {
	// Create the root.
	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatal("unable to create root:", err)
	}
	base := root.Path()

	testCases := []struct {
		raw      string
		expected string
		err      error
	}{
		{"", "", ErrEmptyPath},
		{"   ", "", ErrEmptyPath},
		{".", base, nil},
		{"/", base, nil},
		{"//", base, nil},
		{"./", base, nil},
		{".//", base, nil},
		{"/.", base, nil},
		{"/./", base, nil},
		{"./.", "", ErrRelativePath},
		{"a", filepath.Join(base, "a"), nil},
		{"a/b/c.txt", filepath.Join(base, "a", "b", "c.txt"), nil},
		{"/a/b", filepath.Join(base, "a", "b"), nil},
		{"a//b/", filepath.Join(base, "a", "b"), nil},
		{"..", "", ErrRelativePath},
		{"../etc/passwd", "", ErrRelativePath},
		{"a/../../b", "", ErrRelativePath},
		{"a/..", "", ErrRelativePath},
		{"./a", "", ErrRelativePath},
		{"a/./b", "", ErrRelativePath},
		{"a/.", "", ErrRelativePath},
		{"a/b/c/d/e/..", "", ErrRelativePath},
		{"..hidden", filepath.Join(base, "..hidden"), nil},
		{".profile", filepath.Join(base, ".profile"), nil},
		{"a.../b", filepath.Join(base, "a...", "b"), nil},
	}

	// Process test cases.
	for i, testCase := range testCases {
		resolved, err := root.Resolve(testCase.raw)
		if err != testCase.err {
			t.Errorf("test index %d: error does not match expected: %v != %v",
				i, err, testCase.err,
			)
			continue
		}
		if resolved != testCase.expected {
			t.Errorf("test index %d: resolved path does not match expected: %s != %s",
				i, resolved, testCase.expected,
			)
		}
	}
}

func TestResolveStaysBeneathRoot(t *testing.T) {
	// Create the root.
	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatal("unable to create root:", err)
	}

	// Verify that every successfully resolved path is beneath the root.
	for _, raw := range []string{"a", "a/b", "x/y/z.bin", "/leading", "trailing/", "..x/y.."} {
		resolved, err := root.Resolve(raw)
		if err != nil {
			t.Errorf("unable to resolve %q: %v", raw, err)
			continue
		}
		if !strings.HasPrefix(resolved, root.Path()+string(filepath.Separator)) {
			t.Errorf("resolved path %q escapes root", resolved)
		}
	}
}

func TestIsRootAndRelative(t *testing.T) {
	// Create the root.
	root, err := NewRoot(t.TempDir())
	if err != nil {
		t.Fatal("unable to create root:", err)
	}

	// Check the root itself.
	if !root.IsRoot(root.Path()) {
		t.Error("root not identified as root")
	}
	if relative, err := root.Relative(root.Path()); err != nil {
		t.Error("unable to compute relative path of root:", err)
	} else if relative != "" {
		t.Error("relative path of root non-empty:", relative)
	}

	// Check a descendant.
	child, err := root.Resolve("a/b")
	if err != nil {
		t.Fatal("unable to resolve child:", err)
	}
	if root.IsRoot(child) {
		t.Error("child identified as root")
	}
	if relative, err := root.Relative(child); err != nil {
		t.Error("unable to compute relative path of child:", err)
	} else if relative != "a/b" {
		t.Error("relative path of child incorrect:", relative)
	}
}
