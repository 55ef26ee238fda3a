package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotDir is returned by NormalizeDir when the path is not a directory.
var ErrNotDir = errors.New("not a directory")

// Normalize turns a user-supplied directory into the absolute, cleaned,
// symlink-free path that events are reported under.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(ExpandTilde(path))
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return filepath.Clean(resolved), nil
}

// NormalizeDir is Normalize plus a check that the result is a directory.
func NormalizeDir(path string) (string, error) {
	resolved, err := Normalize(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", &os.PathError{Op: "watch", Path: resolved, Err: ErrNotDir}
	}
	return resolved, nil
}

// IsWithin reports whether path equals root or lies below it.
func IsWithin(root, path string) bool {
	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return true
	}
	return isSep(path[len(root)])
}

// Rel returns the slash-separated path of target relative to root, or false
// if target is not inside root. The root itself maps to ".".
func Rel(root, target string) (string, bool) {
	if !IsWithin(root, target) {
		return "", false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Join is the inverse of Rel.
func Join(root, rel string) string {
	if rel == "." || rel == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// Depth counts the separators in a cleaned path.
func Depth(path string) int {
	n := 0
	for i := 0; i < len(path); i++ {
		if isSep(path[i]) {
			n++
		}
	}
	return n
}

// Compare orders paths component by component, so "a/b" sorts before "a-b"
// and every directory sorts before its descendants.
func Compare(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		switch {
		case isSep(ca) && isSep(cb):
			continue
		case isSep(ca):
			return -1
		case isSep(cb):
			return 1
		case ca < cb:
			return -1
		default:
			return 1
		}
	}
	return len(a) - len(b)
}

func isSep(c byte) bool {
	return c == '/' || c == filepath.Separator
}

