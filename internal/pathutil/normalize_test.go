package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestIsWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data", "root")

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"root itself", root, true},
		{"child", filepath.Join(root, "a"), true},
		{"nested", filepath.Join(root, "a", "b"), true},
		{"sibling with shared prefix", root + "2", false},
		{"parent", filepath.Dir(root), false},
		{"unrelated", filepath.Join(string(filepath.Separator), "other"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWithin(root, tt.path); got != tt.want {
				t.Errorf("IsWithin(%q, %q) = %v, want %v", root, tt.path, got, tt.want)
			}
		})
	}
}

func TestRelAndJoin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data")

	rel, ok := Rel(root, filepath.Join(root, "a", "b.txt"))
	if !ok || rel != "a/b.txt" {
		t.Fatalf("Rel = %q, %v; want a/b.txt, true", rel, ok)
	}
	if got := Join(root, rel); got != filepath.Join(root, "a", "b.txt") {
		t.Errorf("Join round trip = %q", got)
	}

	if rel, ok := Rel(root, root); !ok || rel != "." {
		t.Errorf("Rel(root, root) = %q, %v; want ., true", rel, ok)
	}
	if _, ok := Rel(root, filepath.Join(string(filepath.Separator), "elsewhere")); ok {
		t.Error("expected path outside root to be rejected")
	}
}

func TestCompare_ParentsFirst(t *testing.T) {
	paths := []string{"a-b", "a/b/c", "a", "b", "a/b", "a.txt"}
	slices.SortFunc(paths, Compare)

	want := []string{"a", "a/b", "a/b/c", "a-b", "a.txt", "b"}
	if !slices.Equal(paths, want) {
		t.Errorf("sorted = %v, want %v", paths, want)
	}
}

func TestDepth(t *testing.T) {
	if got := Depth("a/b/c"); got != 2 {
		t.Errorf("Depth(a/b/c) = %d, want 2", got)
	}
	if got := Depth("a"); got != 0 {
		t.Errorf("Depth(a) = %d, want 0", got)
	}
}

func TestNormalizeDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NormalizeDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("NormalizeDir = %q, want %q", got, want)
	}

	if _, err := NormalizeDir(file); !errors.Is(err, ErrNotDir) {
		t.Errorf("expected ErrNotDir for a file, got %v", err)
	}
	if _, err := NormalizeDir(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
