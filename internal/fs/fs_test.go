package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/testutil"
)

func TestWriteFileAtomic(t *testing.T) {
	memFs := NewMemTest()
	path := testutil.Path("/", "state", "snap.json")

	if err := WriteFileAtomic(memFs, path, []byte("one"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := WriteFileAtomic(memFs, path, []byte("two"), 0644); err != nil {
		t.Fatalf("unexpected error on overwrite: %v", err)
	}

	data, err := afero.ReadFile(memFs, path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}

	entries, err := afero.ReadDir(memFs, filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temporary files to be cleaned up, found %d entries", len(entries))
	}
}

func TestLstat_DoesNotFollowSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	info, err := Lstat(NewReal(), link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("expected Lstat to report the symlink itself")
	}

	resolved, err := Readlink(NewReal(), link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != target {
		t.Errorf("Readlink = %q, want %q", resolved, target)
	}
}

func TestReadlink_Unsupported(t *testing.T) {
	if _, err := Readlink(NewMem(), testutil.Path("/", "x")); err == nil {
		t.Error("expected an error from a filesystem without symlink support")
	}
}
