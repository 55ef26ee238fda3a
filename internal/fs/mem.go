package fs

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// MemFileSystem is an in-memory filesystem for testing.
type MemFileSystem struct {
	afero.Fs
}

// MustMkdirAll creates a directory and panics on error. For use in tests.
func (m *MemFileSystem) MustMkdirAll(path string) {
	if err := m.Fs.MkdirAll(path, 0755); err != nil {
		panic(fmt.Sprintf("MustMkdirAll(%q): %v", path, err))
	}
}

// MustWriteFile creates a file, along with its parent directories, and
// panics on error. For use in tests.
func (m *MemFileSystem) MustWriteFile(path string, content string) {
	m.MustMkdirAll(filepath.Dir(path))
	if err := afero.WriteFile(m.Fs, path, []byte(content), 0644); err != nil {
		panic(fmt.Sprintf("MustWriteFile(%q): %v", path, err))
	}
}

// MustTouch sets the modification time of path and panics on error.
func (m *MemFileSystem) MustTouch(path string, mtime time.Time) {
	if err := m.Fs.Chtimes(path, mtime, mtime); err != nil {
		panic(fmt.Sprintf("MustTouch(%q): %v", path, err))
	}
}

// MustRemoveAll removes a path and panics on error. For use in tests.
func (m *MemFileSystem) MustRemoveAll(path string) {
	if err := m.Fs.RemoveAll(path); err != nil {
		panic(fmt.Sprintf("MustRemoveAll(%q): %v", path, err))
	}
}

// MustRename renames a path and panics on error.
func (m *MemFileSystem) MustRename(oldpath, newpath string) {
	if err := m.Fs.Rename(oldpath, newpath); err != nil {
		panic(fmt.Sprintf("MustRename(%q, %q): %v", oldpath, newpath, err))
	}
}
