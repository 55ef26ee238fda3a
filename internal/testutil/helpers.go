//go:build integration

package testutil

import (
	"time"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// Time helpers for readable test data

// HoursAgo returns a negative duration representing n hours in the past.
// Use with ModifiedAt: File("x").ModifiedAt(HoursAgo(2))
func HoursAgo(n float64) time.Duration {
	return -time.Duration(n * float64(time.Hour))
}

// File builder helpers for fluent API

// File creates a FileEntry for a file at the given path.
// Path should use forward slashes regardless of OS.
func File(path string) FileEntry {
	return FileEntry{Path: path, IsDir: false}
}

// Dir creates a FileEntry for a directory at the given path.
// Path should use forward slashes regardless of OS.
func Dir(path string) FileEntry {
	return FileEntry{Path: path, IsDir: true}
}

// WithContent sets the file content.
func (f FileEntry) WithContent(content string) FileEntry {
	f.Content = content
	return f
}

// WithSize sets the file size (creates file filled with zero bytes).
func (f FileEntry) WithSize(size int64) FileEntry {
	f.Size = size
	return f
}

// ModifiedAt sets the modification time relative to now.
// Use the HoursAgo helper.
func (f FileEntry) ModifiedAt(d time.Duration) FileEntry {
	f.ModTime = d
	return f
}

// Op builders. Paths use forward slashes regardless of OS.

func Write(path, content string) Op { return Op{kind: "write", path: path, content: content} }
func Mkdir(path string) Op          { return Op{kind: "mkdir", path: path} }
func Remove(path string) Op         { return Op{kind: "remove", path: path} }
func Rename(from, to string) Op     { return Op{kind: "rename", path: from, to: to} }
func Touch(path string) Op          { return Op{kind: "touch", path: path} }

// Symlink creates link pointing at target, both relative to the root.
func Symlink(target, link string) Op { return Op{kind: "symlink", path: link, to: target} }

// Expected event builders.

func Created(path string) Expected { return Expected{Type: event.Create, Path: path} }
func Updated(path string) Expected { return Expected{Type: event.Update, Path: path} }
func Deleted(path string) Expected { return Expected{Type: event.Delete, Path: path} }
