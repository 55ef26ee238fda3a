//go:build integration

package testutil

import "runtime"

func symlinkSkip() string {
	if runtime.GOOS == "windows" {
		return "symlinks need privileges on windows"
	}
	return ""
}

// SinceCases are the snapshot scenarios every way of answering "what changed
// since" must agree on.
var SinceCases = []TestCase{
	{
		Name:   "file create",
		Ops:    []Op{Write("test.txt", "hello")},
		Expect: []Expected{Created("test.txt")},
	},
	{
		Name:   "file update",
		Before: []FileEntry{File("test.txt").WithContent("a")},
		Ops:    []Op{Write("test.txt", "a longer body")},
		Expect: []Expected{Updated("test.txt")},
	},
	{
		Name:   "touch of an old file",
		Before: []FileEntry{File("old.txt").WithSize(16).ModifiedAt(HoursAgo(1))},
		Ops:    []Op{Touch("old.txt")},
		Expect: []Expected{Updated("old.txt")},
	},
	{
		Name:   "file delete",
		Before: []FileEntry{File("test.txt").WithContent("a")},
		Ops:    []Op{Remove("test.txt")},
		Expect: []Expected{Deleted("test.txt")},
	},
	{
		Name:   "rename pre-existing file",
		Before: []FileEntry{File("a.txt").WithContent("a")},
		Ops:    []Op{Rename("a.txt", "b.txt")},
		Expect: []Expected{Deleted("a.txt"), Created("b.txt")},
	},
	{
		Name:   "rename chain collapses",
		Before: []FileEntry{File("a.txt").WithContent("a")},
		Ops:    []Op{Rename("a.txt", "b.txt"), Rename("b.txt", "c.txt"), Rename("c.txt", "d.txt")},
		Expect: []Expected{Deleted("a.txt"), Created("d.txt")},
	},
	{
		Name:   "create then update is one create",
		Ops:    []Op{Write("test.txt", "a"), Write("test.txt", "ab")},
		Expect: []Expected{Created("test.txt")},
	},
	{
		Name: "create then delete is nothing",
		Ops:  []Op{Write("test.txt", "a"), Remove("test.txt")},
	},
	{
		Name:   "new directory with contents",
		Ops:    []Op{Mkdir("dir"), Write("dir/a.txt", "a")},
		Expect: []Expected{Created("dir"), Created("dir/a.txt")},
	},
	{
		Name:   "nested delete",
		Before: []FileEntry{Dir("dir/sub"), File("dir/sub/a.txt").WithContent("a")},
		Ops:    []Op{Remove("dir")},
		Expect: []Expected{Deleted("dir"), Deleted("dir/sub"), Deleted("dir/sub/a.txt")},
	},
	{
		Name:   "symlink update reported at target",
		Before: []FileEntry{File("target.txt").WithContent("t")},
		Ops:    []Op{Symlink("target.txt", "link"), Write("link", "through the link")},
		Expect: []Expected{Created("link"), Updated("target.txt")},
		Skip:   symlinkSkip(),
	},
}
