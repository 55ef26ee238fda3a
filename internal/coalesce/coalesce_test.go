package coalesce

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/snapshot"
	"github.com/prettymuchbryce/treewatch/internal/testutil"
)

// fakeTree is a fixed set of paths that existed before the window.
type fakeTree map[string]bool

func (f fakeTree) Exists(path string) bool {
	return f[path]
}

func (f fakeTree) Descendants(path string) []string {
	var out []string
	for p := range f {
		if strings.HasPrefix(p, path+string(filepath.Separator)) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

func p(parts ...string) string {
	return testutil.Path(append([]string{"/", "root"}, parts...)...)
}

func raw(action event.Action, path string) event.Raw {
	return event.Raw{Path: path, Action: action}
}

func TestCoalescer(t *testing.T) {
	tests := []struct {
		name  string
		tree  fakeTree
		exact bool
		raws  []event.Raw
		want  []event.Event
	}{
		{
			name: "single create",
			raws: []event.Raw{raw(event.Created, p("a"))},
			want: []event.Event{{Type: event.Create, Path: p("a")}},
		},
		{
			name: "create then modify is one create",
			raws: []event.Raw{
				raw(event.Created, p("a")),
				raw(event.Modified, p("a")),
				raw(event.Modified, p("a")),
			},
			want: []event.Event{{Type: event.Create, Path: p("a")}},
		},
		{
			name: "repeated modifications of an existing file are one update",
			tree: fakeTree{p("a"): true},
			raws: []event.Raw{
				raw(event.Modified, p("a")),
				raw(event.Modified, p("a")),
				raw(event.Modified, p("a")),
			},
			want: []event.Event{{Type: event.Update, Path: p("a")}},
		},
		{
			name:  "create then delete cancels out",
			exact: true,
			raws: []event.Raw{
				raw(event.Created, p("a")),
				raw(event.Modified, p("a")),
				raw(event.Deleted, p("a")),
			},
			want: nil,
		},
		{
			name:  "create then delete without exact reporting is a delete",
			exact: false,
			raws: []event.Raw{
				raw(event.Created, p("a")),
				raw(event.Deleted, p("a")),
			},
			want: []event.Event{{Type: event.Delete, Path: p("a")}},
		},
		{
			name:  "delete then recreate is an update",
			exact: true,
			tree:  fakeTree{p("a"): true},
			raws: []event.Raw{
				raw(event.Deleted, p("a")),
				raw(event.Created, p("a")),
			},
			want: []event.Event{{Type: event.Update, Path: p("a")}},
		},
		{
			name: "created over an existing path is an update",
			tree: fakeTree{p("a"): true},
			raws: []event.Raw{raw(event.Created, p("a"))},
			want: []event.Event{{Type: event.Update, Path: p("a")}},
		},
		{
			name:  "rename chain of a new file collapses to the final name",
			exact: true,
			raws: []event.Raw{
				raw(event.Created, p("a")),
				raw(event.RenamedFrom, p("a")),
				raw(event.RenamedTo, p("b")),
				raw(event.RenamedFrom, p("b")),
				raw(event.RenamedTo, p("c")),
				raw(event.RenamedFrom, p("c")),
				raw(event.RenamedTo, p("d")),
			},
			want: []event.Event{{Type: event.Create, Path: p("d")}},
		},
		{
			name:  "rename chain of an existing file is delete original and create final",
			exact: true,
			tree:  fakeTree{p("a"): true},
			raws: []event.Raw{
				raw(event.RenamedFrom, p("a")),
				raw(event.RenamedTo, p("b")),
				raw(event.RenamedFrom, p("b")),
				raw(event.RenamedTo, p("c")),
				raw(event.RenamedFrom, p("c")),
				raw(event.RenamedTo, p("d")),
			},
			want: []event.Event{
				{Type: event.Delete, Path: p("a")},
				{Type: event.Create, Path: p("d")},
			},
		},
		{
			name:  "deleting a directory enumerates known descendants",
			exact: true,
			tree: fakeTree{
				p("dir"):             true,
				p("dir", "a"):        true,
				p("dir", "sub"):      true,
				p("dir", "sub", "b"): true,
				p("other"):           true,
			},
			raws: []event.Raw{{Path: p("dir"), Action: event.Deleted, IsDir: true}},
			want: []event.Event{
				{Type: event.Delete, Path: p("dir")},
				{Type: event.Delete, Path: p("dir", "a")},
				{Type: event.Delete, Path: p("dir", "sub")},
				{Type: event.Delete, Path: p("dir", "sub", "b")},
			},
		},
		{
			name:  "files created inside a directory deleted in the same window vanish",
			exact: true,
			tree:  fakeTree{p("dir"): true},
			raws: []event.Raw{
				raw(event.Created, p("dir", "new")),
				raw(event.Deleted, p("dir")),
			},
			want: []event.Event{{Type: event.Delete, Path: p("dir")}},
		},
		{
			name: "directory modifications are dropped",
			tree: fakeTree{p("dir"): true},
			raws: []event.Raw{{Path: p("dir"), Action: event.Modified, IsDir: true}},
			want: nil,
		},
		{
			name:  "deleting something that never existed reports nothing",
			exact: true,
			tree:  fakeTree{},
			raws:  []event.Raw{raw(event.Deleted, p("ghost"))},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{ExactCreateDelete: tt.exact}
			if tt.tree != nil {
				opts.Tree = tt.tree
			}
			c := New(opts)
			c.Add(tt.raws...)

			got := c.Flush()
			if !slices.Equal(got, tt.want) {
				t.Errorf("Flush() =\n%v\nwant\n%v", got, tt.want)
			}
			if c.Pending() != 0 {
				t.Errorf("expected state to be cleared after flush, %d paths pending", c.Pending())
			}
		})
	}
}

func TestCoalescer_InferredExistence(t *testing.T) {
	c := New(Options{ExactCreateDelete: true})
	c.Add(
		raw(event.Modified, p("old")),
		raw(event.Deleted, p("gone")),
		raw(event.Created, p("new")),
	)

	want := []event.Event{
		{Type: event.Delete, Path: p("gone")},
		{Type: event.Create, Path: p("new")},
		{Type: event.Update, Path: p("old")},
	}
	if got := c.Flush(); !slices.Equal(got, want) {
		t.Errorf("Flush() = %v, want %v", got, want)
	}
}

func TestCoalescer_ResolvesSymlinks(t *testing.T) {
	tree := fakeTree{p("f1"): true, p("l1"): true}
	c := New(Options{
		Tree:              tree,
		ExactCreateDelete: true,
		Resolve: func(path string) (string, bool) {
			if path == p("l1") {
				return p("f1"), true
			}
			return "", false
		},
	})
	c.Add(raw(event.Modified, p("l1")))

	want := []event.Event{{Type: event.Update, Path: p("f1")}}
	if got := c.Flush(); !slices.Equal(got, want) {
		t.Errorf("Flush() = %v, want %v", got, want)
	}
}

func TestCoalescer_Idempotent(t *testing.T) {
	tree := fakeTree{p("a"): true}
	once := New(Options{Tree: tree, ExactCreateDelete: true})
	once.Add(raw(event.Modified, p("a")))

	many := New(Options{Tree: tree, ExactCreateDelete: true})
	for i := 0; i < 50; i++ {
		many.Add(raw(event.Modified, p("a")))
	}

	if a, b := once.Flush(), many.Flush(); !slices.Equal(a, b) {
		t.Errorf("coalescing is not idempotent: %v vs %v", a, b)
	}
}

func TestCoalescer_FlushEmpty(t *testing.T) {
	if got := New(Options{}).Flush(); got != nil {
		t.Errorf("Flush() on empty window = %v, want nil", got)
	}
}

// countingTree records how many paths a Tree handed back.
type countingTree struct {
	*snapshot.Index
	returned int
}

func (c *countingTree) Descendants(path string) []string {
	out := c.Index.Descendants(path)
	c.returned += len(out)
	return out
}

func TestCoalescer_DeleteAfterVanishedCreate(t *testing.T) {
	memFs := fs.NewMemTest()
	memFs.MustMkdirAll(p())
	ix := snapshot.NewIndex(memFs, snapshot.New(p()))
	c := New(Options{Tree: ix, ExactCreateDelete: true})

	// The file is gone by the time the first window flushes; its delete
	// only lands in the second one.
	memFs.MustWriteFile(p("f"), "x")
	c.Add(raw(event.Created, p("f")))
	memFs.MustRemoveAll(p("f"))
	first := c.Flush()
	ix.Apply(first)

	c.Add(raw(event.Deleted, p("f")))
	second := c.Flush()
	ix.Apply(second)

	if want := []event.Event{{Type: event.Create, Path: p("f")}}; !slices.Equal(first, want) {
		t.Errorf("first window = %v, want %v", first, want)
	}
	if want := []event.Event{{Type: event.Delete, Path: p("f")}}; !slices.Equal(second, want) {
		t.Errorf("second window = %v, want %v", second, want)
	}
	if ix.Exists(p("f")) {
		t.Error("f should leave the index once its delete is applied")
	}
}

func TestCoalescer_RemoveLargeTree(t *testing.T) {
	const files = 5000
	snap := snapshot.New(p())
	snap.Put("dir", snapshot.Entry{Kind: snapshot.Directory})
	for i := range files {
		snap.Put(fmt.Sprintf("dir/f%d", i), snapshot.Entry{Kind: snapshot.File})
	}
	snap.Put("other", snapshot.Entry{Kind: snapshot.File})
	tree := &countingTree{Index: snapshot.NewIndex(fs.NewMem(), snap)}
	c := New(Options{Tree: tree, ExactCreateDelete: true})

	// rm -rf reports every file, then the directory.
	for i := range files {
		c.Add(raw(event.Deleted, p("dir", fmt.Sprintf("f%d", i))))
	}
	c.Add(raw(event.Deleted, p("dir")))

	// Only the directory delete may enumerate anything below it.
	if tree.returned != files {
		t.Errorf("Descendants returned %d paths in total, want %d", tree.returned, files)
	}
	got := c.Flush()
	if len(got) != files+1 {
		t.Fatalf("Flush() returned %d events, want %d", len(got), files+1)
	}
	if got[0] != (event.Event{Type: event.Delete, Path: p("dir")}) {
		t.Errorf("first event = %v, want delete of dir", got[0])
	}
	for _, e := range got {
		if e.Type != event.Delete || e.Path == p("other") {
			t.Fatalf("unexpected event %v", e)
		}
	}
}

func TestCoalescer_DirectoryDeleteCoversPendingChildren(t *testing.T) {
	c := New(Options{Tree: fakeTree{p("dir"): true, p("dir", "old"): true}, ExactCreateDelete: true})
	c.Add(
		raw(event.Created, p("dir", "sub", "new")),
		raw(event.Modified, p("dir", "old")),
		raw(event.Created, p("dirx")),
		raw(event.Deleted, p("dir")),
	)

	want := []event.Event{
		{Type: event.Delete, Path: p("dir")},
		{Type: event.Delete, Path: p("dir", "old")},
		{Type: event.Create, Path: p("dirx")},
	}
	if got := c.Flush(); !slices.Equal(got, want) {
		t.Errorf("Flush() = %v, want %v", got, want)
	}
}

func BenchmarkCoalescer_RemoveTree(b *testing.B) {
	const files = 20000
	snap := snapshot.New(p())
	snap.Put("dir", snapshot.Entry{Kind: snapshot.Directory})
	for i := range files {
		snap.Put(fmt.Sprintf("dir/f%d", i), snapshot.Entry{Kind: snapshot.File})
	}
	ix := snapshot.NewIndex(fs.NewMem(), snap)
	raws := make([]event.Raw, 0, files+1)
	for i := range files {
		raws = append(raws, raw(event.Deleted, p("dir", fmt.Sprintf("f%d", i))))
	}
	raws = append(raws, raw(event.Deleted, p("dir")))

	b.ResetTimer()
	for range b.N {
		c := New(Options{Tree: ix, ExactCreateDelete: true})
		c.Add(raws...)
		c.Flush()
	}
}
