package snapshot

import (
	"sync"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// Index is a live snapshot of a watched root, kept current by applying the
// events delivered for it. All paths in its API are absolute.
type Index struct {
	mu   sync.RWMutex
	fs   afero.Fs
	snap *Snapshot
}

// NewIndex wraps snap, which the Index takes ownership of.
func NewIndex(fsys afero.Fs, snap *Snapshot) *Index {
	// Readers share the lock, so the parent index must exist up front.
	snap.buildTree()
	return &Index{fs: fsys, snap: snap}
}

// Root returns the indexed root.
func (ix *Index) Root() string {
	return ix.snap.Root
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap.Len()
}

// Lookup returns the entry for an absolute path.
func (ix *Index) Lookup(abs string) (Entry, bool) {
	rel, ok := pathutil.Rel(ix.snap.Root, abs)
	if !ok || rel == "." {
		return Entry{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap.Get(rel)
}

// Exists reports whether abs is indexed.
func (ix *Index) Exists(abs string) bool {
	_, ok := ix.Lookup(abs)
	return ok
}

// Descendants returns the absolute paths indexed strictly below abs.
func (ix *Index) Descendants(abs string) []string {
	rel, ok := pathutil.Rel(ix.snap.Root, abs)
	if !ok || rel == "." {
		return nil
	}
	ix.mu.RLock()
	rels := ix.snap.Descendants(rel)
	ix.mu.RUnlock()

	out := make([]string, len(rels))
	for i, r := range rels {
		out[i] = pathutil.Join(ix.snap.Root, r)
	}
	return out
}

// Resolve maps an indexed symlink to the real path it points at, as long as
// that path is inside the root. It reports false for anything else.
func (ix *Index) Resolve(abs string) (string, bool) {
	e, ok := ix.Lookup(abs)
	if !ok || e.Kind != Symlink {
		return "", false
	}
	target, err := fs.Readlink(ix.fs, abs)
	if err != nil || !pathutil.IsWithin(ix.snap.Root, target) || target == ix.snap.Root {
		return "", false
	}
	return target, true
}

// Apply brings the index up to date with a flushed batch. Creates and
// updates are re-read from the filesystem. A path that has already vanished
// stays indexed until its own delete is applied.
func (ix *Index) Apply(events []event.Event) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range events {
		rel, ok := pathutil.Rel(ix.snap.Root, e.Path)
		if !ok || rel == "." {
			continue
		}
		if e.Type == event.Delete {
			ix.snap.Remove(rel)
			continue
		}
		info, err := fs.Lstat(ix.fs, e.Path)
		if err != nil {
			if _, ok := ix.snap.Get(rel); !ok {
				ix.snap.Put(rel, Entry{Kind: File})
			}
			continue
		}
		ix.snap.Put(rel, EntryFromInfo(info))
	}
}

// Snapshot returns a copy of the current state.
func (ix *Index) Snapshot() *Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap.Clone()
}
