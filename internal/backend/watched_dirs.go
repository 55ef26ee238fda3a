package backend

import (
	"errors"
	iofs "io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
)

// dirWatcher is the per-directory watch facility, allowing mocking in tests.
type dirWatcher interface {
	Add(name string) error
	Remove(name string) error
}

// WatchedDirs emulates a recursive watch on top of a facility that can only
// watch single directories. It keeps one watch per directory under the root
// and extends the tree as directories appear.
//
// WatchedDirs is not safe for concurrent use; the owning backend serializes
// access.
type WatchedDirs struct {
	// fs is the filesystem abstraction for lstat and readdir operations.
	fs afero.Fs

	// watcher is the underlying per-directory facility.
	// Note: inotify and fsnotify drop watches on delete by themselves. We
	// still remove them explicitly to keep our state consistent.
	watcher dirWatcher

	// root is the top of the watched tree.
	root string

	// entries is the set of watched directories.
	entries map[string]struct{}
}

// NewWatchedDirs creates an empty index rooted at root.
func NewWatchedDirs(filesystem afero.Fs, watcher dirWatcher, root string) *WatchedDirs {
	return &WatchedDirs{
		fs:      filesystem,
		watcher: watcher,
		root:    root,
		entries: make(map[string]struct{}),
	}
}

// WatchCount returns the number of directories currently being watched.
func (w *WatchedDirs) WatchCount() int {
	return len(w.entries)
}

// Has reports whether path is a watched directory.
func (w *WatchedDirs) Has(path string) bool {
	_, ok := w.entries[path]
	return ok
}

// AddRoot watches the root and every directory below it. Failing to watch
// the root itself, or running into the watch limit anywhere, is an error.
// Other failures below the root are logged and the subtree is skipped.
func (w *WatchedDirs) AddRoot() error {
	info, err := fs.Lstat(w.fs, w.root)
	if err != nil {
		return wrapError("watch", w.root, err)
	}
	if !info.IsDir() {
		return event.NewError("watch", w.root, event.ErrPathNotFound, errors.New("not a directory"))
	}

	if err := w.watcher.Add(w.root); err != nil {
		return wrapError("watch", w.root, err)
	}
	w.entries[w.root] = struct{}{}

	if err := w.addChildren(w.root, nil); err != nil {
		return err
	}
	if !w.Has(w.root) {
		return event.NewError("watch", w.root, event.ErrPathNotFound, errors.New("root vanished while adding watches"))
	}
	return nil
}

// AddSubtree watches a directory that appeared under the root, along with
// everything below it. Entries found while listing are returned as Created
// events, since their own notifications may have fired before the watch was
// in place.
func (w *WatchedDirs) AddSubtree(path string) ([]event.Raw, error) {
	var found []event.Raw
	if _, exists := w.entries[path]; !exists {
		if err := w.watcher.Add(path); err != nil {
			if isWatchLimit(err) {
				return nil, wrapError("watch", path, err)
			}
			if !errors.Is(err, iofs.ErrNotExist) {
				slog.Warn("failed to add subdirectory watch", "path", path, "error", err)
			}
			return nil, nil
		}
		w.entries[path] = struct{}{}
	}

	if err := w.addChildren(path, &found); err != nil {
		return found, err
	}
	return found, nil
}

// addChildren lists dir and watches each subdirectory recursively.
func (w *WatchedDirs) addChildren(dir string, found *[]event.Raw) error {
	infos, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		// race condition: the directory may be deleted right after we
		// started watching it.
		if !errors.Is(err, iofs.ErrNotExist) {
			slog.Warn("failed to read directory when adding watches", "path", dir, "error", err)
		}
		w.RemoveSubtree(dir)
		return nil
	}

	for _, info := range infos {
		child := filepath.Join(dir, info.Name())
		isDir := info.IsDir()
		if found != nil {
			*found = append(*found, event.Raw{Path: child, Action: event.Created, IsDir: isDir})
		}
		if !isDir {
			continue
		}
		if _, exists := w.entries[child]; exists {
			continue
		}
		if err := w.watcher.Add(child); err != nil {
			if isWatchLimit(err) {
				return wrapError("watch", child, err)
			}
			if !errors.Is(err, iofs.ErrNotExist) {
				slog.Warn("failed to add subdirectory watch", "path", child, "error", err)
			}
			continue
		}
		w.entries[child] = struct{}{}
		if err := w.addChildren(child, found); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSubtree stops watching path and every watched directory below it.
// Multiple removals of the same path are possible (deleting /a/b when both
// /a and /a/b are watched) and are no-ops after the first.
func (w *WatchedDirs) RemoveSubtree(path string) {
	prefix := path + string(filepath.Separator)
	for p := range w.entries {
		if p != path && !strings.HasPrefix(p, prefix) {
			continue
		}
		if err := w.watcher.Remove(p); err != nil {
			slog.Debug("watcher failed to remove watch", "path", p, "error", err)
		}
		delete(w.entries, p)
	}
}

// Forget drops a directory the native facility already stopped watching.
func (w *WatchedDirs) Forget(path string) {
	delete(w.entries, path)
}

// Destroy removes every watch.
func (w *WatchedDirs) Destroy() {
	for p := range w.entries {
		if err := w.watcher.Remove(p); err != nil {
			slog.Debug("watcher failed to remove watch", "path", p, "error", err)
		}
	}
	w.entries = make(map[string]struct{})
}
