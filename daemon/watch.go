package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/prettymuchbryce/treewatch/internal/journal"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
	"github.com/prettymuchbryce/treewatch/internal/watcher"
)

var (
	errDisabled   = errors.New("daemon is disabled")
	errNotWatched = errors.New("root is not watched")
)

// HandleWatch starts journaling root, or returns the clock of the existing
// journal.
func (c *Controller) HandleWatch(root string) (ipc.WatchResult, error) {
	path, err := pathutil.NormalizeDir(root)
	if err != nil {
		return ipc.WatchResult{}, event.NewError("watch", root, event.ErrPathNotFound, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager == nil {
		return ipc.WatchResult{}, event.NewError("watch", path, event.ErrBackendUnavailable, errDisabled)
	}
	if w, ok := c.watches[path]; ok {
		return ipc.WatchResult{Root: path, Clock: w.journal.Clock()}, nil
	}

	w, err := c.watchLocked(path)
	if err != nil {
		return ipc.WatchResult{}, err
	}
	return ipc.WatchResult{Root: path, Clock: w.journal.Clock()}, nil
}

func (c *Controller) watchLocked(path string) (*rootWatch, error) {
	j := journal.New(path, c.instance, c.cfg.Daemon.JournalSize)
	isDir := func(p string) bool {
		info, err := fs.Lstat(c.fs, p)
		return err == nil && info.IsDir()
	}
	st := c.state

	sub, err := c.manager.Subscribe(context.Background(), path, func(events []event.Event) {
		j.Append(events, isDir)
		if st != nil {
			if err := st.RecordEvents(path, len(events), time.Now()); err != nil {
				slog.Warn("failed to persist root stats", "root", path, "error", err)
			}
		}
	}, watcher.Options{
		OnError: func(err error) {
			c.dropWatch(path, j)
		},
	})
	if err != nil {
		return nil, err
	}

	w := &rootWatch{sub: sub, journal: j}
	c.watches[path] = w
	if st != nil {
		if err := st.RecordWatch(path, time.Now()); err != nil {
			slog.Warn("failed to persist root stats", "root", path, "error", err)
		}
	}
	slog.Info("watching root", "root", path, "backend", sub.Backend())
	return w, nil
}

// dropWatch forgets a root whose watch failed. Clients holding its clocks
// get ErrSnapshotCorrupt on their next query.
func (c *Controller) dropWatch(path string, j *journal.Journal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.watches[path]; ok && w.journal == j {
		delete(c.watches, path)
		w.sub.Unsubscribe()
	}
}

// HandleClock returns the current clock of a watched root.
func (c *Controller) HandleClock(root string) (ipc.WatchResult, error) {
	w, path, err := c.lookup("clock", root)
	if err != nil {
		return ipc.WatchResult{}, err
	}
	return ipc.WatchResult{Root: path, Clock: w.journal.Clock()}, nil
}

// HandleSince returns the changes under root after clock.
func (c *Controller) HandleSince(root, clock string) (ipc.SinceResult, error) {
	w, _, err := c.lookup("since", root)
	if err != nil {
		if errors.Is(err, event.ErrPathNotFound) {
			// The watch that issued the clock is gone.
			return ipc.SinceResult{}, event.NewError("since", root, event.ErrSnapshotCorrupt, errNotWatched)
		}
		return ipc.SinceResult{}, err
	}
	return w.journal.Since(clock)
}

// HandleUnwatch stops journaling root.
func (c *Controller) HandleUnwatch(root string) error {
	path, err := pathutil.Normalize(root)
	if err != nil {
		return event.NewError("unwatch", root, event.ErrPathNotFound, err)
	}

	c.mu.Lock()
	w, ok := c.watches[path]
	delete(c.watches, path)
	c.mu.Unlock()

	if !ok {
		return event.NewError("unwatch", path, event.ErrPathNotFound, errNotWatched)
	}
	w.sub.Unsubscribe()
	slog.Info("stopped watching root", "root", path)
	return nil
}

func (c *Controller) lookup(op, root string) (*rootWatch, string, error) {
	path, err := pathutil.Normalize(root)
	if err != nil {
		return nil, "", event.NewError(op, root, event.ErrPathNotFound, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager == nil {
		return nil, "", event.NewError(op, path, event.ErrBackendUnavailable, errDisabled)
	}
	w, ok := c.watches[path]
	if !ok {
		return nil, "", event.NewError(op, path, event.ErrPathNotFound, errNotWatched)
	}
	return w, path, nil
}
