package treewatch

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ignore"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
	"github.com/prettymuchbryce/treewatch/internal/snapshot"
)

// SnapshotOptions configures WriteSnapshot and GetEventsSince.
type SnapshotOptions struct {
	// Ignore lists paths or glob patterns left out of the snapshot and the
	// reported events.
	Ignore []string
	// Backend selects how the snapshot is taken. The daemon backend stores
	// a daemon clock; every other backend walks the tree.
	Backend Backend
}

// WriteSnapshot records the current state of root in snapshotPath,
// replacing any previous file atomically.
func (w *Watcher) WriteSnapshot(ctx context.Context, root, snapshotPath string, opts SnapshotOptions) error {
	path, err := w.normalize(root)
	if err != nil {
		return err
	}
	filter, err := ignore.New(path, opts.Ignore)
	if err != nil {
		return err
	}
	kind, err := w.snapshotBackend(opts.Backend)
	if err != nil {
		return err
	}

	var snap *snapshot.Snapshot
	if kind == backend.Daemon {
		clock, err := backend.DaemonClock(w.cfg.DaemonSocket, path)
		if err != nil {
			return err
		}
		snap = snapshot.New(path)
		snap.Clock = clock
	} else {
		snap, err = snapshot.Walk(ctx, w.fs, path, filter)
		if err != nil {
			return err
		}
	}
	snap.Backend = string(kind)

	if err := snapshot.Write(w.fs, snapshotPath, snap); err != nil {
		return err
	}
	slog.Debug("wrote snapshot", "root", path, "path", snapshotPath, "backend", kind, "entries", snap.Len())
	return nil
}

// GetEventsSince returns the changes below root since snapshotPath was
// written. An unreadable snapshot, or one of another root, fails with
// ErrSnapshotCorrupt.
func (w *Watcher) GetEventsSince(ctx context.Context, root, snapshotPath string, opts SnapshotOptions) ([]Event, error) {
	path, err := w.normalize(root)
	if err != nil {
		return nil, err
	}
	filter, err := ignore.New(path, opts.Ignore)
	if err != nil {
		return nil, err
	}

	// Load and walk run together. A daemon snapshot does not need the walk,
	// so loading one cancels it.
	g, gctx := errgroup.WithContext(ctx)
	walkCtx, stopWalk := context.WithCancel(gctx)
	defer stopWalk()

	var old, cur *snapshot.Snapshot
	g.Go(func() error {
		s, err := snapshot.Load(w.fs, snapshotPath)
		if err != nil {
			return err
		}
		if s.Clock != "" {
			stopWalk()
		}
		old = s
		return nil
	})
	g.Go(func() error {
		s, err := snapshot.Walk(walkCtx, w.fs, path, filter)
		if err != nil {
			if walkCtx.Err() != nil && gctx.Err() == nil {
				return nil
			}
			return err
		}
		cur = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if old.Root != path {
		return nil, event.NewError("events since", path, event.ErrSnapshotCorrupt,
			fmt.Errorf("snapshot was taken of %s", old.Root))
	}

	if old.Clock != "" {
		events, err := backend.DaemonSince(w.cfg.DaemonSocket, path, old.Clock)
		if err != nil {
			return nil, err
		}
		return filter.Apply(events), nil
	}
	return snapshot.Diff(old, cur, filter)
}

// snapshotBackend picks the kind recorded in a snapshot. Walks work
// everywhere, so a platform without a default records brute-force.
func (w *Watcher) snapshotBackend(kind Backend) (Backend, error) {
	if kind == "" {
		kind = w.cfg.Backend
	}
	resolved, err := backend.Resolve(kind)
	if err != nil {
		if kind == "" {
			return backend.BruteForce, nil
		}
		return "", err
	}
	return resolved, nil
}

// normalize resolves root the way Subscribe does. Filesystems other than
// the OS cannot resolve symlinks, so their roots are only made absolute.
func (w *Watcher) normalize(root string) (string, error) {
	if _, ok := w.fs.(*afero.OsFs); ok {
		path, err := pathutil.NormalizeDir(root)
		if err != nil {
			if errors.Is(err, iofs.ErrPermission) {
				return "", event.NewError("snapshot", root, event.ErrPermissionDenied, err)
			}
			return "", event.NewError("snapshot", root, event.ErrPathNotFound, err)
		}
		return path, nil
	}
	path, err := filepath.Abs(pathutil.ExpandTilde(root))
	if err != nil {
		return "", event.NewError("snapshot", root, event.ErrPathNotFound, err)
	}
	return filepath.Clean(path), nil
}
