package snapshot

import (
	"context"
	"errors"
	iofs "io/fs"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/ignore"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// Walk captures every file, directory and symlink below root. Symlinks are
// recorded but not followed, and ignored paths are skipped along with their
// subtrees. Entries that vanish mid-walk are dropped; entries that cannot be
// read for other reasons are logged and skipped. ctx is checked between
// directory reads.
func Walk(ctx context.Context, fsys afero.Fs, root string, filter *ignore.Filter) (*Snapshot, error) {
	info, err := fs.Lstat(fsys, root)
	if err != nil {
		return nil, rootError(root, err)
	}
	if !info.IsDir() {
		return nil, event.NewError("walk", root, event.ErrPathNotFound, pathutil.ErrNotDir)
	}

	s := New(root)
	if err := walkDir(ctx, fsys, root, root, filter, s); err != nil {
		return nil, err
	}
	return s, nil
}

func walkDir(ctx context.Context, fsys afero.Fs, root, dir string, filter *ignore.Filter, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if dir == root {
			return rootError(root, err)
		}
		if !errors.Is(err, iofs.ErrNotExist) {
			slog.Warn("failed to read directory during walk", "path", dir, "error", err)
		}
		return nil
	}

	for _, info := range infos {
		abs := filepath.Join(dir, info.Name())
		if filter.Match(abs) {
			continue
		}
		rel, ok := pathutil.Rel(root, abs)
		if !ok {
			continue
		}

		entry := EntryFromInfo(info)
		s.Put(rel, entry)

		if entry.Kind == Directory {
			if err := walkDir(ctx, fsys, root, abs, filter, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func rootError(root string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return event.NewError("walk", root, event.ErrPathNotFound, err)
	case errors.Is(err, iofs.ErrPermission):
		return event.NewError("walk", root, event.ErrPermissionDenied, err)
	default:
		return err
	}
}
