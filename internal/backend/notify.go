//go:build (darwin && cgo) || windows

package backend

import (
	"context"
	"errors"
	iofs "io/fs"
	"log/slog"
	"path/filepath"

	"github.com/syncthing/notify"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
)

// Notify does not block on sending to the channel, so it must be buffered.
// An entirely full buffer means events were dropped.
const notifyBuffer = 500

// notifyBackend uses a natively recursive watch (FSEvents on macOS,
// ReadDirectoryChangesW on Windows) through syncthing/notify.
type notifyBackend struct {
	base
	opts Options

	ch chan notify.EventInfo
}

func newNotifyBackend(kind Kind) Factory {
	return func(opts Options) (Backend, error) {
		return &notifyBackend{base: newBase(kind), opts: opts}, nil
	}
}

// Start places the recursive watch.
func (b *notifyBackend) Start(ctx context.Context) error {
	info, err := fs.Lstat(b.opts.Fs, b.opts.Root)
	if err != nil {
		return wrapError("watch", b.opts.Root, err)
	}
	if !info.IsDir() {
		return event.NewError("watch", b.opts.Root, event.ErrPathNotFound, errors.New("not a directory"))
	}

	b.ch = make(chan notify.EventInfo, notifyBuffer)
	if err := notify.Watch(filepath.Join(b.opts.Root, "..."), b.ch, notify.All); err != nil {
		notify.Stop(b.ch)
		return wrapError("watch", b.opts.Root, err)
	}
	slog.Debug("recursive watch started", "root", b.opts.Root, "backend", b.kind)

	b.wg.Add(1)
	go b.eventLoop(ctx)
	return nil
}

func (b *notifyBackend) eventLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		if len(b.ch) == notifyBuffer {
			b.fail(eventsLost(b.opts.Root, "event buffer overflowed"))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ei := <-b.ch:
			infos := []notify.EventInfo{ei}
		drain:
			for {
				select {
				case more := <-b.ch:
					infos = append(infos, more)
				default:
					break drain
				}
			}

			raws, err := b.process(infos)
			if !b.emit(raws) {
				return
			}
			if err != nil {
				b.fail(err)
				return
			}
		}
	}
}

func (b *notifyBackend) process(infos []notify.EventInfo) ([]event.Raw, error) {
	var raws []event.Raw
	for _, ei := range infos {
		path := filepath.Clean(ei.Path())
		info, statErr := fs.Lstat(b.opts.Fs, path)
		exists := statErr == nil

		if path == b.opts.Root {
			if !exists && errors.Is(statErr, iofs.ErrNotExist) {
				return raws, rootGone(b.opts.Root)
			}
			continue
		}

		isDir := exists && info.IsDir()
		var action event.Action
		switch ev := ei.Event(); {
		case ev&notify.Rename != 0:
			action = event.RenamedFrom
			if exists {
				action = event.RenamedTo
			}
		case ev&notify.Remove != 0:
			action = event.Deleted
			if exists {
				// Removed and recreated within one batch.
				action = event.Created
			}
		case ev&notify.Create != 0:
			action = event.Created
			if !exists {
				action = event.Deleted
			}
		default:
			action = event.Modified
			if !exists {
				action = event.Deleted
			}
		}
		raws = append(raws, event.Raw{Path: path, Action: action, IsDir: isDir})
	}
	return raws, nil
}

// WatchCount is one: the native watch covers the whole tree.
func (b *notifyBackend) WatchCount() int {
	if b.ch == nil {
		return 0
	}
	return 1
}

// Stop removes the watch.
func (b *notifyBackend) Stop() error {
	if !b.shutdown() {
		return nil
	}
	if b.ch != nil {
		notify.Stop(b.ch)
	}
	return nil
}
