package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
)

// fsnotifyBuffer is the size of the fsnotify event channel.
const fsnotifyBuffer = 1024

// fsnotifyBackend watches a tree through fsnotify, one watch per directory.
// It serves kqueue platforms, where fsnotify is a thin layer over kevent.
type fsnotifyBackend struct {
	base
	opts Options

	watcher *fsnotify.Watcher

	// mu guards dirs between the event loop and WatchCount.
	mu   sync.Mutex
	dirs *WatchedDirs
}

func newFsnotifyBackend(kind Kind) Factory {
	return func(opts Options) (Backend, error) {
		return &fsnotifyBackend{base: newBase(kind), opts: opts}, nil
	}
}

// Start creates the watcher and watches the whole tree before returning.
func (b *fsnotifyBackend) Start(ctx context.Context) error {
	w, err := fsnotify.NewBufferedWatcher(fsnotifyBuffer)
	if err != nil {
		return wrapError("watch", b.opts.Root, err)
	}
	b.watcher = w
	b.dirs = NewWatchedDirs(b.opts.Fs, w, b.opts.Root)

	if err := b.dirs.AddRoot(); err != nil {
		w.Close()
		return err
	}
	slog.Debug("fsnotify watch started", "root", b.opts.Root, "watches", b.dirs.WatchCount())

	b.wg.Add(1)
	go b.eventLoop(ctx)
	return nil
}

func (b *fsnotifyBackend) eventLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			// Drain what is already queued so one burst becomes one group.
			evs := []fsnotify.Event{ev}
		drain:
			for {
				select {
				case more, ok := <-b.watcher.Events:
					if !ok {
						break drain
					}
					evs = append(evs, more)
				default:
					break drain
				}
			}

			raws, err := b.process(evs)
			if !b.emit(raws) {
				return
			}
			if err != nil {
				b.fail(err)
				return
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				b.fail(eventsLost(b.opts.Root, err.Error()))
				return
			}
			b.fail(fmt.Errorf("watcher error: %w", err))
			return
		}
	}
}

func (b *fsnotifyBackend) process(evs []fsnotify.Event) ([]event.Raw, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var raws []event.Raw
	for _, ev := range evs {
		more, err := b.processEvent(ev)
		raws = append(raws, more...)
		if err != nil {
			return raws, err
		}
	}
	return raws, nil
}

func (b *fsnotifyBackend) processEvent(ev fsnotify.Event) ([]event.Raw, error) {
	path := ev.Name

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if path == b.opts.Root {
			return nil, rootGone(b.opts.Root)
		}
		isDir := b.dirs.Has(path)
		if isDir {
			b.dirs.RemoveSubtree(path)
		}
		action := event.Deleted
		if ev.Has(fsnotify.Rename) {
			action = event.RenamedFrom
		}
		return []event.Raw{{Path: path, Action: action, IsDir: isDir}}, nil

	case ev.Has(fsnotify.Create):
		info, err := fs.Lstat(b.opts.Fs, path)
		if err != nil {
			// Gone again before we looked; a later Remove reports it.
			return []event.Raw{{Path: path, Action: event.Created}}, nil
		}
		raws := []event.Raw{{Path: path, Action: event.Created, IsDir: info.IsDir()}}
		if info.IsDir() {
			found, err := b.dirs.AddSubtree(path)
			raws = append(raws, found...)
			if err != nil {
				return raws, err
			}
		}
		return raws, nil

	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Chmod):
		if path == b.opts.Root {
			return nil, nil
		}
		return []event.Raw{{Path: path, Action: event.Modified, IsDir: b.dirs.Has(path)}}, nil
	}
	return nil, nil
}

// WatchCount returns the number of directories being watched.
func (b *fsnotifyBackend) WatchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirs == nil {
		return 0
	}
	return b.dirs.WatchCount()
}

// Stop stops the event loop and closes the watcher.
func (b *fsnotifyBackend) Stop() error {
	if !b.shutdown() {
		return nil
	}
	if b.watcher == nil {
		return nil
	}
	return b.watcher.Close()
}
