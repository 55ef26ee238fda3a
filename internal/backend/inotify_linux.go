//go:build linux

package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

func init() {
	register(Inotify, Capabilities{Subscribe: true, ExactCreateDelete: true}, newInotifyBackend)
}

const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF |
	unix.IN_ONLYDIR | unix.IN_DONT_FOLLOW | unix.IN_EXCL_UNLINK

// pollTimeout bounds how long the read loop waits before checking for Stop.
const pollTimeout = 100 // milliseconds

// inotifyWatches maps watch descriptors to directories for one inotify fd.
type inotifyWatches struct {
	fd     int
	byPath map[string]int
	byWd   map[int]string
}

func (w *inotifyWatches) Add(name string) error {
	wd, err := unix.InotifyAddWatch(w.fd, name, inotifyMask)
	if err != nil {
		return &os.PathError{Op: "inotify_add_watch", Path: name, Err: err}
	}
	if old, ok := w.byWd[wd]; ok && old != name {
		// The same inode is now reachable under a new name.
		delete(w.byPath, old)
	}
	w.byPath[name] = wd
	w.byWd[wd] = name
	return nil
}

func (w *inotifyWatches) Remove(name string) error {
	wd, ok := w.byPath[name]
	if !ok {
		return nil
	}
	delete(w.byPath, name)
	delete(w.byWd, wd)
	//nolint:gosec // G115: wd is always a small non-negative int from inotify
	if _, err := unix.InotifyRmWatch(w.fd, uint32(wd)); err != nil {
		return &os.PathError{Op: "inotify_rm_watch", Path: name, Err: err}
	}
	return nil
}

// forget drops a descriptor the kernel already released (IN_IGNORED).
func (w *inotifyWatches) forget(wd int) (string, bool) {
	name, ok := w.byWd[wd]
	if !ok {
		return "", false
	}
	delete(w.byWd, wd)
	if w.byPath[name] == wd {
		delete(w.byPath, name)
	}
	return name, true
}

// inotifyBackend implements Backend using Linux inotify with one watch per
// directory.
type inotifyBackend struct {
	base
	opts Options

	fd      int
	watches *inotifyWatches

	// mu guards dirs between the read loop and WatchCount.
	mu   sync.Mutex
	dirs *WatchedDirs
}

func newInotifyBackend(opts Options) (Backend, error) {
	return &inotifyBackend{
		base: newBase(Inotify),
		opts: opts,
		fd:   -1,
	}, nil
}

// Start initializes inotify and watches the whole tree before returning.
func (b *inotifyBackend) Start(ctx context.Context) error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return wrapError("inotify_init", b.opts.Root, err)
	}
	b.fd = fd
	b.watches = &inotifyWatches{fd: fd, byPath: make(map[string]int), byWd: make(map[int]string)}
	b.dirs = NewWatchedDirs(b.opts.Fs, b.watches, b.opts.Root)

	if err := b.dirs.AddRoot(); err != nil {
		unix.Close(fd)
		b.fd = -1
		return err
	}
	slog.Debug("inotify watch started", "root", b.opts.Root, "watches", b.dirs.WatchCount())

	b.wg.Add(1)
	go b.readEvents(ctx)
	return nil
}

// readEvents polls the inotify fd until Stop or ctx cancellation.
func (b *inotifyBackend) readEvents(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*64)
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			b.fail(fmt.Errorf("failed to poll inotify: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(b.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			b.fail(fmt.Errorf("failed to read inotify events: %w", err))
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}

		raws, err := b.parseEvents(buf[:n])
		if err != nil {
			b.emit(raws)
			b.fail(err)
			return
		}
		if !b.emit(raws) {
			return
		}
	}
}

// parseEvents turns one read worth of inotify records into raw events.
func (b *inotifyBackend) parseEvents(buf []byte) ([]event.Raw, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var raws []event.Raw
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		offset = nameStart + int(ev.Len)

		mask := ev.Mask
		if mask&unix.IN_Q_OVERFLOW != 0 {
			return raws, eventsLost(b.opts.Root, "inotify event queue overflowed")
		}

		if mask&unix.IN_IGNORED != 0 {
			if dir, ok := b.watches.forget(int(ev.Wd)); ok {
				b.dirs.Forget(dir)
			}
			continue
		}

		dir, ok := b.watches.byWd[int(ev.Wd)]
		if !ok {
			continue
		}

		path := dir
		if ev.Len > 0 {
			name := buf[nameStart:offset]
			path = filepath.Join(dir, string(name[:clen(name)]))
		}

		more, err := b.processEvent(path, dir, mask)
		raws = append(raws, more...)
		if err != nil {
			return raws, err
		}
	}
	return raws, nil
}

func (b *inotifyBackend) processEvent(path, watchedDir string, mask uint32) ([]event.Raw, error) {
	isDir := mask&unix.IN_ISDIR != 0

	// The watched directory itself went away. Below the root the parent
	// reports it too, so only the root matters here.
	if mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0 {
		if path == b.opts.Root {
			return nil, rootGone(b.opts.Root)
		}
		return nil, nil
	}

	switch {
	case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		action := event.Created
		if mask&unix.IN_MOVED_TO != 0 {
			action = event.RenamedTo
		}
		raws := []event.Raw{{Path: path, Action: action, IsDir: isDir}}
		if isDir {
			found, err := b.dirs.AddSubtree(path)
			raws = append(raws, found...)
			if err != nil {
				return raws, err
			}
		}
		return raws, nil

	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		action := event.Deleted
		if mask&unix.IN_MOVED_FROM != 0 {
			action = event.RenamedFrom
		}
		if isDir {
			b.dirs.RemoveSubtree(path)
		}
		return []event.Raw{{Path: path, Action: action, IsDir: isDir}}, nil

	case mask&(unix.IN_MODIFY|unix.IN_ATTRIB) != 0:
		if path == watchedDir {
			// Attribute change on the directory itself.
			return nil, nil
		}
		return []event.Raw{{Path: path, Action: event.Modified, IsDir: isDir}}, nil
	}
	return nil, nil
}

// WatchCount returns the number of inotify watches held.
func (b *inotifyBackend) WatchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirs == nil {
		return 0
	}
	return b.dirs.WatchCount()
}

// Stop stops the read loop and closes the inotify fd.
func (b *inotifyBackend) Stop() error {
	if !b.shutdown() {
		return nil
	}
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
