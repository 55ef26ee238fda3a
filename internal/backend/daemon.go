package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// defaultPollInterval is used when Options.PollInterval is unset.
const defaultPollInterval = 100 * time.Millisecond

// daemonBackend delegates watching to the treewatch daemon and polls it for
// changes. Every poll is one complete batch.
type daemonBackend struct {
	base
	opts Options

	client *ipc.Client

	mu    sync.Mutex
	clock string
}

func newDaemonBackend(opts Options) (Backend, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &daemonBackend{base: newBase(Daemon), opts: opts}, nil
}

// Start connects to the daemon and asks it to watch the root.
func (b *daemonBackend) Start(ctx context.Context) error {
	client, err := ipc.ConnectTo(b.opts.DaemonSocket)
	if err != nil {
		return err
	}
	result, err := client.Watch(b.opts.Root)
	if err != nil {
		client.Close()
		return err
	}
	b.client = client
	b.clock = result.Clock
	slog.Debug("daemon watch started", "root", b.opts.Root, "clock", result.Clock)

	b.wg.Add(1)
	go b.pollLoop(ctx)
	return nil
}

func (b *daemonBackend) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		clock := b.clock
		b.mu.Unlock()

		result, err := b.client.Since(b.opts.Root, clock)
		if err != nil {
			b.fail(err)
			return
		}

		b.mu.Lock()
		b.clock = result.Clock
		b.mu.Unlock()

		if !b.emit(ChangesToRaw(b.opts.Root, result.Files)) {
			return
		}
	}
}

// WatchCount is one: the daemon holds the native watches.
func (b *daemonBackend) WatchCount() int {
	if b.client == nil {
		return 0
	}
	return 1
}

// Stop stops polling and disconnects. The daemon keeps its watch so other
// clients and snapshots can use the same clock.
func (b *daemonBackend) Stop() error {
	if !b.shutdown() {
		return nil
	}
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// ChangesToRaw converts daemon file changes into raw events. A path that is
// new and exists was created, one that exists was modified, and one that no
// longer exists was deleted. Directories are never reported as modified.
func ChangesToRaw(root string, files []ipc.FileChange) []event.Raw {
	var raws []event.Raw
	for _, f := range files {
		path := pathutil.Join(root, f.Name)
		switch {
		case f.Exists && f.New:
			raws = append(raws, event.Raw{Path: path, Action: event.Created, IsDir: f.Dir})
		case f.Exists && !f.Dir:
			raws = append(raws, event.Raw{Path: path, Action: event.Modified})
		case !f.Exists:
			raws = append(raws, event.Raw{Path: path, Action: event.Deleted, IsDir: f.Dir})
		}
	}
	return raws
}

// DaemonClock asks the daemon listening on sockPath to watch root and
// returns the clock to store in a snapshot.
func DaemonClock(sockPath, root string) (string, error) {
	client, err := ipc.ConnectTo(sockPath)
	if err != nil {
		return "", err
	}
	defer client.Close()

	result, err := client.Watch(root)
	if err != nil {
		return "", err
	}
	return result.Clock, nil
}

// DaemonSince returns the normalized changes under root after clock.
func DaemonSince(sockPath, root, clock string) ([]event.Event, error) {
	client, err := ipc.ConnectTo(sockPath)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	result, err := client.Since(root, clock)
	if err != nil {
		return nil, err
	}
	return ChangesToEvents(root, result.Files), nil
}

// ChangesToEvents maps daemon file changes onto normalized events, in the
// same order a snapshot diff would produce.
func ChangesToEvents(root string, files []ipc.FileChange) []event.Event {
	var events []event.Event
	for _, f := range files {
		path := pathutil.Join(root, f.Name)
		switch {
		case f.Exists && f.New:
			events = append(events, event.Event{Type: event.Create, Path: path})
		case f.Exists && !f.Dir:
			events = append(events, event.Event{Type: event.Update, Path: path})
		case !f.Exists && !f.New:
			events = append(events, event.Event{Type: event.Delete, Path: path})
		}
	}
	event.Sort(events)
	return events
}
