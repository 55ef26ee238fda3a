// Package treewatch watches directory trees and reports a minimal, ordered
// list of create, update and delete events per path.
//
// Live changes are delivered through Subscribe. WriteSnapshot and
// GetEventsSince answer "what changed since then" across process restarts.
package treewatch

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/watcher"
)

// Event is one normalized change.
type Event = event.Event

// EventType is the kind of an Event.
type EventType = event.Type

const (
	Create = event.Create
	Update = event.Update
	Delete = event.Delete
)

// Backend names a watch implementation.
type Backend = backend.Kind

const (
	Inotify    = backend.Inotify
	FSEvents   = backend.FSEvents
	Windows    = backend.Windows
	Kqueue     = backend.Kqueue
	Daemon     = backend.Daemon
	BruteForce = backend.BruteForce
)

// Error kinds, matched with errors.Is.
var (
	ErrBackendUnavailable = event.ErrBackendUnavailable
	ErrWatchLimitExceeded = event.ErrWatchLimitExceeded
	ErrPathNotFound       = event.ErrPathNotFound
	ErrPermissionDenied   = event.ErrPermissionDenied
	ErrSnapshotCorrupt    = event.ErrSnapshotCorrupt
	ErrIgnoreRuleInvalid  = event.ErrIgnoreRuleInvalid
	ErrClosed             = watcher.ErrClosed

	// ErrEventsLost accompanies ErrWatchLimitExceeded when a native event
	// queue overflowed.
	ErrEventsLost = event.ErrEventsLost
)

// WatchError carries the failed operation and path along with its kind.
type WatchError = event.WatchError

// Callback receives event batches. Calls for one root never overlap.
type Callback = watcher.Callback

// Options configures a subscription.
type Options = watcher.Options

// Subscription is a live registration. Call Unsubscribe to release it.
type Subscription = watcher.Subscription

// Config configures a Watcher. The zero value is usable.
type Config struct {
	// Latency is the coalescing window. Defaults to 50ms.
	Latency time.Duration
	// Backend is used when a call names none. Empty selects the platform
	// default.
	Backend Backend
	// Fs is the filesystem walked for snapshots. Defaults to the OS.
	Fs afero.Fs
	// DaemonSocket is the socket of the treewatch daemon. Empty uses the
	// platform default.
	DaemonSocket string
	// PollInterval is how often the daemon backend polls for changes.
	PollInterval time.Duration
}

// Watcher owns a set of watched roots.
type Watcher struct {
	cfg     Config
	fs      afero.Fs
	manager *watcher.Manager
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	if cfg.Latency <= 0 {
		cfg.Latency = watcher.DefaultLatency
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	return &Watcher{
		cfg: cfg,
		fs:  cfg.Fs,
		manager: watcher.New(watcher.Config{
			Latency: cfg.Latency,
			Fs:      cfg.Fs,
			Backend: cfg.Backend,
			BackendOptions: backend.Options{
				DaemonSocket: cfg.DaemonSocket,
				PollInterval: cfg.PollInterval,
			},
		}),
	}
}

// Subscribe starts delivering changes below root to callback. Subscribers
// of the same root share one native watch.
func (w *Watcher) Subscribe(ctx context.Context, root string, callback Callback, opts Options) (*Subscription, error) {
	return w.manager.Subscribe(ctx, root, callback, opts)
}

// Unsubscribe releases sub. It is safe to call more than once.
func (w *Watcher) Unsubscribe(sub *Subscription) {
	sub.Unsubscribe()
}

// Close stops every root and waits for in-flight deliveries.
func (w *Watcher) Close() {
	w.manager.Close()
}

var defaultWatcher = sync.OnceValue(func() *Watcher {
	return New(Config{})
})

// Subscribe subscribes with the process-wide default Watcher.
func Subscribe(ctx context.Context, root string, callback Callback, opts Options) (*Subscription, error) {
	return defaultWatcher().Subscribe(ctx, root, callback, opts)
}

// Unsubscribe releases a subscription made with Subscribe.
func Unsubscribe(sub *Subscription) {
	sub.Unsubscribe()
}

// WriteSnapshot records the state of root with the default Watcher.
func WriteSnapshot(ctx context.Context, root, snapshotPath string, opts SnapshotOptions) error {
	return defaultWatcher().WriteSnapshot(ctx, root, snapshotPath, opts)
}

// GetEventsSince reports changes since WriteSnapshot with the default Watcher.
func GetEventsSince(ctx context.Context, root, snapshotPath string, opts SnapshotOptions) ([]Event, error) {
	return defaultWatcher().GetEventsSince(ctx, root, snapshotPath, opts)
}
