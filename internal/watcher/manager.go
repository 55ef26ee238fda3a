// Package watcher maintains the registry of watched roots and delivers
// coalesced events to their subscribers.
package watcher

import (
	"context"
	"errors"
	iofs "io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/coalesce"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ignore"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
	"github.com/prettymuchbryce/treewatch/internal/snapshot"
)

// DefaultLatency is the coalescing window used when Config.Latency is unset.
const DefaultLatency = 50 * time.Millisecond

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("watcher closed")

// Callback receives one batch of events. It runs on the root's goroutine, so
// batches for one root never overlap.
type Callback func(events []event.Event)

// ErrorCallback receives the error that ended a subscription's root.
type ErrorCallback func(err error)

// Config configures a Manager.
type Config struct {
	// Latency is how long raw events are collected before a flush.
	Latency time.Duration
	// Fs is used for index walks. Defaults to the OS filesystem.
	Fs afero.Fs
	// Backend is the variant used when a subscription names none. Empty
	// selects the platform default order.
	Backend backend.Kind
	// BackendOptions carries daemon settings to the backends. Root and Fs
	// are filled in per root.
	BackendOptions backend.Options
	// NewBackend builds backends. Defaults to backend.New.
	NewBackend func(kind backend.Kind, opts backend.Options) (backend.Backend, error)
}

// Options configures one subscription.
type Options struct {
	// Ignore lists paths or glob patterns excluded from this subscription.
	Ignore []string
	// Backend selects the variant when this subscription creates the root.
	Backend backend.Kind
	// OnError receives mid-stream failures. When nil they are only logged.
	OnError ErrorCallback
}

// RootInfo describes a watched root.
type RootInfo struct {
	Path        string
	Backend     backend.Kind
	Subscribers int
	WatchCount  int
	Entries     int
}

// Manager is the registry of watched roots. Each distinct root has exactly
// one backend, shared by all of its subscriptions.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	roots  map[string]*watchRoot
	closed bool

	wg sync.WaitGroup
}

// watchRoot is published in the registry before it is started, so that
// concurrent subscribers wait on the same creation. ready is closed once
// creation finished; err is only valid after that.
type watchRoot struct {
	path  string
	ready chan struct{}
	err   error

	// Guarded by Manager.mu.
	refCount int
	subs     map[*Subscription]struct{}

	backend   backend.Backend
	index     *snapshot.Index
	coalescer *coalesce.Coalescer
	ctx       context.Context
	cancel    context.CancelFunc
}

// Subscription is one subscriber's view of a root.
type Subscription struct {
	m        *Manager
	root     *watchRoot
	filter   *ignore.Filter
	callback Callback
	onError  ErrorCallback

	closed atomic.Bool
	once   sync.Once
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.Latency <= 0 {
		cfg.Latency = DefaultLatency
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.NewBackend == nil {
		cfg.NewBackend = backend.New
	}
	return &Manager{
		cfg:   cfg,
		roots: make(map[string]*watchRoot),
	}
}

// Subscribe starts delivering the changes under root to callback. The first
// subscription to a root starts its backend and indexes the tree before
// returning; later ones share both. ctx bounds the setup only.
func (m *Manager) Subscribe(ctx context.Context, root string, callback Callback, opts Options) (*Subscription, error) {
	path, err := pathutil.NormalizeDir(root)
	if err != nil {
		return nil, rootError(root, err)
	}
	filter, err := ignore.New(path, opts.Ignore)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		m:        m,
		filter:   filter,
		callback: callback,
		onError:  opts.OnError,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	r, exists := m.roots[path]
	if !exists {
		r = &watchRoot{
			path:  path,
			ready: make(chan struct{}),
			subs:  make(map[*Subscription]struct{}),
		}
		m.roots[path] = r
	}
	r.refCount++
	r.subs[sub] = struct{}{}
	sub.root = r
	m.mu.Unlock()

	if !exists {
		kind := opts.Backend
		if kind == "" {
			kind = m.cfg.Backend
		}
		m.create(ctx, r, kind)
	}

	select {
	case <-r.ready:
	case <-ctx.Done():
		sub.Unsubscribe()
		return nil, ctx.Err()
	}
	if r.err != nil {
		sub.Unsubscribe()
		return nil, r.err
	}
	return sub, nil
}

// create starts the backend and indexes the tree, then publishes the
// outcome by closing r.ready.
func (m *Manager) create(ctx context.Context, r *watchRoot, kind backend.Kind) {
	err := m.start(ctx, r, kind)
	if err == nil {
		m.mu.Lock()
		if m.closed {
			err = ErrClosed
		} else {
			m.wg.Add(1)
			go m.run(r)
		}
		m.mu.Unlock()
		if err != nil {
			r.backend.Stop()
			r.cancel()
		}
	}

	if err != nil {
		m.mu.Lock()
		if m.roots[r.path] == r {
			delete(m.roots, r.path)
		}
		m.mu.Unlock()
		r.err = err
	}
	close(r.ready)
}

func (m *Manager) start(ctx context.Context, r *watchRoot, kind backend.Kind) error {
	opts := m.cfg.BackendOptions
	opts.Root = r.path
	opts.Fs = m.cfg.Fs

	b, err := m.cfg.NewBackend(kind, opts)
	if err != nil {
		return err
	}

	// The backend outlives the subscriber's ctx.
	rootCtx, cancel := context.WithCancel(context.Background())
	if err := b.Start(rootCtx); err != nil {
		cancel()
		return startError(r.path, err)
	}

	snap, err := snapshot.Walk(ctx, m.cfg.Fs, r.path, nil)
	if err != nil {
		b.Stop()
		cancel()
		return err
	}
	snap.Backend = string(b.Kind())

	r.backend = b
	r.ctx = rootCtx
	r.cancel = cancel
	r.index = snapshot.NewIndex(m.cfg.Fs, snap)
	r.coalescer = coalesce.New(coalesce.Options{
		Tree:              r.index,
		ExactCreateDelete: b.Capabilities().ExactCreateDelete,
		Resolve:           r.index.Resolve,
	})
	slog.Debug("watch root started", "root", r.path, "backend", b.Kind(), "entries", snap.Len())
	return nil
}

// run drains the backend in arrival order until the root is cancelled or the
// backend fails.
func (m *Manager) run(r *watchRoot) {
	defer m.wg.Done()
	defer r.cancel()
	defer r.backend.Stop()

	ctx := r.ctx
	batched := r.backend.Capabilities().Batched
	flushCh := make(chan struct{})
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case raws := <-r.backend.Events():
			r.coalescer.Add(raws...)
			if batched {
				m.flush(r)
				continue
			}
			if timer == nil {
				// The window opens with the first group after a flush.
				timer = time.AfterFunc(m.cfg.Latency, func() {
					select {
					case flushCh <- struct{}{}:
					case <-ctx.Done():
					}
				})
			}

		case <-flushCh:
			timer = nil
			m.flush(r)

		case err := <-r.backend.Errors():
			m.flush(r)
			m.fail(r, err)
			return
		}
	}
}

// flush ends the current window: the index is brought up to date, then
// every live subscription receives its filtered view of the batch.
func (m *Manager) flush(r *watchRoot) {
	events := r.coalescer.Flush()
	if len(events) == 0 {
		return
	}
	r.index.Apply(events)
	slog.Debug("flushing events", "root", r.path, "events", len(events))

	for _, sub := range m.subscribers(r) {
		if sub.closed.Load() {
			continue
		}
		view := sub.filter.Apply(events)
		if len(view) == 0 {
			continue
		}
		sub.callback(view)
	}
}

// fail tears r down after a mid-stream backend error.
func (m *Manager) fail(r *watchRoot, err error) {
	m.mu.Lock()
	if m.roots[r.path] == r {
		delete(m.roots, r.path)
	}
	m.mu.Unlock()

	slog.Error("watch root failed", "root", r.path, "backend", r.backend.Kind(), "error", err)
	for _, sub := range m.subscribers(r) {
		if sub.closed.Load() || sub.onError == nil {
			continue
		}
		sub.onError(err)
	}
}

func (m *Manager) subscribers(r *watchRoot) []*Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]*Subscription, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Roots reports the roots currently being watched.
func (m *Manager) Roots() []RootInfo {
	m.mu.Lock()
	roots := make([]*watchRoot, 0, len(m.roots))
	counts := make(map[*watchRoot]int, len(m.roots))
	for _, r := range m.roots {
		roots = append(roots, r)
		counts[r] = r.refCount
	}
	m.mu.Unlock()

	var infos []RootInfo
	for _, r := range roots {
		select {
		case <-r.ready:
		default:
			continue
		}
		if r.err != nil {
			continue
		}
		infos = append(infos, RootInfo{
			Path:        r.path,
			Backend:     r.backend.Kind(),
			Subscribers: counts[r],
			WatchCount:  r.backend.WatchCount(),
			Entries:     r.index.Len(),
		})
	}
	return infos
}

// Close stops every root and waits for their goroutines. Subscriptions
// receive no further batches.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	roots := make([]*watchRoot, 0, len(m.roots))
	for _, r := range m.roots {
		roots = append(roots, r)
		for sub := range r.subs {
			sub.closed.Store(true)
		}
	}
	m.roots = make(map[string]*watchRoot)
	m.mu.Unlock()

	for _, r := range roots {
		<-r.ready
		if r.err == nil {
			r.cancel()
		}
	}
	m.wg.Wait()
}

// Root returns the normalized root this subscription watches.
func (s *Subscription) Root() string {
	return s.root.path
}

// Backend returns the variant serving this subscription.
func (s *Subscription) Backend() backend.Kind {
	if s.root.backend == nil {
		return ""
	}
	return s.root.backend.Kind()
}

// Unsubscribe stops delivery to this subscription. It is idempotent and may
// be called from within the callback. A batch already being delivered may
// still complete; no new one starts after Unsubscribe returns. The last
// subscription of a root stops its backend.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)

		m, r := s.m, s.root
		m.mu.Lock()
		delete(r.subs, s)
		r.refCount--
		last := r.refCount == 0
		if last && m.roots[r.path] == r {
			delete(m.roots, r.path)
		}
		m.mu.Unlock()

		if last {
			select {
			case <-r.ready:
				if r.err == nil {
					r.cancel()
				}
			default:
				// The creating subscription holds a reference until
				// ready is closed, so the root cannot be running yet.
			}
			slog.Debug("watch root released", "root", r.path)
		}
	})
}

// rootError classifies a failure to resolve a subscription root.
func rootError(root string, err error) error {
	switch {
	case errors.Is(err, iofs.ErrPermission):
		return event.NewError("subscribe", root, event.ErrPermissionDenied, err)
	default:
		return event.NewError("subscribe", root, event.ErrPathNotFound, err)
	}
}

// startError makes sure a start failure carries a kind.
func startError(root string, err error) error {
	var we *event.WatchError
	if errors.As(err, &we) {
		return err
	}
	return event.NewError("subscribe", root, event.ErrBackendUnavailable, err)
}
