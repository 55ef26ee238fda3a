package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// fakeBackend lets tests inject raw event groups and errors.
type fakeBackend struct {
	kind    backend.Kind
	caps    backend.Capabilities
	events  chan []event.Raw
	errors  chan error
	stopped atomic.Int32
	done    chan struct{}
}

func (f *fakeBackend) Kind() backend.Kind                 { return f.kind }
func (f *fakeBackend) Capabilities() backend.Capabilities { return f.caps }
func (f *fakeBackend) Start(context.Context) error        { return nil }
func (f *fakeBackend) Events() <-chan []event.Raw         { return f.events }
func (f *fakeBackend) Errors() <-chan error               { return f.errors }
func (f *fakeBackend) WatchCount() int                    { return 1 }

func (f *fakeBackend) Stop() error {
	if f.stopped.Add(1) == 1 {
		close(f.done)
	}
	return nil
}

// fakeFactory records every backend it builds.
type fakeFactory struct {
	mu       sync.Mutex
	caps     backend.Capabilities
	newErr   error
	backends []*fakeBackend
}

func (f *fakeFactory) New(kind backend.Kind, opts backend.Options) (backend.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	if kind == "" {
		kind = "fake"
	}
	b := &fakeBackend{
		kind:   kind,
		caps:   f.caps,
		events: make(chan []event.Raw, 16),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
	f.backends = append(f.backends, b)
	return b, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backends)
}

func (f *fakeFactory) last() *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backends[len(f.backends)-1]
}

func newTestManager(t *testing.T, caps backend.Capabilities) (*Manager, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{caps: caps}
	m := New(Config{
		Latency:    10 * time.Millisecond,
		NewBackend: factory.New,
	})
	t.Cleanup(m.Close)
	return m, factory
}

var exact = backend.Capabilities{Subscribe: true, ExactCreateDelete: true}

// testRoot creates a normalized temp directory holding the given files.
func testRoot(t *testing.T, files ...string) string {
	t.Helper()
	root, err := pathutil.NormalizeDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(f), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// collector gathers delivered batches.
type collector struct {
	batches chan []event.Event
}

func newCollector() *collector {
	return &collector{batches: make(chan []event.Event, 16)}
}

func (c *collector) callback(events []event.Event) {
	c.batches <- events
}

func (c *collector) next(t *testing.T) []event.Event {
	t.Helper()
	select {
	case b := <-c.batches:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
		return nil
	}
}

func (c *collector) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case b := <-c.batches:
		t.Fatalf("unexpected batch %v", b)
	case <-time.After(wait):
	}
}

func TestSubscribe_DeliversCoalescedBatch(t *testing.T) {
	root := testRoot(t, "existing.txt")
	m, factory := newTestManager(t, exact)
	c := newCollector()

	if _, err := m.Subscribe(t.Context(), root, c.callback, Options{}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	b := factory.last()
	created := filepath.Join(root, "new.txt")
	existing := filepath.Join(root, "existing.txt")
	b.events <- []event.Raw{
		{Path: created, Action: event.Created},
		{Path: created, Action: event.Modified},
		{Path: existing, Action: event.Modified},
	}
	b.events <- []event.Raw{{Path: existing, Action: event.Modified}}

	got := c.next(t)
	want := []event.Event{
		{Type: event.Update, Path: existing},
		{Type: event.Create, Path: created},
	}
	if !slices.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestSubscribe_CreateThenDeleteCancels(t *testing.T) {
	root := testRoot(t)
	m, factory := newTestManager(t, exact)
	c := newCollector()

	if _, err := m.Subscribe(t.Context(), root, c.callback, Options{}); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(root, "tmp")
	factory.last().events <- []event.Raw{
		{Path: tmp, Action: event.Created},
		{Path: tmp, Action: event.Deleted},
	}
	c.none(t, 100*time.Millisecond)
}

func TestSubscribe_DirectoryDeleteEnumeratesDescendants(t *testing.T) {
	root := testRoot(t, "a/b/c.txt", "a/d.txt")
	m, factory := newTestManager(t, exact)
	c := newCollector()

	if _, err := m.Subscribe(t.Context(), root, c.callback, Options{}); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(root, "a")
	factory.last().events <- []event.Raw{{Path: dir, Action: event.Deleted, IsDir: true}}

	got := c.next(t)
	want := []event.Event{
		{Type: event.Delete, Path: dir},
		{Type: event.Delete, Path: filepath.Join(dir, "b")},
		{Type: event.Delete, Path: filepath.Join(dir, "d.txt")},
		{Type: event.Delete, Path: filepath.Join(dir, "b", "c.txt")},
	}
	if !slices.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestSubscribe_SharesBackend(t *testing.T) {
	root := testRoot(t, "f.txt")
	m, factory := newTestManager(t, exact)
	c1, c2 := newCollector(), newCollector()

	if _, err := m.Subscribe(t.Context(), root, c1.callback, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Subscribe(t.Context(), root, c2.callback, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := factory.count(); got != 1 {
		t.Fatalf("backends created = %d, want 1", got)
	}

	path := filepath.Join(root, "f.txt")
	factory.last().events <- []event.Raw{{Path: path, Action: event.Modified}}

	want := []event.Event{{Type: event.Update, Path: path}}
	for i, c := range []*collector{c1, c2} {
		if got := c.next(t); !slices.Equal(got, want) {
			t.Errorf("subscriber %d batch = %v, want %v", i, got, want)
		}
	}
	// Exactly one batch each
	c1.none(t, 50*time.Millisecond)
	c2.none(t, 0)

	infos := m.Roots()
	if len(infos) != 1 || infos[0].Subscribers != 2 || infos[0].Path != root {
		t.Errorf("Roots() = %+v, want one root with 2 subscribers", infos)
	}
}

func TestSubscribe_ConcurrentCreatesOneBackend(t *testing.T) {
	root := testRoot(t)
	m, factory := newTestManager(t, exact)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Subscribe(context.Background(), root, func([]event.Event) {}, Options{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Subscribe() error = %v", err)
		}
	}
	if got := factory.count(); got != 1 {
		t.Errorf("backends created = %d, want 1", got)
	}
}

func TestSubscribe_PerSubscriptionIgnore(t *testing.T) {
	root := testRoot(t, "src/main.go", "build/out.o")
	m, factory := newTestManager(t, exact)
	all, filtered := newCollector(), newCollector()

	if _, err := m.Subscribe(t.Context(), root, all.callback, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Subscribe(t.Context(), root, filtered.callback, Options{Ignore: []string{"build"}}); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(root, "src", "main.go")
	out := filepath.Join(root, "build", "out.o")
	factory.last().events <- []event.Raw{
		{Path: src, Action: event.Modified},
		{Path: out, Action: event.Modified},
	}

	if got := all.next(t); len(got) != 2 {
		t.Errorf("unfiltered batch = %v, want 2 events", got)
	}
	want := []event.Event{{Type: event.Update, Path: src}}
	if got := filtered.next(t); !slices.Equal(got, want) {
		t.Errorf("filtered batch = %v, want %v", got, want)
	}
}

func TestSubscribe_EmptyViewNotDelivered(t *testing.T) {
	root := testRoot(t, "build/out.o")
	m, factory := newTestManager(t, exact)
	c := newCollector()

	if _, err := m.Subscribe(t.Context(), root, c.callback, Options{Ignore: []string{"build"}}); err != nil {
		t.Fatal(err)
	}
	factory.last().events <- []event.Raw{{Path: filepath.Join(root, "build", "out.o"), Action: event.Modified}}
	c.none(t, 100*time.Millisecond)
}

func TestSubscribe_BatchedFlushesImmediately(t *testing.T) {
	root := testRoot(t, "f.txt")
	factory := &fakeFactory{caps: backend.Capabilities{Subscribe: true, ExactCreateDelete: true, Batched: true}}
	m := New(Config{Latency: time.Hour, NewBackend: factory.New})
	t.Cleanup(m.Close)
	c := newCollector()

	if _, err := m.Subscribe(t.Context(), root, c.callback, Options{}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "f.txt")
	factory.last().events <- []event.Raw{{Path: path, Action: event.Modified}}

	want := []event.Event{{Type: event.Update, Path: path}}
	if got := c.next(t); !slices.Equal(got, want) {
		t.Errorf("batch = %v, want %v", got, want)
	}
}

func TestSubscribe_Errors(t *testing.T) {
	m, _ := newTestManager(t, exact)
	root := testRoot(t, "file.txt")

	tests := []struct {
		name string
		root string
		opts Options
		want error
	}{
		{"missing root", filepath.Join(root, "missing"), Options{}, event.ErrPathNotFound},
		{"root is a file", filepath.Join(root, "file.txt"), Options{}, event.ErrPathNotFound},
		{"invalid ignore", root, Options{Ignore: []string{""}}, event.ErrIgnoreRuleInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Subscribe(t.Context(), tt.root, func([]event.Event) {}, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(m.Roots()) != 0 {
		t.Errorf("failed subscriptions should not register roots, got %+v", m.Roots())
	}
}

func TestSubscribe_BackendFailureIsRetried(t *testing.T) {
	root := testRoot(t)
	m, factory := newTestManager(t, exact)

	factory.newErr = event.NewError("select backend", "x", event.ErrBackendUnavailable, nil)
	if _, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{}); !errors.Is(err, event.ErrBackendUnavailable) {
		t.Fatalf("Subscribe() error = %v, want ErrBackendUnavailable", err)
	}

	factory.mu.Lock()
	factory.newErr = nil
	factory.mu.Unlock()
	if _, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{}); err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}
}

func TestUnsubscribe_LastReleasesBackend(t *testing.T) {
	root := testRoot(t)
	m, factory := newTestManager(t, exact)

	s1, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	b := factory.last()

	s1.Unsubscribe()
	s1.Unsubscribe()
	if b.stopped.Load() != 0 {
		t.Fatal("backend stopped while a subscription remains")
	}

	s2.Unsubscribe()
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("backend was not stopped after the last unsubscribe")
	}
	if len(m.Roots()) != 0 {
		t.Errorf("Roots() = %+v, want none", m.Roots())
	}

	// A new subscription starts a fresh backend
	if _, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := factory.count(); got != 2 {
		t.Errorf("backends created = %d, want 2", got)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	root := testRoot(t, "f.txt")
	m, factory := newTestManager(t, exact)
	kept, dropped := newCollector(), newCollector()

	if _, err := m.Subscribe(t.Context(), root, kept.callback, Options{}); err != nil {
		t.Fatal(err)
	}
	sub, err := m.Subscribe(t.Context(), root, dropped.callback, Options{})
	if err != nil {
		t.Fatal(err)
	}
	sub.Unsubscribe()

	factory.last().events <- []event.Raw{{Path: filepath.Join(root, "f.txt"), Action: event.Modified}}
	kept.next(t)
	dropped.none(t, 0)
}

func TestUnsubscribe_FromCallback(t *testing.T) {
	root := testRoot(t, "f.txt")
	m, factory := newTestManager(t, exact)

	var sub *Subscription
	delivered := make(chan struct{})
	var err error
	sub, err = m.Subscribe(t.Context(), root, func([]event.Event) {
		sub.Unsubscribe()
		close(delivered)
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	b := factory.last()
	b.events <- []event.Raw{{Path: filepath.Join(root, "f.txt"), Action: event.Modified}}
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not called")
	}
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("backend was not stopped")
	}
}

func TestMidStreamError(t *testing.T) {
	root := testRoot(t)
	m, factory := newTestManager(t, exact)

	errCh := make(chan error, 1)
	_, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{
		OnError: func(err error) { errCh <- err },
	})
	if err != nil {
		t.Fatal(err)
	}

	b := factory.last()
	b.errors <- event.NewError("watch", root, event.ErrPathNotFound, errors.New("watch root was removed"))

	select {
	case err := <-errCh:
		if !errors.Is(err, event.ErrPathNotFound) {
			t.Errorf("OnError got %v, want ErrPathNotFound", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError was not called")
	}
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("backend was not stopped after failure")
	}
	if len(m.Roots()) != 0 {
		t.Errorf("failed root should be removed, got %+v", m.Roots())
	}
}

func TestClose(t *testing.T) {
	root := testRoot(t)
	factory := &fakeFactory{caps: exact}
	m := New(Config{NewBackend: factory.New})

	if _, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{}); err != nil {
		t.Fatal(err)
	}
	m.Close()

	if factory.last().stopped.Load() == 0 {
		t.Errorf("Close should stop backends")
	}
	if _, err := m.Subscribe(t.Context(), root, func([]event.Event) {}, Options{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close error = %v, want ErrClosed", err)
	}
	m.Close()
}
