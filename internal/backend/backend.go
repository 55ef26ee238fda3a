// Package backend adapts native filesystem notification facilities to a
// single interface producing groups of raw events.
package backend

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// Kind names a backend variant.
type Kind string

const (
	Inotify    Kind = "inotify"
	FSEvents   Kind = "fs-events"
	Windows    Kind = "windows"
	Kqueue     Kind = "kqueue"
	Daemon     Kind = "daemon"
	BruteForce Kind = "brute-force"
)

// Kinds lists every variant, whether or not this platform provides it.
var Kinds = []Kind{Inotify, FSEvents, Windows, Kqueue, Daemon, BruteForce}

// ParseKind validates a backend name. The empty string selects the
// platform default.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return "", nil
	}
	k := Kind(s)
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("unknown backend %q", s)
	}
	return k, nil
}

// Capabilities describes what a variant can do.
type Capabilities struct {
	// Subscribe is false for variants that only support snapshots.
	Subscribe bool
	// Recursive is true when the native facility watches whole trees.
	Recursive bool
	// ExactCreateDelete is true when a create and a delete of the same path
	// are always reported as two separate actions.
	ExactCreateDelete bool
	// Batched is true when each event group is a complete batch, so the
	// consumer can flush without waiting for a latency window.
	Batched bool
}

// Backend is one native watch on one root. Events and Errors are never
// closed; consumers stop reading once they call Stop.
type Backend interface {
	Kind() Kind
	Capabilities() Capabilities
	// Start establishes the watch before returning. Failures are returned
	// as *event.WatchError values.
	Start(ctx context.Context) error
	// Events delivers raw events grouped by native read.
	Events() <-chan []event.Raw
	// Errors delivers failures that end the watch.
	Errors() <-chan error
	Stop() error
	// WatchCount is the number of native watch handles held.
	WatchCount() int
}

// Options configures a backend instance.
type Options struct {
	// Root is the normalized directory to watch.
	Root string
	// Fs is used for directory listing when recursion is emulated.
	Fs afero.Fs
	// DaemonSocket is the socket of the watch daemon; empty selects the
	// platform default.
	DaemonSocket string
	// PollInterval is how often the daemon variant asks for changes.
	PollInterval time.Duration
}

// Factory builds an unstarted backend.
type Factory func(opts Options) (Backend, error)

type registration struct {
	caps    Capabilities
	factory Factory
}

var registry = map[Kind]registration{}

func register(kind Kind, caps Capabilities, factory Factory) {
	registry[kind] = registration{caps: caps, factory: factory}
}

func init() {
	register(Daemon, Capabilities{Subscribe: true, Recursive: true, ExactCreateDelete: true, Batched: true}, newDaemonBackend)
	register(BruteForce, Capabilities{}, newBruteForce)
}

// Available lists the variants registered on this platform.
func Available() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if _, ok := registry[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// CapabilitiesOf returns the capabilities of a registered variant.
func CapabilitiesOf(kind Kind) (Capabilities, bool) {
	r, ok := registry[kind]
	return r.caps, ok
}

// DefaultOrder is the preference order used when no variant is configured.
func DefaultOrder(goos string) []Kind {
	switch goos {
	case "linux", "android":
		return []Kind{Inotify, Daemon}
	case "darwin", "ios":
		return []Kind{FSEvents, Kqueue, Daemon}
	case "windows":
		return []Kind{Windows, Daemon}
	case "freebsd", "openbsd", "netbsd", "dragonfly":
		return []Kind{Kqueue, Daemon}
	default:
		return []Kind{Daemon}
	}
}

// Resolve picks the variant to use. An explicit kind must be registered on
// this platform; the empty kind selects the first registered variant of
// DefaultOrder.
func Resolve(kind Kind) (Kind, error) {
	if kind != "" {
		if _, ok := registry[kind]; !ok {
			return "", event.NewError("select backend", string(kind), event.ErrBackendUnavailable,
				fmt.Errorf("not supported on %s", runtime.GOOS))
		}
		return kind, nil
	}
	for _, k := range DefaultOrder(runtime.GOOS) {
		if _, ok := registry[k]; ok {
			return k, nil
		}
	}
	return "", event.NewError("select backend", "", event.ErrBackendUnavailable,
		fmt.Errorf("no backend available on %s", runtime.GOOS))
}

// New builds an unstarted backend for kind, resolved as by Resolve.
func New(kind Kind, opts Options) (Backend, error) {
	k, err := Resolve(kind)
	if err != nil {
		return nil, err
	}
	r := registry[k]
	if !r.caps.Subscribe {
		return nil, event.NewError("select backend", string(k), event.ErrBackendUnavailable,
			fmt.Errorf("%s does not support subscriptions", k))
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return r.factory(opts)
}

// base carries the channel plumbing shared by every variant.
type base struct {
	kind     Kind
	events   chan []event.Raw
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newBase(kind Kind) base {
	return base{
		kind:   kind,
		events: make(chan []event.Raw, 64),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (b *base) Kind() Kind {
	return b.kind
}

func (b *base) Capabilities() Capabilities {
	caps, _ := CapabilitiesOf(b.kind)
	return caps
}

func (b *base) Events() <-chan []event.Raw {
	return b.events
}

func (b *base) Errors() <-chan error {
	return b.errors
}

// emit sends a group of raw events. It returns false once the backend is
// stopping.
func (b *base) emit(raws []event.Raw) bool {
	if len(raws) == 0 {
		return true
	}
	select {
	case b.events <- raws:
		return true
	case <-b.done:
		return false
	}
}

// fail reports a terminal error. Only the first one is kept.
func (b *base) fail(err error) {
	select {
	case b.errors <- err:
	default:
	}
}

// shutdown closes done and waits for the backend goroutines. It reports
// whether this call did the work.
func (b *base) shutdown() bool {
	first := false
	b.stopOnce.Do(func() {
		first = true
		close(b.done)
		b.wg.Wait()
	})
	return first
}
