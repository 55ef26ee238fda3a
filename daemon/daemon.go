package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/config"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/prettymuchbryce/treewatch/internal/journal"
	"github.com/prettymuchbryce/treewatch/internal/state"
	"github.com/prettymuchbryce/treewatch/internal/watcher"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Controller manages the daemon lifecycle and implements ipc.Handler.
// IPC connections are served concurrently, so state is guarded by mu.
// Subscription callbacks never take mu.
type Controller struct {
	configPath string
	fs         afero.Fs
	state      *state.State

	mu       sync.Mutex
	cfg      *config.Config
	instance string
	manager  *watcher.Manager
	watches  map[string]*rootWatch
}

// rootWatch is one watched root and the journal its subscription feeds.
type rootWatch struct {
	sub     *watcher.Subscription
	journal *journal.Journal
}

// NewController creates a new daemon controller.
func NewController(configPath string, fs afero.Fs, st *state.State, cfg *config.Config) *Controller {
	return &Controller{
		configPath: configPath,
		fs:         fs,
		state:      st,
		cfg:        cfg,
		watches:    make(map[string]*rootWatch),
	}
}

// StartWatcher creates a new subscription manager. Every start gets a new
// instance id, so clocks issued before are rejected.
func (c *Controller) StartWatcher() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	if c.manager != nil {
		return nil
	}

	// The daemon must watch natively; selecting itself would recurse.
	kind := c.cfg.BackendKind()
	if kind == backend.Daemon {
		kind = ""
	}
	resolved, err := nativeBackend(kind)
	if err != nil {
		return err
	}

	mcfg := c.cfg.ManagerConfig(c.fs)
	mcfg.Backend = resolved
	c.manager = watcher.New(mcfg)
	c.instance = uuid.NewString()
	c.watches = make(map[string]*rootWatch)
	slog.Info("watcher started", "instance", c.instance, "backend", resolved)
	return nil
}

// nativeBackend resolves kind to a variant other than the daemon itself.
func nativeBackend(kind backend.Kind) (backend.Kind, error) {
	if kind != "" {
		return backend.Resolve(kind)
	}
	for _, k := range backend.DefaultOrder(runtime.GOOS) {
		if k == backend.Daemon {
			continue
		}
		if _, ok := backend.CapabilitiesOf(k); ok {
			return k, nil
		}
	}
	return "", event.NewError("start daemon", "", event.ErrBackendUnavailable,
		fmt.Errorf("no native backend available on %s", runtime.GOOS))
}

// StopWatcher stops the current manager and waits for it to finish. It
// returns the roots that were being watched.
func (c *Controller) StopWatcher() []string {
	c.mu.Lock()
	m := c.manager
	roots := make([]string, 0, len(c.watches))
	for root := range c.watches {
		roots = append(roots, root)
	}
	c.manager = nil
	c.watches = make(map[string]*rootWatch)
	c.mu.Unlock()

	// Close outside the lock: a failing root's OnError takes mu.
	if m != nil {
		m.Close()
	}
	return roots
}

// Run loads config and runs the daemon until context is cancelled.
func Run(ctx context.Context, configPath string, fs afero.Fs, setupLogging func(string)) error {
	cfg, err := config.LoadWithFs(configPath, fs)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogging(cfg.Logging.Level)

	// Load persistent state
	st, err := state.Load(fs)
	if err != nil {
		slog.Warn("failed to load state, starting fresh", "error", err)
		st, _ = state.LoadFrom(fs, "")
	}

	slog.Info("loaded config", "path", configPath, "backend", cfg.Watch.Backend, "latency", cfg.Watch.Latency)

	// Create daemon controller
	controller := NewController(configPath, fs, st, cfg)

	// Start the watcher
	if err := controller.StartWatcher(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	// Start IPC server
	ipcServer, err := ipc.NewServer(controller, cfg.Daemon.Socket)
	if err != nil {
		controller.StopWatcher()
		return fmt.Errorf("failed to create IPC server: %w", err)
	}

	// Notify systemd that we're ready (no-op on non-systemd systems)
	daemon.SdNotify(false, daemon.SdNotifyReady)
	slog.Info("daemon ready", "socket", ipcServer.Addr())

	// Run IPC server (blocks until context cancelled)
	if err := ipcServer.Serve(ctx); err != nil {
		slog.Error("IPC server error", "error", err)
	}

	// Notify systemd that we're stopping (no-op on non-systemd systems)
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Clean up watcher
	controller.StopWatcher()

	return nil
}
