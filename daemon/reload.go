package daemon

import (
	"fmt"
	"log/slog"

	"github.com/prettymuchbryce/treewatch/internal/config"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
)

// HandleReload reloads the configuration file. A running watcher is
// restarted under a new instance id and its roots are watched again.
func (c *Controller) HandleReload() (ipc.ReloadResult, error) {
	cfg, err := config.LoadWithFs(c.configPath, c.fs)
	if err != nil {
		return ipc.ReloadResult{}, fmt.Errorf("failed to load config: %w", err)
	}

	c.mu.Lock()
	wasEnabled := c.manager != nil
	c.cfg = cfg
	c.mu.Unlock()

	// Restart watcher with new config if it was running
	if wasEnabled {
		roots := c.StopWatcher()
		if err := c.StartWatcher(); err != nil {
			return ipc.ReloadResult{}, fmt.Errorf("failed to restart watcher: %w", err)
		}
		c.rewatch(roots)
	}

	slog.Info("reloaded config", "path", c.configPath, "backend", cfg.Watch.Backend, "latency", cfg.Watch.Latency)
	return ipc.ReloadResult{ConfigPath: c.configPath}, nil
}

// rewatch watches roots again after a restart. Failures are logged; the
// root is simply no longer watched.
func (c *Controller) rewatch(roots []string) {
	for _, root := range roots {
		if _, err := c.HandleWatch(root); err != nil {
			slog.Warn("failed to rewatch root", "root", root, "error", err)
		}
	}
}
