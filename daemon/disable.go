package daemon

import "log/slog"

// HandleDisable stops the watcher if running. Outstanding clocks become
// invalid.
func (c *Controller) HandleDisable() {
	if roots := c.StopWatcher(); len(roots) > 0 {
		slog.Info("dropped watched roots", "count", len(roots))
	}
	slog.Info("daemon disabled")
}
