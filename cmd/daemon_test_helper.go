//go:build integration

package cmd

import (
	"context"

	"github.com/prettymuchbryce/treewatch/daemon"
	"github.com/spf13/afero"
)

// RunDaemon is a test helper that wraps daemon.Run with proper logging setup.
func RunDaemon(ctx context.Context, configPath string, fs afero.Fs) error {
	return daemon.Run(ctx, configPath, fs, SetupLogging)
}
