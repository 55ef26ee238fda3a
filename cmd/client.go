package cmd

import (
	"fmt"

	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/spf13/cobra"
)

var socketPath string

// addSocketFlag registers --socket on a command that talks to the daemon.
func addSocketFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&socketPath, "socket", "", "daemon socket (default: platform socket path)")
}

// connect dials the daemon. A daemon that is not running is reported on
// stdout rather than as a failure, so scripts can poll status.
func connect() (*ipc.Client, bool) {
	client, err := ipc.ConnectTo(socketPath)
	if err != nil {
		fmt.Println("🔴 treewatch daemon is not running")
		return nil, false
	}
	return client, true
}
