//go:build !windows

package ipc

import (
	"net"
	"os"
	"time"
)

// listen creates a Unix domain socket only the current user can connect to.
// Journals expose every path under a watched root.
func listen(path string) (net.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// dial connects to the IPC server over a Unix domain socket.
func dial(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}
