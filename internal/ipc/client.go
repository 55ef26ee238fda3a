package ipc

import (
	"errors"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// dialTimeout bounds how long connecting to the daemon may take.
const dialTimeout = 2 * time.Second

// Client connects to the daemon via JSON-RPC over a Unix socket.
type Client struct {
	rpc *rpc.Client
}

// Connect establishes a connection to the daemon on the default socket.
// Returns an error if the daemon is not running.
func Connect() (*Client, error) {
	return ConnectTo("")
}

// ConnectTo establishes a connection to the daemon listening on sockPath.
// An empty sockPath selects the default socket. Failing to reach the daemon
// is ErrBackendUnavailable.
func ConnectTo(sockPath string) (*Client, error) {
	if sockPath == "" {
		var err error
		if sockPath, err = SocketPath(); err != nil {
			return nil, err
		}
	}
	conn, err := dial(sockPath, dialTimeout)
	if err != nil {
		return nil, event.NewError("connect", sockPath, event.ErrBackendUnavailable, err)
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Status queries the daemon for its current status.
func (c *Client) Status() (*StatusData, error) {
	var status StatusData
	if err := c.rpc.Call("Daemon.Status", &Empty{}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Reload tells the daemon to reload its configuration.
func (c *Client) Reload() (*ReloadResult, error) {
	var result ReloadResult
	if err := c.rpc.Call("Daemon.Reload", &Empty{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Enable tells the daemon to resume watching.
func (c *Client) Enable() error {
	return c.rpc.Call("Daemon.Enable", &Empty{}, &Empty{})
}

// Disable tells the daemon to stop watching. Clocks issued before are
// invalidated.
func (c *Client) Disable() error {
	return c.rpc.Call("Daemon.Disable", &Empty{}, &Empty{})
}

// Watch asks the daemon to watch root and returns its current clock.
func (c *Client) Watch(root string) (*WatchResult, error) {
	var result WatchResult
	if err := c.rpc.Call("Daemon.Watch", &RootArgs{Root: root}, &result); err != nil {
		return nil, remoteError("watch", root, err)
	}
	return &result, nil
}

// Clock returns the current clock of a watched root.
func (c *Client) Clock(root string) (*WatchResult, error) {
	var result WatchResult
	if err := c.rpc.Call("Daemon.Clock", &RootArgs{Root: root}, &result); err != nil {
		return nil, remoteError("clock", root, err)
	}
	return &result, nil
}

// Since returns the changes under root after clock.
func (c *Client) Since(root, clock string) (*SinceResult, error) {
	var result SinceResult
	if err := c.rpc.Call("Daemon.Since", &SinceArgs{Root: root, Clock: clock}, &result); err != nil {
		return nil, remoteError("since", root, err)
	}
	return &result, nil
}

// Unwatch asks the daemon to stop watching root.
func (c *Client) Unwatch(root string) error {
	if err := c.rpc.Call("Daemon.Unwatch", &RootArgs{Root: root}, &Empty{}); err != nil {
		return remoteError("unwatch", root, err)
	}
	return nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	return c.rpc.Close()
}

var remoteKinds = []error{
	event.ErrBackendUnavailable,
	event.ErrWatchLimitExceeded,
	event.ErrPathNotFound,
	event.ErrPermissionDenied,
	event.ErrSnapshotCorrupt,
	event.ErrIgnoreRuleInvalid,
}

// remoteError restores the error kind of a failure reported by the daemon.
// Only the message crosses the wire, so the kind is recovered from it.
// Transport failures mean the daemon went away.
func remoteError(op, path string, err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return event.NewError(op, path, event.ErrBackendUnavailable, err)
	}
	// The outermost kind is the first one in the message.
	msg := string(serverErr)
	var found error
	at := -1
	for _, kind := range remoteKinds {
		if i := strings.Index(msg, ": "+kind.Error()); i >= 0 && (at < 0 || i < at) {
			found, at = kind, i
		}
	}
	if found == nil {
		return err
	}
	return event.NewError(op, path, found, errors.New(msg))
}
