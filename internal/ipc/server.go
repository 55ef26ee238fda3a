package ipc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Handler processes IPC requests from CLI clients and daemon backends.
// The daemon implements this interface. Calls may arrive concurrently.
type Handler interface {
	HandleStatus() StatusData
	HandleReload() (ReloadResult, error)
	HandleEnable()
	HandleDisable()
	HandleWatch(root string) (WatchResult, error)
	HandleClock(root string) (WatchResult, error)
	HandleSince(root, clock string) (SinceResult, error)
	HandleUnwatch(root string) error
}

// Daemon is the RPC service exposed to clients.
// Method names become "Daemon.Status", "Daemon.Watch", etc.
type Daemon struct {
	handler Handler
}

// Status returns the current daemon status.
func (d *Daemon) Status(_ *Empty, reply *StatusData) error {
	*reply = d.handler.HandleStatus()
	return nil
}

// Reload triggers a configuration reload.
func (d *Daemon) Reload(_ *Empty, reply *ReloadResult) error {
	result, err := d.handler.HandleReload()
	if err != nil {
		return err
	}
	*reply = result
	return nil
}

// Enable resumes watching.
func (d *Daemon) Enable(_ *Empty, _ *Empty) error {
	d.handler.HandleEnable()
	return nil
}

// Disable stops watching.
func (d *Daemon) Disable(_ *Empty, _ *Empty) error {
	d.handler.HandleDisable()
	return nil
}

// Watch starts watching a root, or returns the clock of an existing watch.
func (d *Daemon) Watch(args *RootArgs, reply *WatchResult) error {
	result, err := d.handler.HandleWatch(args.Root)
	if err != nil {
		return err
	}
	*reply = result
	return nil
}

// Clock returns the current clock of a watched root.
func (d *Daemon) Clock(args *RootArgs, reply *WatchResult) error {
	result, err := d.handler.HandleClock(args.Root)
	if err != nil {
		return err
	}
	*reply = result
	return nil
}

// Since returns the changes after a clock.
func (d *Daemon) Since(args *SinceArgs, reply *SinceResult) error {
	result, err := d.handler.HandleSince(args.Root, args.Clock)
	if err != nil {
		return err
	}
	*reply = result
	return nil
}

// Unwatch stops watching a root.
func (d *Daemon) Unwatch(args *RootArgs, _ *Empty) error {
	return d.handler.HandleUnwatch(args.Root)
}

// Server accepts IPC connections and serves RPC requests.
type Server struct {
	sockPath  string
	listener  net.Listener
	rpcServer *rpc.Server
	wg        sync.WaitGroup
}

// NewServer creates an IPC server bound to sockPath, or to the
// platform-appropriate socket when sockPath is empty.
func NewServer(handler Handler, sockPath string) (*Server, error) {
	if sockPath == "" {
		var err error
		if sockPath, err = SocketPath(); err != nil {
			return nil, err
		}
	}

	// Create parent directory and remove stale socket file (Unix only)
	// Windows named pipes live in a kernel namespace, not the filesystem
	if runtime.GOOS != "windows" {
		if err := os.MkdirAll(filepath.Dir(sockPath), 0755); err != nil {
			return nil, err
		}
		os.Remove(sockPath)
	}

	listener, err := listen(sockPath)
	if err != nil {
		return nil, err
	}

	// Create RPC server and register the Daemon service
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Daemon", &Daemon{handler: handler}); err != nil {
		listener.Close()
		return nil, err
	}

	return &Server{
		sockPath:  sockPath,
		listener:  listener,
		rpcServer: rpcServer,
	}, nil
}

// Addr returns the socket the server listens on.
func (s *Server) Addr() string {
	return s.sockPath
}

// Serve accepts connections until the context is cancelled.
// Each connection is served on its own goroutine, since daemon backends keep
// their connection open for the lifetime of a watch.
func (s *Server) Serve(ctx context.Context) error {
	// Close listener and clean up socket when context is done
	go func() {
		<-ctx.Done()
		s.listener.Close()
		// Remove Unix socket file
		if runtime.GOOS != "windows" {
			os.Remove(s.sockPath)
		}
	}()

	var (
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)
	defer func() {
		mu.Lock()
		for conn := range conns {
			conn.Close()
		}
		mu.Unlock()
		s.wg.Wait()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if we're shutting down
			if ctx.Err() != nil {
				break
			}
			// Log and continue on transient errors
			if !errors.Is(err, net.ErrClosed) {
				slog.Warn("ipc accept error", "error", err)
				continue
			}
			break
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// Blocks until the client disconnects
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
		}()
	}

	return nil
}
