//go:build !windows

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/prettymuchbryce/treewatch/internal/watcher"

	"github.com/spf13/afero"
)

// serveController runs c on a fresh unix socket until the test ends.
func serveController(t *testing.T, c *Controller) string {
	t.Helper()
	// Socket paths have a short length limit, so avoid t.TempDir.
	dir, err := os.MkdirTemp("", "tw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	srv, err := ipc.NewServer(c, filepath.Join(dir, "d.sock"))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr()
}

func TestDaemonBackend_EndToEnd(t *testing.T) {
	c := newTestController(t)
	sock := serveController(t, c)
	root := tempRoot(t)

	m := watcher.New(watcher.Config{
		Latency: 10 * time.Millisecond,
		Fs:      afero.NewOsFs(),
		Backend: backend.Daemon,
		BackendOptions: backend.Options{
			DaemonSocket: sock,
			PollInterval: 10 * time.Millisecond,
		},
	})
	defer m.Close()

	got := make(chan []event.Event, 16)
	sub, err := m.Subscribe(context.Background(), root, func(events []event.Event) {
		got <- events
	}, watcher.Options{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Unsubscribe()

	if sub.Backend() != backend.Daemon {
		t.Errorf("Backend() = %q, want daemon", sub.Backend())
	}

	target := filepath.Join(root, "a.txt")
	if err := os.WriteFile(target, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case events := <-got:
			for _, e := range events {
				if e.Path == target && e.Type == event.Create {
					return
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for create through the daemon")
		}
	}
}

func TestClient_RemoteErrorKinds(t *testing.T) {
	c := newTestController(t)
	sock := serveController(t, c)
	root := tempRoot(t)

	client, err := ipc.ConnectTo(sock)
	if err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	defer client.Close()

	if _, err := client.Clock(root); !errors.Is(err, event.ErrPathNotFound) {
		t.Errorf("Clock(unwatched) error = %v, want ErrPathNotFound", err)
	}
	if _, err := client.Since(root, "c:x:1"); !errors.Is(err, event.ErrSnapshotCorrupt) {
		t.Errorf("Since(unwatched) error = %v, want ErrSnapshotCorrupt", err)
	}

	watch, err := client.Watch(root)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	result, err := client.Since(root, watch.Clock)
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	if result.Files == nil {
		t.Error("expected an empty, non-nil change list")
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status.Roots) != 1 || status.Roots[0].Root != root {
		t.Errorf("unexpected roots %+v", status.Roots)
	}

	if err := client.Unwatch(root); err != nil {
		t.Fatalf("Unwatch() error = %v", err)
	}
}

func TestConnectTo_NoDaemon(t *testing.T) {
	_, err := ipc.ConnectTo(filepath.Join(t.TempDir(), "none.sock"))
	if !errors.Is(err, event.ErrBackendUnavailable) {
		t.Errorf("ConnectTo() error = %v, want ErrBackendUnavailable", err)
	}
}
