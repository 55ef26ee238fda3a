package backend

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// tempRoot returns a normalized temp directory, so that paths reported by
// the native facility match on systems where the temp dir is a symlink.
func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := pathutil.NormalizeDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func startBackend(t *testing.T, factory Factory, root string) Backend {
	t.Helper()
	b, err := factory(Options{Root: root, Fs: afero.NewOsFs()})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { b.Stop() })
	return b
}

// waitForRaw collects raw events until one matches path and action.
func waitForRaw(t *testing.T, b Backend, path string, action event.Action) []event.Raw {
	t.Helper()
	var seen []event.Raw
	deadline := time.After(5 * time.Second)
	for {
		select {
		case raws := <-b.Events():
			seen = append(seen, raws...)
			if slices.ContainsFunc(raws, func(r event.Raw) bool { return r.Path == path && r.Action == action }) {
				return seen
			}
		case err := <-b.Errors():
			t.Fatalf("backend error while waiting for %s %s: %v", action, path, err)
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s, saw %v", action, path, seen)
		}
	}
}

func waitForError(t *testing.T, b Backend) error {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-b.Events():
		case err := <-b.Errors():
			return err
		case <-deadline:
			t.Fatal("timed out waiting for a backend error")
			return nil
		}
	}
}

// liveFactories lists the variants exercised against the real filesystem.
// Platform test files add their native variants.
var liveFactories = map[string]Factory{
	"fsnotify": newFsnotifyBackend(Kqueue),
}

func TestLive_CreateModifyDelete(t *testing.T) {
	for name, factory := range liveFactories {
		t.Run(name, func(t *testing.T) {
			root := tempRoot(t)
			b := startBackend(t, factory, root)

			file := filepath.Join(root, "test.txt")
			if err := os.WriteFile(file, []byte("hello"), 0644); err != nil {
				t.Fatal(err)
			}
			waitForRaw(t, b, file, event.Created)

			if err := os.WriteFile(file, []byte("hello world"), 0644); err != nil {
				t.Fatal(err)
			}
			waitForRaw(t, b, file, event.Modified)

			if err := os.Remove(file); err != nil {
				t.Fatal(err)
			}
			waitForRaw(t, b, file, event.Deleted)
		})
	}
}

func TestLive_NewDirectoryIsWatched(t *testing.T) {
	for name, factory := range liveFactories {
		t.Run(name, func(t *testing.T) {
			root := tempRoot(t)
			b := startBackend(t, factory, root)

			dir := filepath.Join(root, "a")
			if err := os.Mkdir(dir, 0755); err != nil {
				t.Fatal(err)
			}
			waitForRaw(t, b, dir, event.Created)

			// Events below the new directory are delivered once it is watched
			file := filepath.Join(dir, "b.txt")
			if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
			waitForRaw(t, b, file, event.Created)

			if got := b.WatchCount(); got != 2 {
				t.Errorf("WatchCount() = %d, want 2", got)
			}
		})
	}
}

func TestLive_RootRemoved(t *testing.T) {
	for name, factory := range liveFactories {
		t.Run(name, func(t *testing.T) {
			parent := tempRoot(t)
			root := filepath.Join(parent, "root")
			if err := os.Mkdir(root, 0755); err != nil {
				t.Fatal(err)
			}
			b := startBackend(t, factory, root)

			if err := os.RemoveAll(root); err != nil {
				t.Fatal(err)
			}
			if err := waitForError(t, b); !errors.Is(err, event.ErrPathNotFound) {
				t.Errorf("error = %v, want ErrPathNotFound", err)
			}
		})
	}
}

func TestLive_StartMissingRoot(t *testing.T) {
	for name, factory := range liveFactories {
		t.Run(name, func(t *testing.T) {
			root := filepath.Join(tempRoot(t), "missing")
			b, err := factory(Options{Root: root, Fs: afero.NewOsFs()})
			if err != nil {
				t.Fatal(err)
			}
			if err := b.Start(t.Context()); !errors.Is(err, event.ErrPathNotFound) {
				t.Errorf("Start() error = %v, want ErrPathNotFound", err)
			}
		})
	}
}

func TestLive_StopIsIdempotent(t *testing.T) {
	for name, factory := range liveFactories {
		t.Run(name, func(t *testing.T) {
			b := startBackend(t, factory, tempRoot(t))
			if err := b.Stop(); err != nil {
				t.Errorf("Stop() error = %v", err)
			}
			if err := b.Stop(); err != nil {
				t.Errorf("second Stop() error = %v", err)
			}
		})
	}
}
