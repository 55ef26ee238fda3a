//go:build integration

package testutil

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// FileEntry describes a file or directory with all relevant properties.
type FileEntry struct {
	Path    string        // relative path using forward slashes (e.g., "source/file.txt")
	IsDir   bool          // true for directories
	Content string        // file content (mutually exclusive with Size)
	Size    int64         // create file with this many zero bytes
	ModTime time.Duration // relative to now, e.g., -48*time.Hour means "2 days ago"
}

// Op is one filesystem change applied after observation starts.
type Op struct {
	kind    string
	path    string
	to      string
	content string
}

// Expected is an event with its path relative to the root, in slash form.
type Expected struct {
	Type event.Type
	Path string
}

// SinceFunc reports the changes observed under the root so far.
type SinceFunc func() ([]event.Event, error)

// Starter begins observing root and returns how to query it. The harness
// passes a normalized root.
type Starter func(t *testing.T, root string) SinceFunc

// TestCase is a complete data-driven integration test.
type TestCase struct {
	Name    string        // test name (used for t.Run)
	Before  []FileEntry   // files/dirs to create BEFORE observation starts
	Ops     []Op          // changes applied AFTER observation starts
	Expect  []Expected    // the exact events that should be reported
	Timeout time.Duration // how long to wait for expected events (default: 2s)
	Skip    string        // skip reason, empty to run
}

// Harness manages the test environment.
type Harness struct {
	t    *testing.T
	root string
}

// Run executes a single test case.
func Run(t *testing.T, start Starter, tc TestCase) {
	t.Helper()
	if tc.Skip != "" {
		t.Skip(tc.Skip)
	}

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}
	h := &Harness{t: t, root: root}

	// Create initial directories and files
	h.createEntries(tc.Before)

	since := start(t, root)

	// Apply the changes under test
	h.apply(tc.Ops)

	// Wait for expected events
	h.waitAndVerify(since, tc)
}

// RunTable executes multiple test cases as subtests.
func RunTable(t *testing.T, start Starter, cases []TestCase) {
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			Run(t, start, tc)
		})
	}
}

func (h *Harness) abs(rel string) string {
	// Convert forward slashes to OS-specific separator for Windows compatibility
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

// createEntries creates files and directories from FileEntry specs.
func (h *Harness) createEntries(entries []FileEntry) {
	h.t.Helper()

	for _, e := range entries {
		path := h.abs(e.Path)

		if e.IsDir {
			if err := os.MkdirAll(path, 0755); err != nil {
				h.t.Fatalf("failed to create directory %s: %v", e.Path, err)
			}
			continue
		}

		// Ensure parent directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			h.t.Fatalf("failed to create parent directory for %s: %v", e.Path, err)
		}

		// Create file with content or size
		var content []byte
		if e.Content != "" {
			content = []byte(e.Content)
		} else if e.Size > 0 {
			content = make([]byte, e.Size)
		}

		if err := os.WriteFile(path, content, 0644); err != nil {
			h.t.Fatalf("failed to create file %s: %v", e.Path, err)
		}

		// Set timestamps if specified
		if e.ModTime != 0 {
			mtime := time.Now().Add(e.ModTime)
			if err := os.Chtimes(path, mtime, mtime); err != nil {
				h.t.Fatalf("failed to set timestamps for %s: %v", e.Path, err)
			}
		}
	}
}

// apply performs ops in order.
func (h *Harness) apply(ops []Op) {
	h.t.Helper()

	for _, op := range ops {
		var err error
		path := h.abs(op.path)
		switch op.kind {
		case "write":
			if err = os.MkdirAll(filepath.Dir(path), 0755); err == nil {
				err = os.WriteFile(path, []byte(op.content), 0644)
			}
		case "mkdir":
			err = os.MkdirAll(path, 0755)
		case "remove":
			err = os.RemoveAll(path)
		case "rename":
			err = os.Rename(path, h.abs(op.to))
		case "symlink":
			err = os.Symlink(h.abs(op.to), path)
		case "touch":
			now := time.Now()
			err = os.Chtimes(path, now, now)
		}
		if err != nil {
			h.t.Fatalf("%s %s failed: %v", op.kind, op.path, err)
		}
	}
}

// waitAndVerify polls since until it reports the expected events.
func (h *Harness) waitAndVerify(since SinceFunc, tc TestCase) {
	h.t.Helper()

	timeout := tc.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	want := make([]event.Event, len(tc.Expect))
	for i, e := range tc.Expect {
		want[i] = event.Event{Type: e.Type, Path: h.abs(e.Path)}
	}

	var got []event.Event
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var err error
		got, err = since()
		if err != nil {
			h.t.Fatalf("failed to query changes: %v", err)
		}
		if equalEvents(got, want) {
			return // Success
		}
		time.Sleep(50 * time.Millisecond)
	}

	h.t.Errorf("events = %v, want %v", got, want)
}

func equalEvents(got, want []event.Event) bool {
	if len(got) == 0 && len(want) == 0 {
		return true
	}
	return slices.Equal(got, want)
}
