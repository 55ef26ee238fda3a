package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
)

// RootState tracks persistent counters for a single watched root.
type RootState struct {
	FirstWatchedAt  time.Time `json:"first_watched_at"`
	LastEventAt     time.Time `json:"last_event_at,omitzero"`
	EventsJournaled int       `json:"events_journaled"`
}

// State tracks daemon state that persists across restarts.
type State struct {
	mu    sync.RWMutex
	fs    afero.Fs
	path  string
	Roots map[string]RootState `json:"roots"`
}

// Load loads state from the default state file path.
// If the file doesn't exist, returns an empty state.
func Load(fsys afero.Fs) (*State, error) {
	path, err := ipc.StatePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(fsys, path)
}

// LoadFrom loads state from the specified path. An empty path keeps state
// in memory only. If the file doesn't exist, returns an empty state.
func LoadFrom(fsys afero.Fs, path string) (*State, error) {
	s := &State{
		fs:    fsys,
		path:  path,
		Roots: make(map[string]RootState),
	}
	if path == "" {
		return s, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		// Log warning but return empty state rather than failing
		slog.Warn("failed to parse state file, starting fresh", "error", err)
		s.Roots = make(map[string]RootState)
		return s, nil
	}

	// Ensure Roots map is initialized even if JSON had null
	if s.Roots == nil {
		s.Roots = make(map[string]RootState)
	}

	return s, nil
}

// RecordWatch notes that root is being watched and persists to disk.
func (s *State) RecordWatch(root string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.Roots[root]
	if rs.FirstWatchedAt.IsZero() {
		rs.FirstWatchedAt = now
	}
	s.Roots[root] = rs
	return s.save()
}

// RecordEvents adds n journaled events to root's counters and persists to
// disk.
func (s *State) RecordEvents(root string, n int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.Roots[root]
	if rs.FirstWatchedAt.IsZero() {
		rs.FirstWatchedAt = now
	}
	rs.EventsJournaled += n
	rs.LastEventAt = now
	s.Roots[root] = rs
	return s.save()
}

// save persists the state to disk. Must be called with mu held.
func (s *State) save() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return fs.WriteFileAtomic(s.fs, s.path, data, 0644)
}

// GetRootState returns the persisted state for a root.
// Returns nil if the root has never been watched.
func (s *State) GetRootState(root string) *RootState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.Roots[root]
	if !ok {
		return nil
	}
	return &rs
}

// Clear removes all state (useful for testing).
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Roots = make(map[string]RootState)
}
