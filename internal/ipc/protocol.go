package ipc

import "time"

// Empty is used for RPC methods that don't need arguments or return values.
type Empty struct{}

// StatusData is returned by Daemon.Status.
type StatusData struct {
	InstanceID  string       `json:"instance_id"`
	ConfigPath  string       `json:"config_path"`
	ConfigValid bool         `json:"config_valid"`
	ConfigError string       `json:"config_error,omitempty"`
	LogPath     string       `json:"log_path,omitempty"`
	Enabled     bool         `json:"enabled"`
	Backend     string       `json:"backend"`
	WatchCount  int          `json:"watch_count"`
	Roots       []RootStatus `json:"roots"`
}

// RootStatus shows per-root status information.
type RootStatus struct {
	Root            string     `json:"root"`
	Clock           string     `json:"clock"`
	WatchCount      int        `json:"watch_count"`
	Subscribers     int        `json:"subscribers"`
	JournalLength   int        `json:"journal_length"`
	EventsJournaled *int       `json:"events_journaled,omitempty"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
}

// ReloadResult is returned by Daemon.Reload.
type ReloadResult struct {
	ConfigPath string `json:"config_path"`
}

// RootArgs names a watch root.
type RootArgs struct {
	Root string `json:"root"`
}

// WatchResult is returned by Daemon.Watch and Daemon.Clock.
type WatchResult struct {
	Root  string `json:"root"`
	Clock string `json:"clock"`
}

// SinceArgs asks for changes under Root after Clock.
type SinceArgs struct {
	Root  string `json:"root"`
	Clock string `json:"clock"`
}

// FileChange is one changed path in a Since result. Name is relative to the
// root in slash form.
type FileChange struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	New    bool   `json:"new"`
	Dir    bool   `json:"dir"`
}

// SinceResult is returned by Daemon.Since. Clock is the position to pass to
// the next query.
type SinceResult struct {
	Clock string       `json:"clock"`
	Files []FileChange `json:"files"`
}
