// Package journal keeps a bounded, sequenced history of the events seen on
// one root so that clients can ask what changed after a clock.
package journal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/prettymuchbryce/treewatch/internal/coalesce"
	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// DefaultLimit is the number of events retained when none is configured.
const DefaultLimit = 100000

// clockPrefix starts every clock string.
const clockPrefix = "c:"

type record struct {
	seq   uint64
	event event.Event
	dir   bool
}

// Journal is safe for concurrent use.
type Journal struct {
	root     string
	instance string
	limit    int

	mu sync.Mutex
	// seq is the sequence number of the last appended event.
	seq uint64
	// records holds events with sequence numbers first+1 through seq.
	records []record
	first   uint64
}

// New creates an empty journal for root. instance identifies the daemon run
// that issues its clocks.
func New(root, instance string, limit int) *Journal {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Journal{root: root, instance: instance, limit: limit}
}

// Root returns the journaled root.
func (j *Journal) Root() string {
	return j.root
}

// Clock returns the position after the last appended event.
func (j *Journal) Clock() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.clockLocked()
}

func (j *Journal) clockLocked() string {
	return FormatClock(j.instance, j.seq)
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// Append records a batch. isDir reports whether a path is a directory; it
// is only consulted for paths that still exist, so deleted directories
// carry no hint.
func (j *Journal) Append(events []event.Event, isDir func(path string) bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range events {
		j.seq++
		dir := false
		if isDir != nil && e.Type != event.Delete {
			dir = isDir(e.Path)
		}
		j.records = append(j.records, record{seq: j.seq, event: e, dir: dir})
	}
	if over := len(j.records) - j.limit; over > 0 {
		j.first = j.records[over-1].seq
		j.records = append([]record(nil), j.records[over:]...)
	}
}

// Since returns the changes after clock, reduced to one entry per path, and
// the clock to use for the next query. A clock issued by another instance,
// one from the future, or one older than the retained history is
// ErrSnapshotCorrupt: the caller must take a fresh snapshot.
func (j *Journal) Since(clock string) (ipc.SinceResult, error) {
	instance, seq, err := ParseClock(clock)
	if err != nil {
		return ipc.SinceResult{}, event.NewError("since", j.root, event.ErrSnapshotCorrupt, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case instance != j.instance:
		return ipc.SinceResult{}, event.NewError("since", j.root, event.ErrSnapshotCorrupt,
			errors.New("clock was issued by another daemon instance"))
	case seq > j.seq:
		return ipc.SinceResult{}, event.NewError("since", j.root, event.ErrSnapshotCorrupt,
			errors.New("clock is ahead of the journal"))
	case seq < j.first:
		return ipc.SinceResult{}, event.NewError("since", j.root, event.ErrSnapshotCorrupt,
			errors.New("clock is older than the retained history"))
	}

	// Replaying through a coalescer without a tree infers existence from the
	// first action per path, which is what the client's snapshot saw.
	c := coalesce.New(coalesce.Options{ExactCreateDelete: true})
	dirs := make(map[string]bool)
	for _, r := range j.records {
		if r.seq <= seq {
			continue
		}
		if r.dir {
			dirs[r.event.Path] = true
		}
		switch r.event.Type {
		case event.Create:
			c.Add(event.Raw{Path: r.event.Path, Action: event.Created, IsDir: r.dir})
		case event.Update:
			c.Add(event.Raw{Path: r.event.Path, Action: event.Modified})
		case event.Delete:
			c.Add(event.Raw{Path: r.event.Path, Action: event.Deleted, IsDir: r.dir})
		}
	}

	result := ipc.SinceResult{Clock: j.clockLocked(), Files: []ipc.FileChange{}}
	for _, e := range c.Flush() {
		rel, ok := pathutil.Rel(j.root, e.Path)
		if !ok {
			continue
		}
		result.Files = append(result.Files, ipc.FileChange{
			Name:   rel,
			Exists: e.Type != event.Delete,
			New:    e.Type == event.Create,
			Dir:    dirs[e.Path],
		})
	}
	return result, nil
}

// FormatClock renders a clock string.
func FormatClock(instance string, seq uint64) string {
	return clockPrefix + instance + ":" + strconv.FormatUint(seq, 10)
}

// ParseClock splits a clock string into its instance and sequence number.
func ParseClock(clock string) (string, uint64, error) {
	rest, ok := strings.CutPrefix(clock, clockPrefix)
	if !ok {
		return "", 0, fmt.Errorf("malformed clock %q", clock)
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed clock %q", clock)
	}
	seq, err := strconv.ParseUint(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed clock %q: %w", clock, err)
	}
	return rest[:i], seq, nil
}
