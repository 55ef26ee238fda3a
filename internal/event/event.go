package event

import (
	"fmt"
	"slices"

	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// Type is the kind of a normalized change.
type Type string

const (
	Create Type = "create"
	Update Type = "update"
	Delete Type = "delete"
)

// Event is a normalized change reported to subscribers and returned by
// snapshot queries. Path is absolute.
type Event struct {
	Type Type   `json:"type"`
	Path string `json:"path"`
}

func (e Event) String() string {
	return string(e.Type) + " " + e.Path
}

// Action is what a backend observed for a single path.
type Action int

const (
	Created Action = iota
	Modified
	Deleted
	RenamedFrom
	RenamedTo
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case RenamedFrom:
		return "renamed-from"
	case RenamedTo:
		return "renamed-to"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Raw is a backend-level notification. IsDir is a hint that may be false for
// directories on facilities that do not report it (deletions in particular).
type Raw struct {
	Path   string
	Action Action
	IsDir  bool
}

func (r Raw) String() string {
	return r.Action.String() + " " + r.Path
}

// Sort orders events the way every producer in this module reports them:
// deletes first, parents before descendants (depth, then path), followed by
// creates and updates in tree order so a directory precedes its contents.
func Sort(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		aDel, bDel := a.Type == Delete, b.Type == Delete
		switch {
		case aDel && !bDel:
			return -1
		case !aDel && bDel:
			return 1
		case aDel && bDel:
			if da, db := pathutil.Depth(a.Path), pathutil.Depth(b.Path); da != db {
				return da - db
			}
		}
		return pathutil.Compare(a.Path, b.Path)
	})
}

// Paths returns the paths of events in order.
func Paths(events []Event) []string {
	paths := make([]string, len(events))
	for i, e := range events {
		paths[i] = e.Path
	}
	return paths
}
