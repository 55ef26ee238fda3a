package snapshot

import (
	"fmt"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/ignore"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// Diff returns the events that turn old into cur. A renamed path shows up as
// a delete of the old name and a create of the new one. Paths matched by
// filter are left out of both sides. Both snapshots must share a root.
func Diff(old, cur *Snapshot, filter *ignore.Filter) ([]event.Event, error) {
	if old.Root != cur.Root {
		return nil, event.NewError("diff", cur.Root, event.ErrSnapshotCorrupt,
			fmt.Errorf("snapshot was taken of %s", old.Root))
	}
	root := cur.Root

	var events []event.Event
	for rel := range old.Entries {
		if _, ok := cur.Entries[rel]; ok {
			continue
		}
		abs := pathutil.Join(root, rel)
		if filter.Match(abs) {
			continue
		}
		events = append(events, event.Event{Type: event.Delete, Path: abs})
	}

	for rel, now := range cur.Entries {
		abs := pathutil.Join(root, rel)
		before, existed := old.Entries[rel]
		switch {
		case !existed:
			if !filter.Match(abs) {
				events = append(events, event.Event{Type: event.Create, Path: abs})
			}
		case before.Changed(now):
			if !filter.Match(abs) {
				events = append(events, event.Event{Type: event.Update, Path: abs})
			}
		}
	}

	event.Sort(events)
	return events, nil
}
