// Package coalesce reduces a window of raw backend notifications to the
// same minimal event list a snapshot diff over that window would produce.
package coalesce

import (
	"log/slog"
	"path/filepath"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

type state int

const (
	unseen state = iota
	pendingCreate
	pendingUpdate
	pendingDelete
)

// Tree answers questions about the watched tree as it was at the start of
// the current window.
type Tree interface {
	Exists(path string) bool
	Descendants(path string) []string
}

// Options configures a Coalescer.
type Options struct {
	// Tree, when set, decides whether a path existed before the window.
	// Without it, existence is inferred from the first action seen: a
	// Created path did not exist, a Modified or Deleted one did.
	Tree Tree

	// ExactCreateDelete means the backend reliably reports a create and
	// a delete of the same path as two actions, so a pair inside one window
	// can cancel out. Backends that cannot guarantee this report the delete.
	ExactCreateDelete bool

	// Resolve maps a modified symlink to the real path whose contents
	// changed. It reports false to leave the path untouched.
	Resolve func(path string) (string, bool)
}

type pathState struct {
	state   state
	existed bool
}

// Coalescer holds per-path state for one window. It is not safe for
// concurrent use.
type Coalescer struct {
	opts  Options
	paths map[string]*pathState
	// children links each pending path under its ancestors so a directory
	// delete only visits what is pending below it. Links outlive paths
	// dropped from the window; walks skip those.
	children map[string]map[string]struct{}
}

// New returns an empty Coalescer.
func New(opts Options) *Coalescer {
	return &Coalescer{
		opts:     opts,
		paths:    make(map[string]*pathState),
		children: make(map[string]map[string]struct{}),
	}
}

// Pending returns the number of paths with state in the current window.
func (c *Coalescer) Pending() int {
	return len(c.paths)
}

// Add records raw actions in arrival order.
func (c *Coalescer) Add(raws ...event.Raw) {
	for _, raw := range raws {
		switch raw.Action {
		case event.Created, event.RenamedTo:
			c.created(raw.Path)
		case event.Modified:
			if raw.IsDir {
				continue
			}
			path := raw.Path
			if c.opts.Resolve != nil {
				if real, ok := c.opts.Resolve(path); ok {
					path = real
				}
			}
			c.modified(path)
		case event.Deleted, event.RenamedFrom:
			c.deleted(raw.Path)
		default:
			slog.Debug("dropping unknown raw action", "path", raw.Path, "action", raw.Action)
		}
	}
}

func (c *Coalescer) lookup(path string, action event.Action) *pathState {
	if ps, ok := c.paths[path]; ok {
		return ps
	}
	ps := &pathState{state: unseen}
	if c.opts.Tree != nil {
		ps.existed = c.opts.Tree.Exists(path)
	} else {
		ps.existed = action != event.Created
	}
	c.paths[path] = ps
	c.link(path)
	return ps
}

func (c *Coalescer) link(path string) {
	for cur := path; ; {
		parent := filepath.Dir(cur)
		if parent == cur {
			return
		}
		set := c.children[parent]
		if set == nil {
			set = make(map[string]struct{})
			c.children[parent] = set
		}
		if _, ok := set[cur]; ok {
			return
		}
		set[cur] = struct{}{}
		cur = parent
	}
}

// pendingBelow returns the paths in the window strictly below path.
func (c *Coalescer) pendingBelow(path string) []string {
	var out []string
	stack := []string{path}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for child := range c.children[dir] {
			if _, ok := c.paths[child]; ok {
				out = append(out, child)
			}
			stack = append(stack, child)
		}
	}
	return out
}

func (c *Coalescer) created(path string) {
	ps := c.lookup(path, event.Created)
	switch ps.state {
	case unseen, pendingDelete:
		if ps.existed {
			ps.state = pendingUpdate
		} else {
			ps.state = pendingCreate
		}
	}
}

func (c *Coalescer) modified(path string) {
	ps := c.lookup(path, event.Modified)
	switch ps.state {
	case unseen, pendingDelete:
		if ps.existed {
			ps.state = pendingUpdate
		} else {
			ps.state = pendingCreate
		}
	}
}

func (c *Coalescer) deleted(path string) {
	c.deleteOne(path)

	// Descendants of a deleted directory are not always reported on their
	// own, so delete everything known below it.
	for _, p := range c.pendingBelow(path) {
		c.deleteOne(p)
	}
	if c.opts.Tree != nil {
		for _, p := range c.opts.Tree.Descendants(path) {
			c.deleteOne(p)
		}
	}
}

func (c *Coalescer) deleteOne(path string) {
	ps := c.lookup(path, event.Deleted)
	switch ps.state {
	case unseen:
		if ps.existed {
			ps.state = pendingDelete
		} else {
			delete(c.paths, path)
		}
	case pendingCreate:
		if c.opts.ExactCreateDelete {
			delete(c.paths, path)
		} else {
			ps.state = pendingDelete
		}
	case pendingUpdate:
		ps.state = pendingDelete
	}
}

// Flush returns the events for the current window and starts a new one.
func (c *Coalescer) Flush() []event.Event {
	if len(c.paths) == 0 {
		return nil
	}
	events := make([]event.Event, 0, len(c.paths))
	for path, ps := range c.paths {
		switch ps.state {
		case pendingCreate:
			events = append(events, event.Event{Type: event.Create, Path: path})
		case pendingUpdate:
			events = append(events, event.Event{Type: event.Update, Path: path})
		case pendingDelete:
			events = append(events, event.Event{Type: event.Delete, Path: path})
		}
	}
	c.paths = make(map[string]*pathState)
	c.children = make(map[string]map[string]struct{})
	event.Sort(events)
	return events
}
