// Package snapshot captures directory trees, persists them, and diffs two
// captures into normalized events.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// Version is the on-disk format version written by this package.
const Version = 1

// Kind is the type of a filesystem entry.
type Kind string

const (
	File      Kind = "file"
	Directory Kind = "dir"
	Symlink   Kind = "symlink"
)

// Entry is the metadata recorded for one path.
type Entry struct {
	Kind    Kind      `json:"kind"`
	ModTime time.Time `json:"mtime"`
	Size    int64     `json:"size"`
	Inode   uint64    `json:"ino,omitempty"`
}

// EntryFromInfo converts lstat output to an Entry.
func EntryFromInfo(info os.FileInfo) Entry {
	e := Entry{
		Kind:    File,
		ModTime: info.ModTime(),
		Size:    info.Size(),
		Inode:   getInode(info.Sys()),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		e.Kind = Symlink
	case info.IsDir():
		e.Kind = Directory
		e.Size = 0
	}
	return e
}

// Changed reports whether other describes a different entry than e.
// Directories compare by kind and identity only: their mtime moves whenever
// a child changes, and those children are reported on their own.
func (e Entry) Changed(other Entry) bool {
	if e.Kind != other.Kind {
		return true
	}
	if e.Inode != 0 && other.Inode != 0 && e.Inode != other.Inode {
		return true
	}
	if e.Kind == Directory {
		return false
	}
	return e.Size != other.Size || !e.ModTime.Equal(other.ModTime)
}

// Snapshot maps slash-separated paths relative to Root to their metadata.
// The root itself is not an entry.
type Snapshot struct {
	Version   int              `json:"version"`
	Root      string           `json:"root"`
	Backend   string           `json:"backend"`
	CreatedAt time.Time        `json:"created_at"`
	Clock     string           `json:"clock,omitempty"`
	Entries   map[string]Entry `json:"entries"`

	// children maps a parent path to the names recorded directly below it,
	// including intermediate parents that have no entry of their own. It is
	// built on first use; mutate Entries through Put and Remove only.
	children map[string]map[string]struct{}
}

// New returns an empty snapshot of root.
func New(root string) *Snapshot {
	return &Snapshot{
		Version:   Version,
		Root:      root,
		CreatedAt: time.Now(),
		Entries:   make(map[string]Entry),
		children:  make(map[string]map[string]struct{}),
	}
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.Entries)
}

// Get returns the entry for rel.
func (s *Snapshot) Get(rel string) (Entry, bool) {
	e, ok := s.Entries[rel]
	return e, ok
}

// Put records an entry.
func (s *Snapshot) Put(rel string, e Entry) {
	s.buildTree()
	s.Entries[rel] = e
	s.link(rel)
}

// Remove deletes rel and everything below it.
func (s *Snapshot) Remove(rel string) {
	s.buildTree()
	for _, p := range s.subtree(rel) {
		delete(s.Entries, p)
		delete(s.children, p)
	}
	delete(s.Entries, rel)
	delete(s.children, rel)
	if siblings := s.children[path.Dir(rel)]; siblings != nil {
		delete(siblings, rel)
	}
}

// Descendants returns every recorded path strictly below rel, in tree order.
func (s *Snapshot) Descendants(rel string) []string {
	s.buildTree()
	var out []string
	for _, p := range s.subtree(rel) {
		if _, ok := s.Entries[p]; ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, pathutil.Compare)
	return out
}

func (s *Snapshot) buildTree() {
	if s.children != nil {
		return
	}
	s.children = make(map[string]map[string]struct{})
	for p := range s.Entries {
		s.link(p)
	}
}

// link records rel under each of its ancestors, stopping at the first one
// that already lists it.
func (s *Snapshot) link(rel string) {
	for cur := rel; ; {
		parent := path.Dir(cur)
		if parent == cur {
			return
		}
		set := s.children[parent]
		if set == nil {
			set = make(map[string]struct{})
			s.children[parent] = set
		}
		if _, ok := set[cur]; ok {
			return
		}
		set[cur] = struct{}{}
		if parent == "." {
			return
		}
		cur = parent
	}
}

// subtree returns every path linked strictly below rel, entries or not.
func (s *Snapshot) subtree(rel string) []string {
	var out []string
	stack := []string{rel}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for child := range s.children[p] {
			out = append(out, child)
			stack = append(stack, child)
		}
	}
	return out
}

// Paths returns every recorded path in tree order: component-wise
// lexicographic, so a directory precedes its descendants.
func (s *Snapshot) Paths() []string {
	out := make([]string, 0, len(s.Entries))
	for p := range s.Entries {
		out = append(out, p)
	}
	slices.SortFunc(out, pathutil.Compare)
	return out
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Entries = make(map[string]Entry, len(s.Entries))
	for p, e := range s.Entries {
		c.Entries[p] = e
	}
	c.children = nil
	return &c
}

// Write persists s to path atomically.
func Write(fsys afero.Fs, filename string, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := fs.WriteFileAtomic(fsys, filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", filename, err)
	}
	return nil
}

// Load reads a snapshot written by Write. Any problem with the file is
// reported as ErrSnapshotCorrupt.
func Load(fsys afero.Fs, filename string) (*Snapshot, error) {
	data, err := afero.ReadFile(fsys, filename)
	if err != nil {
		return nil, event.NewError("load snapshot", filename, event.ErrSnapshotCorrupt, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, event.NewError("load snapshot", filename, event.ErrSnapshotCorrupt, err)
	}
	if err := s.validate(); err != nil {
		return nil, event.NewError("load snapshot", filename, event.ErrSnapshotCorrupt, err)
	}
	if s.Entries == nil {
		s.Entries = make(map[string]Entry)
	}
	return &s, nil
}

func (s *Snapshot) validate() error {
	if s.Version != Version {
		return fmt.Errorf("unsupported version %d", s.Version)
	}
	if s.Root == "" {
		return errors.New("missing root")
	}
	for p, e := range s.Entries {
		if p == "" || p == "." || path.IsAbs(p) || path.Clean(p) != p || p == ".." || strings.HasPrefix(p, "../") {
			return fmt.Errorf("invalid entry path %q", p)
		}
		switch e.Kind {
		case File, Directory, Symlink:
		default:
			return fmt.Errorf("invalid kind %q for %q", e.Kind, p)
		}
	}
	return nil
}
