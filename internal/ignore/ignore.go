// Package ignore decides which paths under a watch root a subscriber does
// not want to hear about.
package ignore

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/prettymuchbryce/treewatch/internal/event"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
)

// Filter matches absolute paths against a set of rules registered for one
// root. A nil *Filter matches nothing.
//
// Plain rules name a path (absolute, or relative to the root); the path and
// everything below it is ignored. Rules containing glob metacharacters are
// doublestar patterns matched against the slash-separated path relative to
// the root and against each of its ancestors, so a pattern that matches a
// directory also ignores its subtree.
type Filter struct {
	root  string
	rules []string
	paths []string
	globs []string
}

// New validates rules and resolves them against root. root must already be
// normalized.
func New(root string, rules []string) (*Filter, error) {
	f := &Filter{root: root}
	for _, rule := range rules {
		if err := f.add(rule); err != nil {
			return nil, event.NewError("ignore", rule, event.ErrIgnoreRuleInvalid, err)
		}
	}
	return f, nil
}

func (f *Filter) add(rule string) error {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return errors.New("rule is empty")
	}
	if strings.ContainsRune(trimmed, 0) {
		return errors.New("rule contains a NUL byte")
	}

	if hasMeta(trimmed) {
		pattern := filepath.ToSlash(trimmed)
		if filepath.IsAbs(trimmed) {
			rel, ok := pathutil.Rel(f.root, filepath.Clean(trimmed))
			if !ok {
				// Outside the root, so it can never match.
				f.rules = append(f.rules, rule)
				return nil
			}
			pattern = rel
		}
		pattern = strings.TrimPrefix(pattern, "./")
		if !doublestar.ValidatePattern(pattern) {
			return errors.New("malformed glob pattern")
		}
		f.globs = append(f.globs, pattern)
		f.rules = append(f.rules, rule)
		return nil
	}

	p := pathutil.ExpandTilde(trimmed)
	if !filepath.IsAbs(p) {
		p = filepath.Join(f.root, p)
	}
	f.paths = append(f.paths, filepath.Clean(p))
	f.rules = append(f.rules, rule)
	return nil
}

// Root returns the root the rules were resolved against.
func (f *Filter) Root() string {
	if f == nil {
		return ""
	}
	return f.root
}

// Rules returns the rules as given.
func (f *Filter) Rules() []string {
	if f == nil {
		return nil
	}
	return f.rules
}

// Empty reports whether the filter can never match.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.paths) == 0 && len(f.globs) == 0)
}

// Match reports whether the absolute path is ignored.
func (f *Filter) Match(abs string) bool {
	if f.Empty() {
		return false
	}
	for _, p := range f.paths {
		if pathutil.IsWithin(p, abs) {
			return true
		}
	}
	if len(f.globs) == 0 {
		return false
	}
	rel, ok := pathutil.Rel(f.root, abs)
	if !ok || rel == "." {
		return false
	}
	return f.matchGlobs(rel)
}

// MatchRel is Match for a slash-separated path relative to the root.
func (f *Filter) MatchRel(rel string) bool {
	if f.Empty() || rel == "." || rel == "" {
		return false
	}
	if len(f.paths) > 0 && f.Match(pathutil.Join(f.root, rel)) {
		return true
	}
	return f.matchGlobs(rel)
}

func (f *Filter) matchGlobs(rel string) bool {
	for candidate := rel; candidate != "." && candidate != "/"; candidate = path.Dir(candidate) {
		for _, g := range f.globs {
			if ok, _ := doublestar.Match(g, candidate); ok {
				return true
			}
		}
	}
	return false
}

// Apply returns the events whose paths are not ignored. The input slice is
// never modified.
func (f *Filter) Apply(events []event.Event) []event.Event {
	if f.Empty() {
		return append([]event.Event(nil), events...)
	}
	kept := make([]event.Event, 0, len(events))
	for _, e := range events {
		if !f.Match(e.Path) {
			kept = append(kept, e)
		}
	}
	return kept
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
