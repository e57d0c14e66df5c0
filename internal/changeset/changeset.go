package changeset

import (
	"sort"
	"strings"
)

// EventKind identifies what a commit did to a path
type EventKind string

const (
	Added    EventKind = "added"
	Removed  EventKind = "removed"
	Modified EventKind = "modified"
)

// Commit holds the per-commit file events of a push, in push order
type Commit struct {
	ID       string
	Added    []string
	Removed  []string
	Modified []string
}

// Filter decides which paths are icons
type Filter struct {
	Prefix string
}

// NewFilter creates a prefix filter. A trailing slash is added when missing so
// that "res/drawable" does not match "res/drawable-hdpi/x.png".
func NewFilter(prefix string) Filter {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Filter{Prefix: prefix}
}

// IsIcon reports whether path lives under the icon prefix
func (f Filter) IsIcon(path string) bool {
	return strings.HasPrefix(path, f.Prefix) && len(path) > len(f.Prefix)
}

// PathSet is a set of repository-relative paths
type PathSet map[string]struct{}

// Has reports whether p is in the set
func (s PathSet) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in lexical order
func (s PathSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NetChangeSet is the collapsed effect of every commit in a push.
// ToAdd and ToRemove never share a path.
type NetChangeSet struct {
	ToAdd    PathSet
	ToRemove PathSet
	ToModify PathSet
}

// New returns an empty change set
func New() NetChangeSet {
	return NetChangeSet{
		ToAdd:    make(PathSet),
		ToRemove: make(PathSet),
		ToModify: make(PathSet),
	}
}

// IsEmpty reports whether the push touched no icons at all
func (cs NetChangeSet) IsEmpty() bool {
	return len(cs.ToAdd) == 0 && len(cs.ToRemove) == 0 && len(cs.ToModify) == 0
}

// Counts returns the sizes of the three sets
func (cs NetChangeSet) Counts() (added, removed, modified int) {
	return len(cs.ToAdd), len(cs.ToRemove), len(cs.ToModify)
}

// Reduce collapses commits (oldest first) into a net change set. Only the
// latest add or remove of a path survives; modifications accumulate. A path
// first added and later removed within the same push leaves no trace.
func Reduce(commits []Commit, filter Filter) NetChangeSet {
	cs := New()
	// paths whose first add/remove event in this push was an add
	born := make(PathSet)
	seen := make(PathSet)

	for _, c := range commits {
		for _, p := range c.Added {
			if !filter.IsIcon(p) {
				continue
			}
			if !seen.Has(p) {
				seen[p] = struct{}{}
				born[p] = struct{}{}
			}
			cs.ToAdd[p] = struct{}{}
			delete(cs.ToRemove, p)
		}

		for _, p := range c.Removed {
			if !filter.IsIcon(p) {
				continue
			}
			seen[p] = struct{}{}
			delete(cs.ToAdd, p)
			if born.Has(p) {
				// never existed before the push, so there is nothing left to update either
				delete(cs.ToModify, p)
				continue
			}
			cs.ToRemove[p] = struct{}{}
		}

		for _, p := range c.Modified {
			if filter.IsIcon(p) {
				cs.ToModify[p] = struct{}{}
			}
		}
	}

	return cs
}
