package reconcile

import (
	"fmt"
	"path"
	"sort"

	"github.com/nahidhasan98/icon-sync/internal/changeset"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// CollisionPolicy decides what happens when two source paths share a basename
type CollisionPolicy string

const (
	// CollisionFail aborts the reconciliation before any store write
	CollisionFail CollisionPolicy = "fail"
	// CollisionLastWriter lets the listing pipeline decide: a removal beats a
	// modification, which beats an addition, and within one set the
	// lexically last source path wins.
	CollisionLastWriter CollisionPolicy = "last-writer"
)

// TargetPath maps a source path onto the flat output directory
func TargetPath(outputDir, sourcePath string) string {
	return path.Join(outputDir, path.Base(sourcePath))
}

// FindCollisions returns one CollisionError per target path claimed by more
// than one distinct source path across all three sets.
func FindCollisions(cs changeset.NetChangeSet, outputDir string) []*CollisionError {
	claims := make(map[string]map[string]struct{})
	for _, set := range []changeset.PathSet{cs.ToAdd, cs.ToRemove, cs.ToModify} {
		for p := range set {
			t := TargetPath(outputDir, p)
			if claims[t] == nil {
				claims[t] = make(map[string]struct{})
			}
			claims[t][p] = struct{}{}
		}
	}

	var out []*CollisionError
	for t, paths := range claims {
		if len(paths) < 2 {
			continue
		}
		ce := &CollisionError{Target: t}
		for p := range paths {
			ce.Paths = append(ce.Paths, p)
		}
		sort.Strings(ce.Paths)
		out = append(out, ce)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Winner reports which source path decides the target entry of a collision
// under CollisionLastWriter. removed is true when the entry ends up deleted.
func Winner(cs changeset.NetChangeSet, outputDir string, c *CollisionError) (winner string, removed bool) {
	claimedBy := func(set changeset.PathSet) string {
		last := ""
		for _, p := range c.Paths {
			if set.Has(p) && TargetPath(outputDir, p) == c.Target && p > last {
				last = p
			}
		}
		return last
	}

	if p := claimedBy(cs.ToRemove); p != "" {
		return p, true
	}
	if p := claimedBy(cs.ToModify); p != "" {
		return p, false
	}
	return claimedBy(cs.ToAdd), false
}

// ContentPaths lists the source paths whose content must be read: everything
// added or modified, except paths the push ultimately removes.
func ContentPaths(cs changeset.NetChangeSet) []string {
	seen := make(changeset.PathSet)
	for p := range cs.ToAdd {
		seen[p] = struct{}{}
	}
	for p := range cs.ToModify {
		if !cs.ToRemove.Has(p) {
			seen[p] = struct{}{}
		}
	}
	return seen.Sorted()
}

// BuildListing computes the complete replacement listing for the target tree.
// blobs maps source path to the blob SHA created for it. current is never
// modified.
func BuildListing(current []store.Entry, cs changeset.NetChangeSet, blobs map[string]string, opts Options) ([]store.Entry, error) {
	added, err := entriesFor(cs.ToAdd.Sorted(), blobs, opts)
	if err != nil {
		return nil, err
	}

	var modifyPaths []string
	for _, p := range cs.ToModify.Sorted() {
		if !cs.ToRemove.Has(p) {
			modifyPaths = append(modifyPaths, p)
		}
	}
	modified, err := entriesFor(modifyPaths, blobs, opts)
	if err != nil {
		return nil, err
	}

	listing := append([]store.Entry(nil), current...)
	listing = replace(listing, added, opts.OutputDir)
	listing = append(withoutBasenames(listing, basenames(cs.ToModify), opts.OutputDir), modified...)
	listing = withoutBasenames(listing, basenames(cs.ToRemove), opts.OutputDir)
	listing = withoutTrees(listing)

	return listing, nil
}

// entriesFor builds one blob entry per target path. When several source paths
// share a target, the lexically last one wins.
func entriesFor(paths []string, blobs map[string]string, opts Options) ([]store.Entry, error) {
	byTarget := make(map[string]int)
	var out []store.Entry

	for _, p := range paths {
		sha, ok := blobs[p]
		if !ok {
			return nil, fmt.Errorf("no blob resolved for %s", p)
		}
		e := store.Entry{
			Path: TargetPath(opts.OutputDir, p),
			Mode: opts.FileMode,
			Type: store.EntryBlob,
			SHA:  sha,
		}
		if i, dup := byTarget[e.Path]; dup {
			out[i] = e
			continue
		}
		byTarget[e.Path] = len(out)
		out = append(out, e)
	}
	return out, nil
}

func replace(listing, entries []store.Entry, outputDir string) []store.Entry {
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[path.Base(e.Path)] = struct{}{}
	}
	return append(withoutBasenames(listing, names, outputDir), entries...)
}

func basenames(set changeset.PathSet) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for p := range set {
		out[path.Base(p)] = struct{}{}
	}
	return out
}

// withoutBasenames drops entries directly under outputDir whose file name is in names
func withoutBasenames(listing []store.Entry, names map[string]struct{}, outputDir string) []store.Entry {
	if len(names) == 0 {
		return listing
	}
	out := make([]store.Entry, 0, len(listing))
	for _, e := range listing {
		if path.Dir(e.Path) == path.Clean(outputDir) {
			if _, hit := names[path.Base(e.Path)]; hit {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func withoutTrees(listing []store.Entry) []store.Entry {
	out := make([]store.Entry, 0, len(listing))
	for _, e := range listing {
		if e.Type != store.EntryTree {
			out = append(out, e)
		}
	}
	return out
}
