// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Tree assembly in this file is derived from the kpt porch git repository
// package (porch/pkg/git/commit.go).

package gitstore

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

func split(p string) (string, string) {
	i := strings.LastIndex(p, "/")
	if i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

// ensureTree returns the tree at fullPath, creating it and any missing
// parents. Directory entries are added to parents with a zero hash and
// filled in by storeTrees.
func ensureTree(trees map[string]*object.Tree, fullPath string) (*object.Tree, error) {
	if tree, ok := trees[fullPath]; ok {
		return tree, nil
	}

	dir, base := split(fullPath)
	parent, err := ensureTree(trees, dir)
	if err != nil {
		return nil, err
	}

	for _, e := range parent.Entries {
		if e.Name == base {
			return nil, fmt.Errorf("path %q is both a file and a directory", fullPath)
		}
	}
	parent.Entries = append(parent.Entries, object.TreeEntry{Name: base, Mode: filemode.Dir})

	tree := &object.Tree{}
	trees[fullPath] = tree
	return tree, nil
}

func storeTrees(s storer.EncodedObjectStorer, trees map[string]*object.Tree, treePath string) (plumbing.Hash, error) {
	tree, ok := trees[treePath]
	if !ok {
		return plumbing.Hash{}, fmt.Errorf("failed to find a tree %q", treePath)
	}

	entries := tree.Entries
	sort.Slice(entries, func(i, j int) bool {
		return entrySortKey(&entries[i]) < entrySortKey(&entries[j])
	})

	for i := range entries {
		e := &entries[i]
		if e.Mode != filemode.Dir || !e.Hash.IsZero() {
			continue
		}
		hash, err := storeTrees(s, trees, path.Join(treePath, e.Name))
		if err != nil {
			return plumbing.Hash{}, err
		}
		e.Hash = hash
	}

	eo := s.NewEncodedObject()
	if err := tree.Encode(eo); err != nil {
		return plumbing.Hash{}, err
	}
	hash, err := s.SetEncodedObject(eo)
	if err != nil {
		return plumbing.Hash{}, err
	}
	tree.Hash = hash
	return hash, nil
}

// Git sorts tree entries as though directories have '/' appended to them.
func entrySortKey(e *object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}
