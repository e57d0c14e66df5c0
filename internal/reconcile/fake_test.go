package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nahidhasan98/icon-sync/internal/gitstore"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory store.Store that records every call
type fakeStore struct {
	mu sync.Mutex

	ref     string
	head    string
	commits map[string]*store.Commit
	trees   map[string][]store.Entry
	blobs   map[string][]byte

	calls  []OpKind
	failOn OpKind
	// moveHead simulates a concurrent push landing before UpdateRef
	moveHead bool
	seq      int
}

func newFakeStore(current []store.Entry) *fakeStore {
	f := &fakeStore{
		ref:     "heads/master",
		commits: make(map[string]*store.Commit),
		trees:   make(map[string][]store.Entry),
		blobs:   make(map[string][]byte),
	}
	f.trees["tree-0"] = current
	f.head = "commit-0"
	f.commits[f.head] = &store.Commit{SHA: f.head, TreeSHA: "tree-0"}
	return f
}

func (f *fakeStore) call(op OpKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if f.failOn == op {
		return errInjected
	}
	return nil
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.calls {
		if op.IsWrite() {
			n++
		}
	}
	return n
}

func (f *fakeStore) GetRef(ctx context.Context, ref string) (string, error) {
	if err := f.call(OpGetRef); err != nil {
		return "", err
	}
	if ref != f.ref {
		return "", store.ErrNotFound
	}
	return f.head, nil
}

func (f *fakeStore) GetCommit(ctx context.Context, sha string) (*store.Commit, error) {
	if err := f.call(OpGetCommit); err != nil {
		return nil, err
	}
	c, ok := f.commits[sha]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetTreeRecursive(ctx context.Context, sha string) ([]store.Entry, error) {
	if err := f.call(OpGetTree); err != nil {
		return nil, err
	}
	t, ok := f.trees[sha]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateBlob(ctx context.Context, content []byte) (string, error) {
	if err := f.call(OpCreateBlob); err != nil {
		return "", err
	}
	sha := gitstore.HashBlob(content)
	f.mu.Lock()
	f.blobs[sha] = content
	f.mu.Unlock()
	return sha, nil
}

func (f *fakeStore) CreateTree(ctx context.Context, entries []store.Entry) (string, error) {
	if err := f.call(OpCreateTree); err != nil {
		return "", err
	}
	f.seq++
	sha := fmt.Sprintf("tree-%d", f.seq)
	f.trees[sha] = entries
	return sha, nil
}

func (f *fakeStore) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error) {
	if err := f.call(OpCreateCommit); err != nil {
		return "", err
	}
	f.seq++
	sha := fmt.Sprintf("commit-%d", f.seq)
	f.commits[sha] = &store.Commit{SHA: sha, TreeSHA: treeSHA, Parents: parents}
	return sha, nil
}

func (f *fakeStore) UpdateRef(ctx context.Context, ref, sha string) (*store.RefStatus, error) {
	if err := f.call(OpUpdateRef); err != nil {
		return nil, err
	}
	if f.moveHead {
		return nil, store.ErrRefConflict
	}
	c := f.commits[sha]
	if len(c.Parents) == 0 || c.Parents[0] != f.head {
		return nil, store.ErrRefConflict
	}
	f.head = sha
	return &store.RefStatus{Ref: "refs/" + ref, SHA: sha}, nil
}

// fakeSource serves file contents keyed by path
type fakeSource struct {
	mu    sync.Mutex
	files map[string][]byte
	reads []string
	locs  []store.Location
}

func (s *fakeSource) GetFileContent(ctx context.Context, loc store.Location, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, path)
	s.locs = append(s.locs, loc)
	b, ok := s.files[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}
