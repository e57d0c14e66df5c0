package store

import (
	"context"
	"errors"
)

// EntryType is the kind of object a tree entry points at
type EntryType string

const (
	EntryBlob EntryType = "blob"
	EntryTree EntryType = "tree"
	// EntryCommit is a submodule gitlink; its SHA names a commit in another repository
	EntryCommit EntryType = "commit"
)

// Git file modes as the REST API spells them
const (
	ModeFile       = "100644"
	ModeExecutable = "100755"
	ModeDir        = "040000"
	ModeSubmodule  = "160000"
)

var (
	// ErrRefConflict is returned when a ref update is not a fast-forward of
	// the value the reconciliation started from.
	ErrRefConflict = errors.New("ref update rejected: not a fast-forward")

	// ErrNotFound is returned when a ref, object or file does not exist
	ErrNotFound = errors.New("object not found")
)

// Entry is one node of a flat recursive tree listing. SHA is an opaque
// content reference issued by the store.
type Entry struct {
	Path string    `json:"path"`
	Mode string    `json:"mode"`
	Type EntryType `json:"type"`
	SHA  string    `json:"sha"`
}

// Commit is the part of a commit object the reconciler needs
type Commit struct {
	SHA     string   `json:"sha"`
	TreeSHA string   `json:"tree_sha"`
	Parents []string `json:"parents"`
}

// RefStatus is what the store reports after moving a ref
type RefStatus struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
	URL string `json:"url,omitempty"`
}

// Location identifies the repository and revision source files are read from
type Location struct {
	Owner string
	Repo  string
	Ref   string // commit SHA or branch; empty means the default branch
}

// Store is a versioned content-addressable object store holding the target
// repository. Ref names are given without the "refs/" prefix, e.g. "heads/master".
type Store interface {
	GetRef(ctx context.Context, ref string) (string, error)
	GetCommit(ctx context.Context, sha string) (*Commit, error)
	GetTreeRecursive(ctx context.Context, sha string) ([]Entry, error)
	CreateBlob(ctx context.Context, content []byte) (string, error)
	CreateTree(ctx context.Context, entries []Entry) (string, error)
	CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error)
	UpdateRef(ctx context.Context, ref, sha string) (*RefStatus, error)
}

// ContentReader reads file contents from the source repository
type ContentReader interface {
	GetFileContent(ctx context.Context, loc Location, path string) ([]byte, error)
}
