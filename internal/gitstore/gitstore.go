package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// HashBlob returns the object id git assigns to a blob with this content
func HashBlob(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}

// Options configures a Repository
type Options struct {
	// RemoteName is pushed to on UpdateRef; empty keeps everything local
	RemoteName  string
	Auth        transport.AuthMethod
	AuthorName  string
	AuthorEmail string
}

var (
	_ store.Store         = (*Repository)(nil)
	_ store.ContentReader = (*Reader)(nil)
)

// Repository implements store.Store on top of a go-git repository. Objects
// are written to the local storer; UpdateRef pushes the new commit to the
// remote, conditional on the remote ref still pointing at the old head.
type Repository struct {
	repo *gogit.Repository
	opts Options
	log  *logger.Logger
	now  func() time.Time

	mu sync.Mutex
}

// New wraps an already opened repository
func New(repo *gogit.Repository, opts Options, log *logger.Logger) *Repository {
	if opts.AuthorName == "" {
		opts.AuthorName = "icon-sync"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "icon-sync@users.noreply.github.com"
	}
	return &Repository{
		repo: repo,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// Clone clones url into memory and returns a store that pushes back to it
func Clone(ctx context.Context, url string, opts Options, log *logger.Logger) (*Repository, error) {
	repo, err := gogit.CloneContext(ctx, memory.NewStorage(), nil, &gogit.CloneOptions{
		URL:        url,
		Auth:       opts.Auth,
		NoCheckout: true,
		Tags:       gogit.NoTags,
	})
	if err != nil {
		return nil, fmt.Errorf("error cloning git repository %q: %w", url, err)
	}
	if opts.RemoteName == "" {
		opts.RemoteName = gogit.DefaultRemoteName
	}
	return New(repo, opts, log), nil
}

func refName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.ReferenceName("refs/" + ref)
}

// refresh mirrors the remote's branches into the local storer
func (r *Repository) refresh(ctx context.Context) error {
	if r.opts.RemoteName == "" {
		return nil
	}
	err := r.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: r.opts.RemoteName,
		Auth:       r.opts.Auth,
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/heads/*"},
		Tags:       gogit.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s: %w", r.opts.RemoteName, err)
	}
	return nil
}

// GetRef resolves ref (e.g. "heads/master") to a commit SHA
func (r *Repository) GetRef(ctx context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refresh(ctx); err != nil {
		return "", err
	}

	resolved, err := r.repo.Reference(refName(ref), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", fmt.Errorf("ref %s: %w", ref, store.ErrNotFound)
		}
		return "", err
	}
	return resolved.Hash().String(), nil
}

// GetCommit reads a commit object
func (r *Repository) GetCommit(ctx context.Context, sha string) (*store.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := object.GetCommit(r.repo.Storer, plumbing.NewHash(sha))
	if err != nil {
		return nil, wrapNotFound(err, "commit", sha)
	}

	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &store.Commit{SHA: c.Hash.String(), TreeSHA: c.TreeHash.String(), Parents: parents}, nil
}

// GetTreeRecursive lists every blob and sub-tree reachable from a tree
func (r *Repository) GetTreeRecursive(ctx context.Context, sha string) ([]store.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, err := object.GetTree(r.repo.Storer, plumbing.NewHash(sha))
	if err != nil {
		return nil, wrapNotFound(err, "tree", sha)
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	var out []store.Entry
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree %s: %w", sha, err)
		}

		typ := store.EntryBlob
		switch entry.Mode {
		case filemode.Dir:
			typ = store.EntryTree
		case filemode.Submodule:
			typ = store.EntryCommit
		}
		out = append(out, store.Entry{
			Path: name,
			Mode: fmt.Sprintf("%06o", uint32(entry.Mode)),
			Type: typ,
			SHA:  entry.Hash.String(),
		})
	}
	return out, nil
}

// CreateBlob stores content as a blob
func (r *Repository) CreateBlob(ctx context.Context, content []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eo := r.repo.Storer.NewEncodedObject()
	eo.SetType(plumbing.BlobObject)
	eo.SetSize(int64(len(content)))

	w, err := eo.Writer()
	if err != nil {
		return "", err
	}
	_, err = w.Write(content)
	w.Close()
	if err != nil {
		return "", err
	}

	hash, err := r.repo.Storer.SetEncodedObject(eo)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// CreateTree stores a complete replacement tree built from a flat list of
// blob and gitlink entries; intermediate trees are derived from the paths.
func (r *Repository) CreateTree(ctx context.Context, entries []store.Entry) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trees := map[string]*object.Tree{"": {}}
	seen := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		if e.Type == store.EntryTree {
			return "", fmt.Errorf("tree entry %q: only blob entries can be submitted", e.Path)
		}
		if _, dup := seen[e.Path]; dup {
			return "", fmt.Errorf("duplicate tree entry %q", e.Path)
		}
		seen[e.Path] = struct{}{}

		mode, err := filemode.New(e.Mode)
		if err != nil {
			return "", fmt.Errorf("tree entry %q: invalid mode %q: %w", e.Path, e.Mode, err)
		}
		hash := plumbing.NewHash(e.SHA)
		// gitlinks point into another repository and are kept as they are
		if mode != filemode.Submodule {
			if err := r.repo.Storer.HasEncodedObject(hash); err != nil {
				return "", wrapNotFound(err, "blob", e.SHA)
			}
		}

		dir, file := split(e.Path)
		if file == "" {
			return "", fmt.Errorf("invalid tree entry path: %q; no file name", e.Path)
		}
		if _, isDir := trees[e.Path]; isDir {
			return "", fmt.Errorf("path %q is both a file and a directory", e.Path)
		}
		t, err := ensureTree(trees, dir)
		if err != nil {
			return "", err
		}
		t.Entries = append(t.Entries, object.TreeEntry{Name: file, Mode: mode, Hash: hash})
	}

	hash, err := storeTrees(r.repo.Storer, trees, "")
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// CreateCommit stores a commit object
func (r *Repository) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree := plumbing.NewHash(treeSHA)
	if _, err := object.GetTree(r.repo.Storer, tree); err != nil {
		return "", wrapNotFound(err, "tree", treeSHA)
	}

	now := r.now()
	sig := object.Signature{Name: r.opts.AuthorName, Email: r.opts.AuthorEmail, When: now}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  tree,
	}
	for _, p := range parents {
		commit.ParentHashes = append(commit.ParentHashes, plumbing.NewHash(p))
	}

	eo := r.repo.Storer.NewEncodedObject()
	if err := commit.Encode(eo); err != nil {
		return "", err
	}
	hash, err := r.repo.Storer.SetEncodedObject(eo)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// UpdateRef moves ref to sha. The move must be a fast-forward of the current
// value; otherwise store.ErrRefConflict is returned and nothing changes.
func (r *Repository) UpdateRef(ctx context.Context, ref, sha string) (*store.RefStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := refName(ref)
	newHash := plumbing.NewHash(sha)

	next, err := object.GetCommit(r.repo.Storer, newHash)
	if err != nil {
		return nil, wrapNotFound(err, "commit", sha)
	}

	old, err := r.repo.Storer.Reference(name)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, err
	}

	if old != nil {
		prev, err := object.GetCommit(r.repo.Storer, old.Hash())
		if err != nil {
			return nil, fmt.Errorf("read current head of %s: %w", name, err)
		}
		ff, err := prev.IsAncestor(next)
		if err != nil {
			return nil, err
		}
		if !ff {
			return nil, fmt.Errorf("%s is at %s: %w", name, old.Hash(), store.ErrRefConflict)
		}
	}

	if r.opts.RemoteName != "" {
		if err := r.push(ctx, name, newHash, old); err != nil {
			return nil, err
		}
	}

	if err := r.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(name, newHash), old); err != nil {
		return nil, fmt.Errorf("set %s: %w", name, err)
	}

	r.log.With("ref", name.String()).With("sha", sha).Debug("ref updated")
	return &store.RefStatus{Ref: name.String(), SHA: sha}, nil
}

func (r *Repository) push(ctx context.Context, name plumbing.ReferenceName, hash plumbing.Hash, old *plumbing.Reference) error {
	opts := &gogit.PushOptions{
		RemoteName: r.opts.RemoteName,
		Auth:       r.opts.Auth,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", hash, name))},
	}
	if old != nil {
		opts.RequireRemoteRefs = []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", old.Hash(), name))}
	}

	err := r.repo.PushContext(ctx, opts)
	switch {
	case err == nil, errors.Is(err, gogit.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, gogit.ErrForceNeeded), strings.Contains(err.Error(), "required to be"):
		return fmt.Errorf("push %s: %v: %w", name, err, store.ErrRefConflict)
	default:
		return fmt.Errorf("push %s: %w", name, err)
	}
}

func wrapNotFound(err error, kind, sha string) error {
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return fmt.Errorf("%s %s: %w", kind, sha, store.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, sha, err)
}
