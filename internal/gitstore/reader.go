package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/nahidhasan98/icon-sync/internal/store"
)

// Reader implements store.ContentReader by reading files out of git
// repositories, cloned into memory on first use.
type Reader struct {
	urlFormat string // fmt pattern taking owner and repo
	auth      transport.AuthMethod

	mu    sync.Mutex
	repos map[string]*gogit.Repository
}

// NewReader creates a reader that clones fmt.Sprintf(urlFormat, owner, repo)
func NewReader(urlFormat string, auth transport.AuthMethod) *Reader {
	return &Reader{
		urlFormat: urlFormat,
		auth:      auth,
		repos:     make(map[string]*gogit.Repository),
	}
}

// NewRepositoryReader serves every location from repo
func NewRepositoryReader(repo *gogit.Repository) *Reader {
	r := NewReader("", nil)
	r.repos[""] = repo
	return r
}

// GetFileContent returns the content of filePath at loc.Ref. The ref may be a
// commit SHA, a branch or any revision go-git can resolve; empty means HEAD.
func (r *Reader) GetFileContent(ctx context.Context, loc store.Location, filePath string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	repo, err := r.repository(ctx, loc)
	if err != nil {
		return nil, err
	}

	hash, err := r.resolve(ctx, repo, loc.Ref)
	if err != nil {
		return nil, err
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, wrapNotFound(err, "commit", hash.String())
	}
	file, err := commit.File(filePath)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s at %s: %w", filePath, loc.Ref, store.ErrNotFound)
		}
		return nil, err
	}

	rd, err := file.Reader()
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

func (r *Reader) repository(ctx context.Context, loc store.Location) (*gogit.Repository, error) {
	if repo, ok := r.repos[""]; ok {
		return repo, nil
	}

	key := loc.Owner + "/" + loc.Repo
	if repo, ok := r.repos[key]; ok {
		return repo, nil
	}

	url := fmt.Sprintf(r.urlFormat, loc.Owner, loc.Repo)
	repo, err := gogit.CloneContext(ctx, memory.NewStorage(), nil, &gogit.CloneOptions{
		URL:        url,
		Auth:       r.auth,
		NoCheckout: true,
		Tags:       gogit.NoTags,
	})
	if err != nil {
		return nil, fmt.Errorf("error cloning git repository %q: %w", url, err)
	}
	r.repos[key] = repo
	return repo, nil
}

// resolve finds ref locally, fetching once from origin if it is unknown
func (r *Reader) resolve(ctx context.Context, repo *gogit.Repository, ref string) (*plumbing.Hash, error) {
	rev := plumbing.Revision(ref)
	if ref == "" {
		rev = plumbing.Revision(plumbing.HEAD)
	}

	hash, err := repo.ResolveRevision(rev)
	if err == nil {
		return hash, nil
	}

	if _, remoteErr := repo.Remote(gogit.DefaultRemoteName); remoteErr != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, store.ErrNotFound)
	}
	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		Auth:     r.auth,
		RefSpecs: []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Tags:     gogit.NoTags,
		Force:    true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("fetch for %s: %w", ref, err)
	}

	hash, err = repo.ResolveRevision(rev)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, store.ErrNotFound)
	}
	return hash, nil
}
