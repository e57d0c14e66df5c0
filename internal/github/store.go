package github

import (
	"context"
	"encoding/base64"
	"fmt"

	gh "github.com/google/go-github/v48/github"

	"github.com/nahidhasan98/icon-sync/internal/store"
)

var (
	_ store.Store         = (*Client)(nil)
	_ store.ContentReader = (*Client)(nil)
)

// GetRef resolves ref (e.g. "heads/master") to its commit SHA
func (c *Client) GetRef(ctx context.Context, ref string) (string, error) {
	out, resp, err := c.api.Git.GetRef(ctx, c.owner, c.repo, ref)
	if err := c.check("get_ref", ref, resp, err); err != nil {
		return "", err
	}
	return out.GetObject().GetSHA(), nil
}

// GetCommit reads a commit's tree and parents
func (c *Client) GetCommit(ctx context.Context, sha string) (*store.Commit, error) {
	out, resp, err := c.api.Git.GetCommit(ctx, c.owner, c.repo, sha)
	if err := c.check("get_commit", sha, resp, err); err != nil {
		return nil, err
	}

	commit := &store.Commit{SHA: out.GetSHA(), TreeSHA: out.GetTree().GetSHA()}
	for _, p := range out.Parents {
		commit.Parents = append(commit.Parents, p.GetSHA())
	}
	return commit, nil
}

// GetTreeRecursive lists a tree recursively. A truncated listing is an error
// since it cannot serve as the base of a complete replacement tree.
func (c *Client) GetTreeRecursive(ctx context.Context, sha string) ([]store.Entry, error) {
	tree, resp, err := c.api.Git.GetTree(ctx, c.owner, c.repo, sha, true)
	if err := c.check("get_tree", sha, resp, err); err != nil {
		return nil, err
	}
	if tree.GetTruncated() {
		return nil, fmt.Errorf("github: tree %s is too large to list recursively", sha)
	}

	entries := make([]store.Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, store.Entry{
			Path: e.GetPath(),
			Mode: e.GetMode(),
			Type: store.EntryType(e.GetType()),
			SHA:  e.GetSHA(),
		})
	}
	return entries, nil
}

// CreateBlob uploads content base64 encoded
func (c *Client) CreateBlob(ctx context.Context, content []byte) (string, error) {
	blob, resp, err := c.api.Git.CreateBlob(ctx, c.owner, c.repo, &gh.Blob{
		Content:  gh.String(base64.StdEncoding.EncodeToString(content)),
		Encoding: gh.String("base64"),
	})
	if err := c.check("create_blob", fmt.Sprintf("%d bytes", len(content)), resp, err); err != nil {
		return "", err
	}
	return blob.GetSHA(), nil
}

// CreateTree creates a tree from scratch; no base tree is sent so entries
// absent from the listing are dropped.
func (c *Client) CreateTree(ctx context.Context, entries []store.Entry) (string, error) {
	in := make([]*gh.TreeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type == store.EntryTree {
			return "", fmt.Errorf("github: tree entry %q: only blob entries can be submitted", e.Path)
		}
		in = append(in, &gh.TreeEntry{
			Path: gh.String(e.Path),
			Mode: gh.String(e.Mode),
			Type: gh.String(string(e.Type)),
			SHA:  gh.String(e.SHA),
		})
	}

	tree, resp, err := c.api.Git.CreateTree(ctx, c.owner, c.repo, "", in)
	if err := c.check("create_tree", fmt.Sprintf("%d entries", len(in)), resp, err); err != nil {
		return "", err
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object
func (c *Client) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (string, error) {
	in := &gh.Commit{
		Message: gh.String(message),
		Tree:    &gh.Tree{SHA: gh.String(treeSHA)},
	}
	for _, p := range parents {
		in.Parents = append(in.Parents, &gh.Commit{SHA: gh.String(p)})
	}

	commit, resp, err := c.api.Git.CreateCommit(ctx, c.owner, c.repo, in)
	if err := c.check("create_commit", treeSHA, resp, err); err != nil {
		return "", err
	}
	return commit.GetSHA(), nil
}

// UpdateRef moves ref without force. GitHub answers 422 when the update is
// not a fast-forward, which is reported as store.ErrRefConflict.
func (c *Client) UpdateRef(ctx context.Context, ref, sha string) (*store.RefStatus, error) {
	out, resp, err := c.api.Git.UpdateRef(ctx, c.owner, c.repo, &gh.Reference{
		Ref:    gh.String(ref),
		Object: &gh.GitObject{SHA: gh.String(sha)},
	}, false)
	if isUnprocessable(err) {
		return nil, fmt.Errorf("github: update_ref %s: %v: %w", ref, err, store.ErrRefConflict)
	}
	if err := c.check("update_ref", ref, resp, err); err != nil {
		return nil, err
	}
	return &store.RefStatus{Ref: out.GetRef(), SHA: out.GetObject().GetSHA(), URL: out.GetURL()}, nil
}

// GetFileContent reads a file from any repository at loc.Ref. Files over the
// Contents API size limit come back without content and are read through
// the raw blob endpoint instead.
func (c *Client) GetFileContent(ctx context.Context, loc store.Location, filePath string) ([]byte, error) {
	owner, repo := c.location(loc)

	var opts *gh.RepositoryContentGetOptions
	if loc.Ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: loc.Ref}
	}

	file, _, resp, err := c.api.Repositories.GetContents(ctx, owner, repo, filePath, opts)
	if err := c.check("get_content", filePath, resp, err); err != nil {
		return nil, err
	}
	if file == nil || (file.GetType() != "" && file.GetType() != "file") {
		return nil, fmt.Errorf("github: %s is not a file", filePath)
	}

	if file.GetEncoding() == "base64" && file.Content != nil && *file.Content != "" {
		content, err := file.GetContent()
		if err != nil {
			return nil, fmt.Errorf("github: decode %s: %w", filePath, err)
		}
		return []byte(content), nil
	}

	raw, resp, err := c.api.Git.GetBlobRaw(ctx, owner, repo, file.GetSHA())
	if err := c.check("get_blob", file.GetSHA(), resp, err); err != nil {
		return nil, err
	}
	return raw, nil
}
