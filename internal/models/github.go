package models

import (
	"strings"

	"github.com/nahidhasan98/icon-sync/internal/changeset"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// zeroSHA is the "after" of a push that deleted its branch
const zeroSHA = "0000000000000000000000000000000000000000"

// PushEvent represents the GitHub push webhook payload
type PushEvent struct {
	Ref        string           `json:"ref"`
	Before     string           `json:"before"`
	After      string           `json:"after"`
	Compare    string           `json:"compare"`
	Commits    []GitHubCommit   `json:"commits"`
	HeadCommit *GitHubCommit    `json:"head_commit"`
	Repository GitHubRepository `json:"repository"`
	Pusher     GitHubPusher     `json:"pusher"`
	Sender     GitHubUser       `json:"sender"`
	Created    bool             `json:"created"`
	Deleted    bool             `json:"deleted"`
	Forced     bool             `json:"forced"`
}

// GitHubCommit represents a commit in the GitHub webhook
type GitHubCommit struct {
	ID        string           `json:"id"`
	TreeID    string           `json:"tree_id"`
	Distinct  bool             `json:"distinct"`
	Message   string           `json:"message"`
	Timestamp string           `json:"timestamp"`
	URL       string           `json:"url"`
	Author    GitHubCommitUser `json:"author"`
	Committer GitHubCommitUser `json:"committer"`
	Added     []string         `json:"added"`
	Removed   []string         `json:"removed"`
	Modified  []string         `json:"modified"`
}

// GitHubCommitUser represents a user in a commit
type GitHubCommitUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// GitHubRepository represents a repository in the GitHub webhook
type GitHubRepository struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	Private       bool       `json:"private"`
	Owner         GitHubUser `json:"owner"`
	HTMLURL       string     `json:"html_url"`
	CloneURL      string     `json:"clone_url"`
	DefaultBranch string     `json:"default_branch"`
}

// GitHubUser represents a user in the GitHub webhook
type GitHubUser struct {
	Login string `json:"login"`
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// GitHubPusher represents the pusher in the GitHub webhook
type GitHubPusher struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RepositoryName returns the full repository name
func (p PushEvent) RepositoryName() string {
	if p.Repository.FullName != "" {
		return p.Repository.FullName
	}
	return p.RepositoryOwner() + "/" + p.Repository.Name
}

// RepositoryOwner returns the login of the owning user or organisation
func (p PushEvent) RepositoryOwner() string {
	if p.Repository.Owner.Login != "" {
		return p.Repository.Owner.Login
	}
	if p.Repository.Owner.Name != "" {
		return p.Repository.Owner.Name
	}
	owner, _, _ := strings.Cut(p.Repository.FullName, "/")
	return owner
}

// PusherName returns the pusher's name
func (p PushEvent) PusherName() string {
	if p.Pusher.Name != "" {
		return p.Pusher.Name
	}
	return p.Sender.Login
}

// Branch returns the branch name without refs/heads/ prefix
func (p PushEvent) Branch() string {
	return strings.TrimPrefix(p.Ref, "refs/heads/")
}

// IsBranchDeletion reports whether the push deleted its ref
func (p PushEvent) IsBranchDeletion() bool {
	return p.Deleted || p.After == zeroSHA
}

// ChangeCommits returns the per-commit file events, oldest first
func (p PushEvent) ChangeCommits() []changeset.Commit {
	commits := make([]changeset.Commit, len(p.Commits))
	for i, c := range p.Commits {
		commits[i] = changeset.Commit{
			ID:       c.ID,
			Added:    c.Added,
			Removed:  c.Removed,
			Modified: c.Modified,
		}
	}
	return commits
}

// SourceLocation identifies where changed files are read from: the pushed
// repository at the commit the push ended on.
func (p PushEvent) SourceLocation() store.Location {
	ref := p.After
	if ref == "" || ref == zeroSHA {
		ref = p.Repository.DefaultBranch
	}
	return store.Location{
		Owner: p.RepositoryOwner(),
		Repo:  p.Repository.Name,
		Ref:   ref,
	}
}
