package github

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v48/github"

	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// DefaultBaseURL is the public GitHub REST endpoint
const DefaultBaseURL = "https://api.github.com"

const userAgent = "icon-sync"

// Client talks to the Git Data and Contents APIs of one target repository.
// Authentication is whatever the supplied http.Client carries, usually an
// oauth2 transport built by NewHTTPClient.
type Client struct {
	api   *gh.Client
	owner string
	repo  string
	log   *logger.Logger
}

// NewClient creates a client for owner/repo. baseURL selects a GitHub
// Enterprise or test endpoint; empty means api.github.com.
func NewClient(httpClient *http.Client, baseURL, owner, repo string, log *logger.Logger) *Client {
	api, err := newAPI(httpClient, baseURL)
	if err != nil {
		log.Warnf("Ignoring GitHub API base URL: %v", err)
		api, _ = newAPI(httpClient, "")
	}

	return &Client{
		api:   api,
		owner: owner,
		repo:  repo,
		log:   log,
	}
}

// newAPI builds a go-github client rooted at baseURL
func newAPI(httpClient *http.Client, baseURL string) (*gh.Client, error) {
	api := gh.NewClient(httpClient)
	api.UserAgent = userAgent

	base := strings.TrimSuffix(baseURL, "/")
	if base == "" || base == DefaultBaseURL {
		return api, nil
	}
	u, err := url.Parse(base + "/")
	if err != nil {
		return nil, fmt.Errorf("github: invalid base URL %q: %w", baseURL, err)
	}
	api.BaseURL = u
	return api, nil
}

func (c *Client) location(loc store.Location) (string, string) {
	owner, repo := loc.Owner, loc.Repo
	if owner == "" {
		owner = c.owner
	}
	if repo == "" {
		repo = c.repo
	}
	return owner, repo
}

// check logs the call and maps API errors onto the store sentinels
func (c *Client) check(op, target string, resp *gh.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.log.With("op", op).With("target", target).With("status", status).Debug("github api call")

	if err == nil {
		return nil
	}

	var apiErr *gh.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("github: %s %s: %v: %w", op, target, err, store.ErrNotFound)
	}
	return fmt.Errorf("github: %s %s: %w", op, target, err)
}

// isUnprocessable reports a 422 answer, which GitHub gives for a rejected
// non-forced ref update
func isUnprocessable(err error) bool {
	var apiErr *gh.ErrorResponse
	return errors.As(err, &apiErr) && apiErr.Response != nil &&
		apiErr.Response.StatusCode == http.StatusUnprocessableEntity
}
