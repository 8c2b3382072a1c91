package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vilaca/pr-dashboard/internal/api"
	"github.com/vilaca/pr-dashboard/internal/domain"
)

const (
	// chunkSize bounds how many repositories are queried concurrently.
	chunkSize = 5
	// chunkDelay is the backoff inserted between chunks to respect rate limits.
	chunkDelay = 100 * time.Millisecond
)

// Client implements api.Client for GitHub.
// Only handles GitHub API communication; normalization into the shared
// domain schema happens in the convert functions below.
type Client struct {
	baseURL    string
	httpClient api.HTTPClient
	log        *zap.SugaredLogger
}

// NewClient creates a new GitHub client.
// Uses dependency injection for the HTTP client so tests can mock transport.
func NewClient(config api.ClientConfig, httpClient api.HTTPClient, log *zap.SugaredLogger) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log,
	}
}

// FetchPullRequests lists repositories accessible to the authenticated user
// and collects their pull requests, normalized into the shared schema.
// Repositories are queried in chunks of five with a short delay between
// chunks; a single repository's failure contributes zero PRs and does not
// abort the fetch.
func (c *Client) FetchPullRequests(ctx context.Context, creds domain.Credentials, onlyOpen bool, since time.Time) ([]domain.PullRequest, error) {
	if !creds.HasGitHub() {
		return nil, &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("no credentials configured")}
	}
	token := creds.GitHub.Token

	var viewer githubUser
	err := api.WithRetry(ctx, func() error {
		return c.doRequest(ctx, http.MethodGet, c.baseURL+"/user", token, nil, &viewer)
	})
	if err != nil {
		return nil, &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("failed to get authenticated user: %w", err)}
	}

	repos, err := c.listRepositories(ctx, token, since)
	if err != nil {
		return nil, &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("failed to get repositories: %w", err)}
	}

	prs, err := api.InChunks(ctx, repos, chunkSize, chunkDelay, func(ctx context.Context, repo githubRepository) []domain.PullRequest {
		pulls, err := c.listPullRequests(ctx, token, repo, onlyOpen, since)
		if err != nil {
			// Lossy but available: skip the repository this run.
			c.log.Debugw("skipping repository", "provider", "github", "repository", repo.FullName, "error", err)
			return nil
		}
		return c.convertPullRequests(pulls, repo, viewer.Login)
	})
	if err != nil {
		return nil, &api.ProviderError{Provider: domain.SourceGitHub, Err: err}
	}

	return prs, nil
}

// RequestReviewers asks GitHub to add the given logins as requested
// reviewers on a pull request.
func (c *Client) RequestReviewers(ctx context.Context, creds domain.Credentials, owner, repo string, number int, reviewers []string) error {
	if !creds.HasGitHub() {
		return &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("no credentials configured")}
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/requested_reviewers", c.baseURL, owner, repo, number)
	body := map[string][]string{"reviewers": reviewers}

	err := api.WithRetry(ctx, func() error {
		return c.doRequest(ctx, http.MethodPost, endpoint, creds.GitHub.Token, body, nil)
	})
	if err != nil {
		return &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("failed to request reviewers: %w", err)}
	}
	return nil
}

// GetUser resolves a GitHub account by username.
func (c *Client) GetUser(ctx context.Context, creds domain.Credentials, username string) (domain.GithubUser, error) {
	if !creds.HasGitHub() {
		return domain.GithubUser{}, &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("no credentials configured")}
	}

	var user githubUser
	err := api.WithRetry(ctx, func() error {
		return c.doRequest(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(username), creds.GitHub.Token, nil, &user)
	})
	if err != nil {
		return domain.GithubUser{}, &api.ProviderError{Provider: domain.SourceGitHub, Err: fmt.Errorf("user %q not found: %w", username, err)}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return domain.GithubUser{Login: user.Login, Name: name, AvatarURL: user.AvatarURL}, nil
}

// listRepositories pages through the repositories accessible to the
// authenticated user, most recently updated first.
func (c *Client) listRepositories(ctx context.Context, token string, since time.Time) ([]githubRepository, error) {
	var all []githubRepository
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("sort", "updated")
		params.Set("per_page", strconv.Itoa(api.DefaultPageSize))
		params.Set("page", strconv.Itoa(page))
		if !since.IsZero() {
			params.Set("since", since.UTC().Format(time.RFC3339))
		}

		var repos []githubRepository
		err := api.WithRetry(ctx, func() error {
			return c.doRequest(ctx, http.MethodGet, c.baseURL+"/user/repos?"+params.Encode(), token, nil, &repos)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, repos...)
		if len(repos) < api.DefaultPageSize {
			return all, nil
		}
	}
}

// listPullRequests pages through a repository's pull requests, most
// recently updated first.
func (c *Client) listPullRequests(ctx context.Context, token string, repo githubRepository, onlyOpen bool, since time.Time) ([]githubPullRequest, error) {
	state := "all"
	if onlyOpen {
		state = "open"
	}

	var all []githubPullRequest
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("state", state)
		params.Set("sort", "updated")
		params.Set("direction", "desc")
		params.Set("per_page", strconv.Itoa(api.DefaultPageSize))
		params.Set("page", strconv.Itoa(page))
		if !since.IsZero() {
			params.Set("since", since.UTC().Format(time.RFC3339))
		}

		endpoint := fmt.Sprintf("%s/repos/%s/pulls?%s", c.baseURL, repo.FullName, params.Encode())

		var pulls []githubPullRequest
		err := api.WithRetry(ctx, func() error {
			return c.doRequest(ctx, http.MethodGet, endpoint, token, nil, &pulls)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, pulls...)
		if len(pulls) < api.DefaultPageSize {
			return all, nil
		}
	}
}

// doRequest performs an HTTP request to the GitHub API.
func (c *Client) doRequest(ctx context.Context, method, endpoint, token string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &api.StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// convertPullRequests converts GitHub pull requests to domain models.
func (c *Client) convertPullRequests(pulls []githubPullRequest, repo githubRepository, viewer string) []domain.PullRequest {
	prs := make([]domain.PullRequest, 0, len(pulls))
	for _, pull := range pulls {
		var authorName, authorAvatar string
		if pull.User != nil {
			authorName = pull.User.Login
			authorAvatar = pull.User.AvatarURL
		}

		isReviewer := false
		for _, reviewer := range pull.RequestedReviewers {
			if reviewer.Login == viewer {
				isReviewer = true
				break
			}
		}

		prs = append(prs, domain.PullRequest{
			ID:          strconv.FormatInt(pull.ID, 10),
			Source:      domain.SourceGitHub,
			Title:       pull.Title,
			Description: pull.Body,
			Author:      domain.Author{Name: authorName, AvatarURL: authorAvatar},
			Repository:  repo.FullName,
			Branch:      pull.Head.Ref,
			Status:      convertStatus(pull.State, pull.Merged),
			Comments:    pull.Comments,
			Commits:     pull.Commits,
			Created:     pull.CreatedAt,
			Updated:     pull.UpdatedAt,
			URL:         pull.HTMLURL,
			IsReviewer:  isReviewer,
			// No pending reviewer request counts as reviewed on GitHub.
			Reviewed: len(pull.RequestedReviewers) == 0,
			IsOwner:  pull.User != nil && pull.User.Login == viewer,
		})
	}
	return prs
}

// convertStatus converts GitHub state and merged flag to domain status.
func convertStatus(state string, merged bool) domain.Status {
	if merged {
		return domain.StatusMerged
	}
	if state == "closed" {
		return domain.StatusClosed
	}
	return domain.StatusOpen
}

// GitHub API response types
type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubRepository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type githubPullRequest struct {
	ID                 int64       `json:"id"`
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	User               *githubUser `json:"user"`
	Head               struct {
		Ref string `json:"ref"`
	} `json:"head"`
	State              string       `json:"state"`
	Merged             bool         `json:"merged"`
	Comments           int          `json:"comments"`
	Commits            int          `json:"commits"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	HTMLURL            string       `json:"html_url"`
	RequestedReviewers []githubUser `json:"requested_reviewers"`
}
