// Package bitbucket implements the provider client for Bitbucket Cloud.
//
// Two fetch strategies exist for deciding which repositories to poll: an
// operator-curated whitelist, and full workspace -> repository enumeration.
// The whitelist is the default whenever one is configured (explicit operator
// intent, lower API quota cost); enumeration is only the fallback for an
// empty whitelist.
package bitbucket

import (
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
	chunkSize = 3
	// chunkDelay is the backoff inserted between chunks to respect rate limits.
	chunkDelay = 200 * time.Millisecond
	// pageSize is the Bitbucket page length for all listings.
	pageSize = 50
)

// WhitelistFunc supplies the operator-curated "workspace/repo" list. An
// empty result switches the client to workspace enumeration.
type WhitelistFunc func(ctx context.Context) ([]string, error)

// Client implements api.Client for Bitbucket Cloud.
type Client struct {
	baseURL    string
	httpClient api.HTTPClient
	whitelist  WhitelistFunc
	log        *zap.SugaredLogger
}

// NewClient creates a new Bitbucket client.
func NewClient(config api.ClientConfig, httpClient api.HTTPClient, whitelist WhitelistFunc, log *zap.SugaredLogger) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.bitbucket.org/2.0"
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		whitelist:  whitelist,
		log:        log,
	}
}

// FetchPullRequests resolves the current user, picks the repository list
// (whitelist first, enumeration as fallback) and collects pull requests in
// chunks of three with a 200ms pause between chunks. A single repository's
// failure contributes zero PRs and does not abort the fetch.
func (c *Client) FetchPullRequests(ctx context.Context, creds domain.Credentials, onlyOpen bool, since time.Time) ([]domain.PullRequest, error) {
	if !creds.HasBitbucket() {
		return nil, &api.ProviderError{Provider: domain.SourceBitbucket, Err: fmt.Errorf("no credentials configured")}
	}
	bb := creds.Bitbucket

	var user bitbucketUser
	err := api.WithRetry(ctx, func() error {
		return c.doRequest(ctx, c.baseURL+"/user", bb, &user)
	})
	if err != nil {
		return nil, &api.ProviderError{Provider: domain.SourceBitbucket, Err: fmt.Errorf("failed to get current user: %w", err)}
	}

	repos, err := c.resolveRepositories(ctx, bb)
	if err != nil {
		return nil, &api.ProviderError{Provider: domain.SourceBitbucket, Err: err}
	}

	query := buildQuery(onlyOpen, since)

	prs, err := api.InChunks(ctx, repos, chunkSize, chunkDelay, func(ctx context.Context, fullName string) []domain.PullRequest {
		pulls, err := c.listPullRequests(ctx, bb, fullName, query)
		if err != nil {
			// Lossy but available: skip the repository this run.
			c.log.Debugw("skipping repository", "provider", "bitbucket", "repository", fullName, "error", err)
			return nil
		}
		return convertPullRequests(pulls, user.AccountID)
	})
	if err != nil {
		return nil, &api.ProviderError{Provider: domain.SourceBitbucket, Err: err}
	}

	return prs, nil
}

// resolveRepositories returns the whitelist when one is configured, else
// enumerates workspaces and their repositories.
func (c *Client) resolveRepositories(ctx context.Context, bb *domain.BitbucketCredentials) ([]string, error) {
	whitelisted, err := c.whitelist(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load repository whitelist: %w", err)
	}
	if len(whitelisted) > 0 {
		c.log.Debugw("using repository whitelist", "provider", "bitbucket", "repositories", len(whitelisted))
		return whitelisted, nil
	}

	workspaces, err := listPaged[bitbucketWorkspace](ctx, c, bb, c.baseURL+"/workspaces?pagelen="+strconv.Itoa(pageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	var repos []string
	for _, ws := range workspaces {
		wsRepos, err := listPaged[bitbucketRepository](ctx, c, bb, c.baseURL+"/repositories/"+url.PathEscape(ws.Slug)+"?pagelen="+strconv.Itoa(pageSize))
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories in workspace %s: %w", ws.Slug, err)
		}
		for _, repo := range wsRepos {
			repos = append(repos, repo.FullName)
		}
	}

	c.log.Debugw("enumerated repositories", "provider", "bitbucket", "workspaces", len(workspaces), "repositories", len(repos))
	return repos, nil
}

// listPullRequests pages through a repository's pull requests with the
// given filter expression.
func (c *Client) listPullRequests(ctx context.Context, bb *domain.BitbucketCredentials, fullName, query string) ([]bitbucketPullRequest, error) {
	params := url.Values{}
	params.Set("pagelen", strconv.Itoa(pageSize))
	if query != "" {
		params.Set("q", query)
	}

	endpoint := c.baseURL + "/repositories/" + fullName + "/pullrequests?" + params.Encode()
	return listPaged[bitbucketPullRequest](ctx, c, bb, endpoint)
}

// buildQuery combines the update-time lower bound and the state filter
// into a single Bitbucket query expression. The lower bound is widened to
// the start of its day for a date-only comparison.
func buildQuery(onlyOpen bool, since time.Time) string {
	var query string
	if !since.IsZero() {
		day := since.UTC()
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		query = fmt.Sprintf("updated_on > %q", day.Format(time.RFC3339))
	}
	if onlyOpen {
		state := `state = "OPEN"`
		if query != "" {
			query = query + " AND " + state
		} else {
			query = state
		}
	}
	return query
}

// listPaged fetches every page of a Bitbucket collection, following the
// "next" links until exhausted.
func listPaged[T any](ctx context.Context, c *Client, bb *domain.BitbucketCredentials, endpoint string) ([]T, error) {
	var all []T
	for endpoint != "" {
		var page struct {
			Values []T    `json:"values"`
			Next   string `json:"next"`
		}
		err := api.WithRetry(ctx, func() error {
			return c.doRequest(ctx, endpoint, bb, &page)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Values...)
		endpoint = page.Next
	}
	return all, nil
}

// doRequest performs an authenticated GET against the Bitbucket API.
func (c *Client) doRequest(ctx context.Context, endpoint string, bb *domain.BitbucketCredentials, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(bb.Username, bb.AppPassword)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &api.StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// convertPullRequests converts Bitbucket pull requests to domain models,
// computing the viewer-relative flags by account-id comparison.
func convertPullRequests(pulls []bitbucketPullRequest, accountID string) []domain.PullRequest {
	prs := make([]domain.PullRequest, 0, len(pulls))
	for _, pull := range pulls {
		isReviewer := false
		for _, reviewer := range pull.Reviewers {
			if reviewer.AccountID == accountID {
				isReviewer = true
				break
			}
		}

		// Explicit approval counts as reviewed on Bitbucket.
		reviewed := false
		for _, participant := range pull.Participants {
			if participant.AccountID == accountID && participant.Approved {
				reviewed = true
				break
			}
		}

		prs = append(prs, domain.PullRequest{
			ID:          strconv.FormatInt(pull.ID, 10),
			Source:      domain.SourceBitbucket,
			Title:       pull.Title,
			Description: pull.Description,
			Author:      domain.Author{Name: pull.Author.DisplayName, AvatarURL: pull.Author.Links.Avatar.Href},
			Repository:  pull.Destination.Repository.FullName,
			Branch:      pull.Source.Branch.Name,
			Status:      convertStatus(pull.State),
			Comments:    pull.CommentCount,
			Commits:     len(pull.Commits),
			Created:     pull.CreatedOn,
			Updated:     pull.UpdatedOn,
			URL:         pull.Links.HTML.Href,
			IsReviewer:  isReviewer,
			Reviewed:    reviewed,
			IsOwner:     pull.Author.AccountID == accountID,
		})
	}
	return prs
}

// convertStatus converts a Bitbucket state to domain status.
func convertStatus(state string) domain.Status {
	switch state {
	case "MERGED":
		return domain.StatusMerged
	case "DECLINED":
		return domain.StatusClosed
	default:
		return domain.StatusOpen
	}
}

// Bitbucket API response types
type bitbucketUser struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

type bitbucketWorkspace struct {
	Slug string `json:"slug"`
}

type bitbucketRepository struct {
	FullName string `json:"full_name"`
}

type bitbucketAccount struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Links       struct {
		Avatar struct {
			Href string `json:"href"`
		} `json:"avatar"`
	} `json:"links"`
}

type bitbucketParticipant struct {
	AccountID string `json:"account_id"`
	Approved  bool   `json:"approved"`
}

type bitbucketPullRequest struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Author      bitbucketAccount `json:"author"`
	Destination struct {
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	} `json:"destination"`
	Source struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
	} `json:"source"`
	State        string            `json:"state"`
	CommentCount int               `json:"comment_count"`
	Commits      []json.RawMessage `json:"commits"`
	CreatedOn    time.Time         `json:"created_on"`
	UpdatedOn    time.Time         `json:"updated_on"`
	Links        struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
	Reviewers    []bitbucketAccount     `json:"reviewers"`
	Participants []bitbucketParticipant `json:"participants"`
}
