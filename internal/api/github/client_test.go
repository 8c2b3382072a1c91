package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vilaca/pr-dashboard/internal/api"
	"github.com/vilaca/pr-dashboard/internal/domain"
)

// mockHTTPClient is a test double for api.HTTPClient.
type mockHTTPClient struct {
	mu     sync.Mutex
	doFunc func(req *http.Request) (*http.Response, error)
	calls  []string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req.Method+" "+req.URL.Path)
	m.mu.Unlock()
	return m.doFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testCreds() domain.Credentials {
	return domain.Credentials{GitHub: &domain.GitHubCredentials{Token: "test-token"}}
}

// TestFetchPullRequests tests the happy path: viewer lookup, repository
// listing, per-repository PR listing, and normalization.
// Follows AAA (Arrange, Act, Assert) pattern.
func TestFetchPullRequests(t *testing.T) {
	// Arrange
	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("expected bearer token header, got %q", got)
			}

			switch {
			case req.URL.Path == "/user":
				return jsonResponse(http.StatusOK, `{"login":"octocat","avatar_url":"https://example.com/octocat.png"}`), nil
			case req.URL.Path == "/user/repos":
				return jsonResponse(http.StatusOK, `[{"name":"widgets","full_name":"acme/widgets","owner":{"login":"acme"}}]`), nil
			case req.URL.Path == "/repos/acme/widgets/pulls":
				return jsonResponse(http.StatusOK, `[
					{"id": 101, "title": "Add widget", "body": "desc",
					 "user": {"login": "octocat", "avatar_url": "https://example.com/octocat.png"},
					 "head": {"ref": "feature/widget"},
					 "state": "open", "merged": false,
					 "comments": 2, "commits": 3,
					 "created_at": "2024-01-01T10:00:00Z", "updated_at": "2024-01-02T10:00:00Z",
					 "html_url": "https://github.com/acme/widgets/pull/7",
					 "requested_reviewers": [{"login": "octocat"}]}
				]`), nil
			default:
				t.Errorf("unexpected request: %s", req.URL.Path)
				return jsonResponse(http.StatusNotFound, `{}`), nil
			}
		},
	}

	client := NewClient(api.ClientConfig{BaseURL: "https://api.example.com"}, mockHTTP, zap.NewNop().Sugar())

	// Act
	prs, err := client.FetchPullRequests(context.Background(), testCreds(), true, time.Time{})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(prs) != 1 {
		t.Fatalf("expected 1 PR, got %d", len(prs))
	}

	pr := prs[0]
	if pr.ID != "101" {
		t.Errorf("expected PR ID '101', got %q", pr.ID)
	}
	if pr.Source != domain.SourceGitHub {
		t.Errorf("expected source github, got %q", pr.Source)
	}
	if pr.Repository != "acme/widgets" {
		t.Errorf("expected repository 'acme/widgets', got %q", pr.Repository)
	}
	if pr.Branch != "feature/widget" {
		t.Errorf("expected branch 'feature/widget', got %q", pr.Branch)
	}
	if pr.Status != domain.StatusOpen {
		t.Errorf("expected status open, got %q", pr.Status)
	}
	if !pr.IsOwner {
		t.Error("expected isOwner for viewer-authored PR")
	}
	if !pr.IsReviewer {
		t.Error("expected isReviewer when viewer is a requested reviewer")
	}
	if pr.Reviewed {
		t.Error("expected reviewed=false while a reviewer request is pending")
	}
}

// TestFetchPullRequests_MergedStatus tests the merged flag takes priority
// over the raw state.
func TestFetchPullRequests_MergedStatus(t *testing.T) {
	// Arrange
	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			switch {
			case req.URL.Path == "/user":
				return jsonResponse(http.StatusOK, `{"login":"octocat"}`), nil
			case req.URL.Path == "/user/repos":
				return jsonResponse(http.StatusOK, `[{"full_name":"acme/widgets","owner":{"login":"acme"}}]`), nil
			default:
				return jsonResponse(http.StatusOK, `[
					{"id": 1, "state": "closed", "merged": true, "requested_reviewers": [],
					 "head": {"ref": "main"}},
					{"id": 2, "state": "closed", "merged": false, "requested_reviewers": [],
					 "head": {"ref": "main"}}
				]`), nil
			}
		},
	}

	client := NewClient(api.ClientConfig{}, mockHTTP, zap.NewNop().Sugar())

	// Act
	prs, err := client.FetchPullRequests(context.Background(), testCreds(), false, time.Time{})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if prs[0].Status != domain.StatusMerged {
		t.Errorf("expected merged, got %q", prs[0].Status)
	}
	if prs[1].Status != domain.StatusClosed {
		t.Errorf("expected closed, got %q", prs[1].Status)
	}
}

// TestFetchPullRequests_RepositoryFailureIsolated tests that one failing
// repository contributes zero PRs without aborting the fetch.
func TestFetchPullRequests_RepositoryFailureIsolated(t *testing.T) {
	// Arrange
	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			switch {
			case req.URL.Path == "/user":
				return jsonResponse(http.StatusOK, `{"login":"octocat"}`), nil
			case req.URL.Path == "/user/repos":
				return jsonResponse(http.StatusOK, `[
					{"full_name":"acme/broken","owner":{"login":"acme"}},
					{"full_name":"acme/widgets","owner":{"login":"acme"}}
				]`), nil
			case strings.Contains(req.URL.Path, "broken"):
				return jsonResponse(http.StatusNotFound, `{"message":"Not Found"}`), nil
			default:
				return jsonResponse(http.StatusOK, `[
					{"id": 7, "state": "open", "head": {"ref": "main"}, "requested_reviewers": []}
				]`), nil
			}
		},
	}

	client := NewClient(api.ClientConfig{}, mockHTTP, zap.NewNop().Sugar())

	// Act
	prs, err := client.FetchPullRequests(context.Background(), testCreds(), true, time.Time{})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(prs) != 1 {
		t.Fatalf("expected 1 PR from the healthy repository, got %d", len(prs))
	}
}

// TestFetchPullRequests_SinceParameter tests that the since lower bound is
// forwarded to both listings.
func TestFetchPullRequests_SinceParameter(t *testing.T) {
	// Arrange
	since := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
	sinceSeen := 0

	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("since") == "2024-01-09T10:00:00Z" {
				sinceSeen++
			}
			switch {
			case req.URL.Path == "/user":
				return jsonResponse(http.StatusOK, `{"login":"octocat"}`), nil
			case req.URL.Path == "/user/repos":
				return jsonResponse(http.StatusOK, `[{"full_name":"acme/widgets","owner":{"login":"acme"}}]`), nil
			default:
				return jsonResponse(http.StatusOK, `[]`), nil
			}
		},
	}

	client := NewClient(api.ClientConfig{}, mockHTTP, zap.NewNop().Sugar())

	// Act
	_, err := client.FetchPullRequests(context.Background(), testCreds(), true, since)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if sinceSeen != 2 {
		t.Errorf("expected since on repository and PR listings, saw it %d times", sinceSeen)
	}
}

// TestFetchPullRequests_AuthError tests that an auth failure surfaces as a
// provider-scoped error without retrying.
func TestFetchPullRequests_AuthError(t *testing.T) {
	// Arrange
	calls := 0
	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(http.StatusUnauthorized, `{"message":"Bad credentials"}`), nil
		},
	}

	client := NewClient(api.ClientConfig{}, mockHTTP, zap.NewNop().Sugar())

	// Act
	_, err := client.FetchPullRequests(context.Background(), testCreds(), true, time.Time{})

	// Assert
	var provErr *api.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}

	if provErr.Provider != domain.SourceGitHub {
		t.Errorf("expected provider github, got %q", provErr.Provider)
	}

	if calls != 1 {
		t.Errorf("expected no retries on 401, got %d calls", calls)
	}
}

// TestRequestReviewers tests the reviewer-request mutation.
func TestRequestReviewers(t *testing.T) {
	// Arrange
	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", req.Method)
			}
			if req.URL.Path != "/repos/acme/widgets/pulls/7/requested_reviewers" {
				t.Errorf("unexpected path %s", req.URL.Path)
			}

			var body map[string][]string
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if len(body["reviewers"]) != 2 {
				t.Errorf("expected 2 reviewers, got %v", body["reviewers"])
			}

			return jsonResponse(http.StatusCreated, `{}`), nil
		},
	}

	client := NewClient(api.ClientConfig{}, mockHTTP, zap.NewNop().Sugar())

	// Act
	err := client.RequestReviewers(context.Background(), testCreds(), "acme", "widgets", 7, []string{"alice", "bob"})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

// TestGetUser tests username lookup and the login fallback for an empty
// display name.
func TestGetUser(t *testing.T) {
	// Arrange
	mockHTTP := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/users/alice" {
				t.Errorf("unexpected path %s", req.URL.Path)
			}
			return jsonResponse(http.StatusOK, `{"login":"alice","name":"","avatar_url":"https://example.com/alice.png"}`), nil
		},
	}

	client := NewClient(api.ClientConfig{}, mockHTTP, zap.NewNop().Sugar())

	// Act
	user, err := client.GetUser(context.Background(), testCreds(), "alice")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if user.Name != "alice" {
		t.Errorf("expected login fallback for empty name, got %q", user.Name)
	}
}
