package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vilaca/pr-dashboard/internal/domain"
)

const (
	// MaxRetryAttempts is the total number of attempts for a retried request.
	MaxRetryAttempts = 3
	// RetryDelay is the fixed delay between retry attempts.
	RetryDelay = 1 * time.Second
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 100
)

// Client defines the interface for code-hosting platform clients.
// Exactly two implementations exist (github, bitbucket); consumers depend
// on this interface, not on the concrete clients.
type Client interface {
	// FetchPullRequests returns the normalized pull requests visible to the
	// authenticated user. When since is non-zero it is used as an update-time
	// lower bound to narrow the fetch window. Failures are reported as
	// *ProviderError.
	FetchPullRequests(ctx context.Context, creds domain.Credentials, onlyOpen bool, since time.Time) ([]domain.PullRequest, error)
}

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds common configuration for API clients.
type ClientConfig struct {
	BaseURL string
}

// ProviderError scopes a failure to a single platform. A provider-scoped
// failure does not abort the other provider's fetch; the orchestrator
// collects these and leaves the failing provider's checkpoint untouched.
type ProviderError struct {
	Provider domain.Source
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// IsTransient reports whether an error is worth retrying: server errors
// (5xx), rate limiting (429), or a transport-level failure that never
// produced a status code. Anything else (auth failures, 404s, decode
// errors) propagates immediately.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}
	// No status code means the request itself failed (DNS, connection reset,
	// timeout). Treat as transient.
	return true
}
