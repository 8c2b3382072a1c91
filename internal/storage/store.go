// Package storage provides the key-value persistence substrate for the
// sync core. Values round-trip through JSON; the core does not care which
// backend holds them.
package storage

import "context"

// Storage keys. Kept stable so an existing data set survives upgrades.
const (
	KeyPullRequests    = "pr-viewer-prs"
	KeyLastSync        = "pr-viewer-last-sync"
	KeyCredentials     = "pr-viewer-credentials"
	KeyRefreshInterval = "pr-viewer-refresh-interval"
	KeyWhitelist       = "bb-whitelisted-repos"
	KeyReviewerLists   = "gh-reviewer-lists"
)

// Store is the generic get/set/clear contract the sync core consumes.
type Store interface {
	// Get unmarshals the value stored under key into v. The boolean reports
	// whether the key was present.
	Get(ctx context.Context, key string, v interface{}) (bool, error)

	// Set stores v under key, replacing any previous value.
	Set(ctx context.Context, key string, v interface{}) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key.
	Clear(ctx context.Context) error
}
