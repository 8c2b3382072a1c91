package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/pr-dashboard/internal/domain"
)

func pr(source domain.Source, id string, status domain.Status) domain.PullRequest {
	return domain.PullRequest{ID: id, Source: source, Status: status}
}

func keysOf(prs []domain.PullRequest) map[domain.Key]domain.PullRequest {
	m := make(map[domain.Key]domain.PullRequest, len(prs))
	for _, p := range prs {
		m[p.Key()] = p
	}
	return m
}

func TestMerge_Idempotence(t *testing.T) {
	existing := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusOpen),
		pr(domain.SourceBitbucket, "1", domain.StatusMerged),
	}

	merged := Merge(existing, nil)

	assert.Equal(t, existing, merged)
}

func TestMerge_Replacement(t *testing.T) {
	// Existing set has one GitHub PR; the sync refetches it merged and
	// finds one new PR.
	existing := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusOpen),
	}
	incoming := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusMerged),
		pr(domain.SourceGitHub, "2", domain.StatusOpen),
	}

	merged := Merge(existing, incoming)

	require.Len(t, merged, 2)
	byKey := keysOf(merged)
	assert.Equal(t, domain.StatusMerged, byKey[domain.Key{Source: domain.SourceGitHub, ID: "1"}].Status)
	assert.Equal(t, domain.StatusOpen, byKey[domain.Key{Source: domain.SourceGitHub, ID: "2"}].Status)
}

func TestMerge_SameIDAcrossProviders(t *testing.T) {
	// The composite key keeps identically numbered PRs from different
	// platforms apart.
	existing := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusOpen),
	}
	incoming := []domain.PullRequest{
		pr(domain.SourceBitbucket, "1", domain.StatusOpen),
	}

	merged := Merge(existing, incoming)

	assert.Len(t, merged, 2)
}

func TestMerge_SelfHealsExistingDuplicates(t *testing.T) {
	dup := domain.Key{Source: domain.SourceGitHub, ID: "1"}
	existing := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusOpen),
		pr(domain.SourceGitHub, "1", domain.StatusClosed), // pre-existing corruption
		pr(domain.SourceGitHub, "2", domain.StatusOpen),
	}
	incoming := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusMerged),
	}

	merged := Merge(existing, incoming)

	require.Len(t, merged, 2)
	assert.Equal(t, domain.StatusMerged, keysOf(merged)[dup].Status)

	// Even without a refetch, duplicates collapse.
	merged = Merge(existing, nil)
	require.Len(t, merged, 2)
}

func TestMerge_UntouchedRecordsPreserved(t *testing.T) {
	// Records from a provider skipped this round survive the merge.
	existing := []domain.PullRequest{
		pr(domain.SourceBitbucket, "7", domain.StatusOpen),
	}
	incoming := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusOpen),
	}

	merged := Merge(existing, incoming)

	require.Len(t, merged, 2)
	_, ok := keysOf(merged)[domain.Key{Source: domain.SourceBitbucket, ID: "7"}]
	assert.True(t, ok)
}

func TestMerge_DuplicateKeysWithinIncoming(t *testing.T) {
	incoming := []domain.PullRequest{
		pr(domain.SourceGitHub, "1", domain.StatusOpen),
		pr(domain.SourceGitHub, "1", domain.StatusMerged),
	}

	merged := Merge(nil, incoming)

	require.Len(t, merged, 1)
	assert.Equal(t, domain.StatusMerged, merged[0].Status)
}
