package service

import "github.com/vilaca/pr-dashboard/internal/domain"

// Merge folds freshly fetched pull requests into the persisted set.
// Any record refetched this round fully replaces its previous version
// (last-write-wins by fetch); records outside the fetch window are
// preserved untouched. Duplicate composite keys never survive a merge,
// including duplicates already present in existing. Result order is not
// meaningful; callers must not rely on position.
//
// Runs in O(|existing| + |incoming|) using key-presence sets.
func Merge(existing, incoming []domain.PullRequest) []domain.PullRequest {
	incomingKeys := make(map[domain.Key]struct{}, len(incoming))
	for _, pr := range incoming {
		incomingKeys[pr.Key()] = struct{}{}
	}

	merged := make([]domain.PullRequest, 0, len(existing)+len(incoming))

	kept := make(map[domain.Key]struct{}, len(existing))
	for _, pr := range existing {
		if _, refetched := incomingKeys[pr.Key()]; refetched {
			continue
		}
		// Collapse duplicates an earlier bug may have persisted.
		if _, dup := kept[pr.Key()]; dup {
			continue
		}
		kept[pr.Key()] = struct{}{}
		merged = append(merged, pr)
	}

	// Within incoming, the last occurrence of a key is the freshest.
	latest := make(map[domain.Key]int, len(incoming))
	for i, pr := range incoming {
		latest[pr.Key()] = i
	}
	for i, pr := range incoming {
		if latest[pr.Key()] == i {
			merged = append(merged, pr)
		}
	}

	return merged
}
