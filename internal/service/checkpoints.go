package service

import (
	"time"

	"github.com/vilaca/pr-dashboard/internal/domain"
)

// SyncMargin is subtracted from a stored checkpoint before it is used as
// a fetch lower bound, to tolerate clock skew and eventual-consistency
// windows on the upstream APIs.
const SyncMargin = 24 * time.Hour

// Checkpoints records the last successful sync time per provider. A
// provider's entry is created on its first successful sync and only ever
// advances; a failed fetch leaves it untouched so the next run retries
// the same window.
type Checkpoints map[domain.Source]time.Time

// Get returns the stored checkpoint for a provider.
func (c Checkpoints) Get(source domain.Source) (time.Time, bool) {
	t, ok := c[source]
	return t, ok
}

// Set records a checkpoint for a provider.
func (c Checkpoints) Set(source domain.Source, t time.Time) {
	c[source] = t
}

// Since returns the effective fetch lower bound for a provider: the
// stored checkpoint minus the safety margin, never the raw checkpoint.
// The zero time means no checkpoint exists and the fetch is unbounded.
func (c Checkpoints) Since(source domain.Source) time.Time {
	t, ok := c[source]
	if !ok {
		return time.Time{}
	}
	return t.Add(-SyncMargin)
}
