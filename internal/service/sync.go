package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vilaca/pr-dashboard/internal/api"
	"github.com/vilaca/pr-dashboard/internal/domain"
	"github.com/vilaca/pr-dashboard/internal/storage"
)

// ErrSyncInProgress is returned when Run is called while another run is
// still in flight. Two concurrent reconciliations racing on the same
// persisted set could lose updates, so a second run is rejected outright.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// SyncResult is the outcome of one sync run. An empty Errors slice means
// full success; a non-empty slice with Fetched > 0 means partial success,
// where the succeeding providers' data was still committed.
type SyncResult struct {
	PullRequests []domain.PullRequest
	Fetched      int
	Errors       []*api.ProviderError
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Syncer coordinates a sync run: it calls every configured provider
// client, collects partial failures, merges fresh records into the
// persisted set and commits the set together with the advanced
// checkpoints. External readers see either the prior persisted set or the
// fully merged new one, never an intermediate.
type Syncer struct {
	store    storage.Store
	clients  map[domain.Source]api.Client
	onlyOpen bool
	now      func() time.Time
	log      *zap.SugaredLogger

	running chan struct{} // capacity 1; holding the token means a run is in flight

	snapshot *snapshot
}

// NewSyncer creates a sync orchestrator over the given store.
func NewSyncer(store storage.Store, log *zap.SugaredLogger) *Syncer {
	return &Syncer{
		store:    store,
		clients:  make(map[domain.Source]api.Client),
		onlyOpen: true,
		now:      time.Now,
		log:      log,
		running:  make(chan struct{}, 1),
		snapshot: &snapshot{},
	}
}

// RegisterClient registers a provider client for a platform.
func (s *Syncer) RegisterClient(source domain.Source, client api.Client) {
	s.clients[source] = client
}

// Run executes one sync run. It is safe to call from a timer and from
// manual triggers at once: at most one run proceeds at a time and the
// loser gets ErrSyncInProgress.
func (s *Syncer) Run(ctx context.Context) (*SyncResult, error) {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		return nil, ErrSyncInProgress
	}

	runID := uuid.NewString()[:8]
	result := &SyncResult{StartedAt: s.now()}
	s.log.Infow("sync run started", "run", runID)

	var creds domain.Credentials
	if _, err := s.store.Get(ctx, storage.KeyCredentials, &creds); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	checkpoints := Checkpoints{}
	if _, err := s.store.Get(ctx, storage.KeyLastSync, &checkpoints); err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	var existing []domain.PullRequest
	if _, err := s.store.Get(ctx, storage.KeyPullRequests, &existing); err != nil {
		return nil, fmt.Errorf("failed to load persisted set: %w", err)
	}

	var fetched []domain.PullRequest
	staged := Checkpoints{}

	for _, source := range domain.Sources() {
		client, registered := s.clients[source]
		if !registered || !configured(creds, source) {
			continue
		}

		since := checkpoints.Since(source)
		prs, err := client.FetchPullRequests(ctx, creds, s.onlyOpen, since)
		if err != nil {
			var provErr *api.ProviderError
			if !errors.As(err, &provErr) {
				provErr = &api.ProviderError{Provider: source, Err: err}
			}
			result.Errors = append(result.Errors, provErr)
			s.log.Errorw("provider fetch failed", "run", runID, "provider", source, "error", provErr.Err)
			continue
		}

		fetched = append(fetched, prs...)
		// Advance to wall clock at fetch completion, not the max updated
		// field seen. Committed below only together with the merged set.
		staged.Set(source, s.now())
		s.log.Infow("provider fetch completed", "run", runID, "provider", source, "pullRequests", len(prs))
	}

	result.Fetched = len(fetched)
	merged := existing

	if len(fetched) > 0 {
		merged = Merge(existing, fetched)

		// The set and the checkpoints must land together. A persistence
		// failure is fatal for the run: reporting success here would let
		// checkpoints and data diverge.
		if err := s.store.Set(ctx, storage.KeyPullRequests, merged); err != nil {
			return nil, fmt.Errorf("failed to persist merged set: %w", err)
		}
		for source, t := range staged {
			checkpoints.Set(source, t)
		}
		if err := s.store.Set(ctx, storage.KeyLastSync, checkpoints); err != nil {
			return nil, fmt.Errorf("failed to persist checkpoints: %w", err)
		}

		s.snapshot.set(merged)
	}

	result.PullRequests = merged
	result.FinishedAt = s.now()
	s.log.Infow("sync run finished", "run", runID,
		"fetched", result.Fetched, "total", len(merged), "errors", len(result.Errors),
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

// Current returns the current persisted collection. Served from an
// in-memory snapshot once a run or a prior read has populated it.
func (s *Syncer) Current(ctx context.Context) ([]domain.PullRequest, error) {
	if prs, ok := s.snapshot.get(); ok {
		return prs, nil
	}

	var prs []domain.PullRequest
	if _, err := s.store.Get(ctx, storage.KeyPullRequests, &prs); err != nil {
		return nil, fmt.Errorf("failed to load persisted set: %w", err)
	}
	s.snapshot.set(prs)
	return prs, nil
}

// Reset clears the persisted set and all checkpoints, forcing the next
// run to do a full resync.
func (s *Syncer) Reset(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyPullRequests); err != nil {
		return fmt.Errorf("failed to clear persisted set: %w", err)
	}
	if err := s.store.Delete(ctx, storage.KeyLastSync); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	s.snapshot.set(nil)
	return nil
}

// configured reports whether credentials exist for a platform.
func configured(creds domain.Credentials, source domain.Source) bool {
	switch source {
	case domain.SourceGitHub:
		return creds.HasGitHub()
	case domain.SourceBitbucket:
		return creds.HasBitbucket()
	default:
		return false
	}
}
