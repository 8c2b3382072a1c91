package service

import (
	"sync"

	"github.com/vilaca/pr-dashboard/internal/domain"
)

// snapshot holds the latest merged collection in memory so API readers
// do not hit the store on every request. Populated lazily on first read
// and replaced wholesale after each committed run.
type snapshot struct {
	mu     sync.RWMutex
	prs    []domain.PullRequest
	loaded bool
}

func (s *snapshot) get() ([]domain.PullRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prs, s.loaded
}

func (s *snapshot) set(prs []domain.PullRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prs = prs
	s.loaded = true
}
