package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshInterval is used when no refresh interval is stored.
const DefaultRefreshInterval = 5 * time.Minute

// initialSyncDelay gives the process a moment to finish starting up
// before the first run fires.
const initialSyncDelay = 2 * time.Second

// Poller triggers a sync run on a fixed interval. It is a collaborator
// around the Syncer, not sync logic itself: a tick that finds a run
// already in flight is simply skipped.
type Poller struct {
	syncer   *Syncer
	interval time.Duration
	log      *zap.SugaredLogger
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewPoller creates a poller that runs a sync every interval.
func NewPoller(syncer *Syncer, interval time.Duration, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Poller{
		syncer:   syncer,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins periodic syncing. Non-blocking; launches the poll loop
// and returns immediately.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.log.Infow("poller starting", "interval", p.interval)

	p.wg.Add(1)
	go p.loop()
}

// Stop gracefully stops the poller, waiting for an in-flight run to
// complete.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.log.Infow("poller stopped")
}

func (p *Poller) loop() {
	defer p.wg.Done()

	// Initial run after a short delay, then steady-state ticking.
	select {
	case <-time.After(initialSyncDelay):
		p.sync()
	case <-p.stopChan:
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sync()
		case <-p.stopChan:
			return
		}
	}
}

func (p *Poller) sync() {
	result, err := p.syncer.Run(context.Background())
	if errors.Is(err, ErrSyncInProgress) {
		// A manual refresh beat the timer; its result supersedes this tick.
		p.log.Debugw("skipping tick, sync already running")
		return
	}
	if err != nil {
		p.log.Errorw("periodic sync failed", "error", err)
		return
	}

	if len(result.Errors) > 0 {
		p.log.Warnw("periodic sync finished with provider errors",
			"fetched", result.Fetched, "errors", len(result.Errors))
	}
}
