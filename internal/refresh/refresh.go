// Package refresh reloads the board on a cron schedule so an unattended
// wall display stays current.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher reloads the visible range.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs Refresh on a cron spec. A run still in progress when the
// next one is due causes that one to be skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	target  Refresher
	spec    string
	timeout time.Duration
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New creates a scheduler. Each run is bounded by timeout.
func New(target Refresher, spec string, loc *time.Location, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:  target,
		spec:    spec,
		timeout: timeout,
		logger:  logger,
	}
}

// Start registers the job and starts the cron loop. It returns at once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("add refresh job %q: %w", s.spec, err)
	}
	s.cancel = cancel
	s.cron.Start()
	s.logger.Info("refresh scheduler started", "spec", s.spec)
	return nil
}

// Stop cancels a run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("refresh scheduler stopped")
}

// Next reports when the next run is due. It is zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.target.Refresh(ctx); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled refresh", "duration", time.Since(start))
}
