/*
scheduler.go - Automated daily reconciliation

PURPOSE:
  Runs ReconcileAllActiveWorkersToday on a fixed interval, and offers Tick
  as the single entry point for every other trigger (punch registered,
  admin button, window focus in a UI).

DESIGN:
  - One background goroutine driven by a time.Ticker
  - Tick holds a mutex for the whole run, so timer and external triggers
    never interleave; a trigger arriving mid-run waits and then runs again
  - One worker's failure is logged and never aborts the run
  - The engine's idempotency markers make repeated ticks harmless

CONFIGURATION:
  - Interval: How often to run (default: 1 minute)
  - Enabled:  Whether the timer is active (default: true); Tick still works
  - AfterTick: Optional hook run after every Tick, e.g. a snapshot save

USAGE:
  scheduler := NewScheduler(engine, logger)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hours-bank/attendance"
)

// DefaultInterval matches a one-minute polling loop.
const DefaultInterval = time.Minute

// Scheduler drives daily reconciliation.
type Scheduler struct {
	Engine   *attendance.Engine
	Interval time.Duration
	Enabled  bool
	// AfterTick runs at the end of every Tick while the run lock is held.
	AfterTick func(ctx context.Context, summary attendance.RunSummary)

	logger *zap.Logger

	tickMu  sync.Mutex
	last    attendance.RunSummary
	lastRun time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(engine *attendance.Engine, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Engine:   engine,
		Interval: DefaultInterval,
		Enabled:  true,
		logger:   logger,
	}
}

// Start launches the timer loop. It runs one Tick immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("scheduler started", zap.Duration("interval", s.Interval))
}

// Stop cancels the loop and waits for an in-flight Tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick reconciles every active worker for today. Safe to call from any
// goroutine; concurrent calls run one after the other.
func (s *Scheduler) Tick(ctx context.Context) attendance.RunSummary {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	summary, err := s.Engine.ReconcileAllActiveWorkersToday(ctx)
	if err != nil {
		s.logger.Error("reconciliation run failed", zap.Error(err))
	}

	s.last = summary
	s.lastRun = start
	if summary.Posted() > 0 || len(summary.Failures) > 0 {
		s.logger.Info("reconciliation run completed",
			zap.Stringer("date", summary.Date),
			zap.Int("workers", len(summary.Outcomes)),
			zap.Int("posted", summary.Posted()),
			zap.Int("failed", len(summary.Failures)),
			zap.Duration("took", time.Since(start)),
		)
	}
	if s.AfterTick != nil {
		s.AfterTick(ctx, summary)
	}
	return summary
}

// LastRun returns the most recent summary and when it started.
func (s *Scheduler) LastRun() (attendance.RunSummary, time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.last, s.lastRun
}
