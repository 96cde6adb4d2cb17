package bridge

import (
	"context"
	"errors"
	"sync"
	"time"
)

// tickInterval is how often the scheduler checks whether a refresh is due.
const tickInterval = time.Second

// SchedulerState is the poll loop state.
type SchedulerState int

// Scheduler states.
const (
	StateIdle SchedulerState = iota
	StateRefreshing
)

// String returns the state name.
func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Refresher is satisfied by *Bridge.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler calls Refresh once per interval from a single goroutine.
//
// It wakes every second and refreshes when at least interval has passed since
// the previous refresh completed. Completion is recorded whether the refresh
// succeeded or failed, so a failing device is retried one interval later,
// not every tick. The first tick always refreshes.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    Logger
	clock     func() time.Time

	mu      sync.Mutex
	state   SchedulerState
	lastRun time.Time
}

// NewScheduler creates a scheduler. interval is fixed for its lifetime.
func NewScheduler(r Refresher, interval time.Duration, logger Logger) *Scheduler {
	return &Scheduler{
		refresher: r,
		interval:  interval,
		logger:    logger,
		clock:     time.Now,
	}
}

// State returns the current loop state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastRun returns when the last refresh attempt completed (zero before the
// first).
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Run ticks until ctx is cancelled. A refresh that has started is allowed to
// finish; cancellation is only observed between ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Refreshes outlive cancellation; the HTTP client timeout bounds them.
	refreshCtx := context.WithoutCancel(ctx)

	if s.logger != nil {
		s.logger.Info("poll scheduler started", "interval", s.interval.String())
	}
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("poll scheduler stopped")
			}
			return nil
		case now := <-ticker.C:
			s.tick(refreshCtx, now)
		}
	}
}

// tick refreshes if the interval has elapsed since lastRun.
// It reports whether a refresh was attempted.
func (s *Scheduler) tick(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.interval {
		s.mu.Unlock()
		return false
	}
	s.state = StateRefreshing
	s.mu.Unlock()

	err := s.refresher.Refresh(ctx)
	done := s.clock()
	if err != nil && s.logger != nil {
		if errors.Is(err, ErrPublishFailed) {
			s.logger.Warn("refresh read the device but some values were not published", "error", err)
		} else {
			s.logger.Warn("refresh failed, keeping previous values", "error", err)
		}
	}

	s.mu.Lock()
	s.lastRun = done
	s.state = StateIdle
	s.mu.Unlock()
	return true
}
