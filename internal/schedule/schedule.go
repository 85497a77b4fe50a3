// Package schedule runs the periodic background jobs: a fixed list executed
// in series on every cycle, with outbound work gated on the configured
// sendable window. Cycles fire on five-minute wall-clock boundaries so a
// restarted process falls back into the same grid instead of drifting.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval is the wall-clock grid cycles align to.
const DefaultInterval = 5 * time.Minute

// JobKind decides whether a job runs on every cycle or only while messages
// may be sent.
type JobKind int

const (
	// JobEveryCycle runs regardless of the time of day.
	JobEveryCycle JobKind = iota

	// JobWindowGated runs only when the cycle fires inside the sendable
	// window. Skipped cycles are not made up; the next in-window cycle
	// picks up whatever accumulated.
	JobWindowGated
)

// Job is one unit of periodic work.
type Job struct {
	Name string
	Kind JobKind
	Run  func(ctx context.Context) error
}

// Scheduler executes its jobs in registration order once per cycle.
//
// Jobs run in series: no job observes a store another job of the same cycle
// is concurrently writing. A failing job never stops its siblings — its
// error is logged and folded into the cycle result.
type Scheduler struct {
	jobs     []Job
	after    int
	until    int
	interval time.Duration

	// now is the decision clock; injectable for tests.
	now func() time.Time
}

// New builds a scheduler over the given jobs. The window bounds are local
// hours of day, both inclusive; callers pass them already normalized (an
// unset evening hour means 23, not 0).
func New(jobs []Job, morningHours, eveningHours int) *Scheduler {
	copied := make([]Job, len(jobs))
	copy(copied, jobs)
	return &Scheduler{
		jobs:     copied,
		after:    morningHours,
		until:    eveningHours,
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// Sendable reports whether t falls inside the sendable window.
func (s *Scheduler) Sendable(t time.Time) bool {
	h := t.Hour()
	return h >= s.after && h <= s.until
}

// RunCycle executes every job once, in order. Window-gated jobs are skipped
// when the cycle fires outside the sendable window. The returned error joins
// every job failure of the cycle; a nil result means every eligible job ran
// clean.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	at := s.now()
	sendable := s.Sendable(at)

	var errs []error
	for _, job := range s.jobs {
		if job.Kind == JobWindowGated && !sendable {
			slog.Debug("job skipped outside sendable window",
				"job", job.Name,
				"hour", at.Hour(),
			)
			continue
		}
		if err := job.Run(ctx); err != nil {
			slog.Error("job failed", "job", job.Name, "error", err)
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	return errors.Join(errs...)
}

// NextBoundary returns the first multiple of interval strictly after now.
// A cycle firing exactly on a boundary schedules the next one a full
// interval later, never zero.
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// Start runs cycles on interval boundaries until the context is cancelled.
// The first cycle waits for the next boundary; nothing fires at startup.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		next := NextBoundary(s.now(), s.interval)
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.RunCycle(ctx); err != nil {
			slog.Error("schedule cycle finished with errors", "error", err)
		}
	}
}
