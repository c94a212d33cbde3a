package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/schedule"
)

// RunFunc starts one run; *Orchestrator.Run satisfies it.
type RunFunc func(ctx context.Context, runType domain.RunType, opts RunOptions) (Summary, error)

// Scheduler fires runs on their schedules. One goroutine per run type, so
// a long Lane B run never delays Lane A.
type Scheduler struct {
	logger    *slog.Logger
	run       RunFunc
	schedules map[domain.RunType]schedule.Schedule
	now       func() time.Time
}

func NewScheduler(logger *slog.Logger, run RunFunc, schedules map[domain.RunType]schedule.Schedule) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, run: run, schedules: schedules, now: time.Now}
}

// Next reports the next fire time of every scheduled run type.
func (s *Scheduler) Next(after time.Time) map[domain.RunType]time.Time {
	out := make(map[domain.RunType]time.Time, len(s.schedules))
	for t, sched := range s.schedules {
		if next := sched.Next(after); !next.IsZero() {
			out[t] = next
		}
	}
	return out
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.run == nil {
		return errors.New("scheduler has no run function")
	}
	types := make([]domain.RunType, 0, len(s.schedules))
	for t := range s.schedules {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var wg sync.WaitGroup
	for _, runType := range types {
		sched := s.schedules[runType]
		if next := sched.Next(s.now()); !next.IsZero() {
			s.logger.Info("schedule armed", "run_type", runType, "next", next)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			schedule.Loop(ctx, sched, s.now, func(ctx context.Context, at time.Time) {
				s.fire(ctx, runType, at)
			})
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) fire(ctx context.Context, runType domain.RunType, at time.Time) {
	summary, err := s.run(ctx, runType, RunOptions{AsOf: at})
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("scheduled run overlaps a running one; skipped", "run_type", runType)
	case err != nil:
		s.logger.Error("scheduled run failed to start", "run_type", runType, "error", err)
	case summary.Skipped:
		s.logger.Info("scheduled run skipped", "run_type", runType, "reason", summary.SkipReason)
	default:
		s.logger.Info("scheduled run finished", "run_type", runType, "run_id", summary.RunID, "status", summary.Status)
	}
}
