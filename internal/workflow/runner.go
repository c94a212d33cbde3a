// Package workflow runs an ordered set of dependent steps with per-step
// timeouts, retries and skip-on-failure semantics.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// AttemptRecord describes one finished attempt of a step.
type AttemptRecord struct {
	RunID      string
	StepID     string
	Attempt    int
	Status     StepStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// AttemptRecorder receives every attempt, including skips. Recording errors
// are the recorder's concern and never fail a run.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord)
}

// DefaultStopGrace bounds how long a timed-out step may take to return
// before the runner abandons the run.
const DefaultStopGrace = 30 * time.Second

type Runner[C any] struct {
	logger    *slog.Logger
	recorder  AttemptRecorder
	now       func() time.Time
	stopGrace time.Duration

	mu    sync.Mutex
	steps []Step[C]
}

func NewRunner[C any](logger *slog.Logger, recorder AttemptRecorder) *Runner[C] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner[C]{logger: logger, recorder: recorder, now: time.Now, stopGrace: DefaultStopGrace}
}

// SetStopGrace changes how long a cancelled step may take to return.
func (r *Runner[C]) SetStopGrace(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopGrace = d
}

// Register appends steps. Plan validation happens at Run.
func (r *Runner[C]) Register(steps ...Step[C]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.steps)+len(steps))
	for _, s := range r.steps {
		seen[s.ID] = struct{}{}
	}
	for _, s := range steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return errors.New("step id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("step %q already registered", id)
		}
		seen[id] = struct{}{}
		s.ID = id
		r.steps = append(r.steps, s)
	}
	return nil
}

// Run validates and orders the steps, then executes them one at a time.
// The returned error is non-nil only when the workflow definition is
// invalid; step failures are reported through the RunResult.
//
// A timed-out step keeps ownership of rc until it returns; no retry or
// later step starts before that. A step still running after the stop grace
// abandons the run: RunResult.Abandoned is set and rc must not be read.
func (r *Runner[C]) Run(ctx context.Context, runID string, rc C) (RunResult, error) {
	r.mu.Lock()
	steps := append([]Step[C](nil), r.steps...)
	grace := r.stopGrace
	r.mu.Unlock()

	ordered, err := Plan(steps)
	if err != nil {
		return RunResult{}, err
	}

	start := r.now()
	result := RunResult{
		RunID:     runID,
		Status:    StepCompleted,
		StartedAt: start,
		Steps:     make(map[string]StepOutcome, len(ordered)),
	}
	for _, step := range ordered {
		result.Order = append(result.Order, step.ID)
		result.Steps[step.ID] = StepOutcome{Status: StepPending}
	}

	aborted := false
	for _, step := range ordered {
		if aborted {
			r.skip(ctx, &result, step.ID, "previous step failed")
			continue
		}
		if dep, ok := r.unmetDependency(step, result); ok {
			r.skip(ctx, &result, step.ID, fmt.Sprintf("dependency %q did not complete", dep))
			continue
		}

		outcome, abandoned := r.execute(ctx, runID, step, rc, grace)
		result.Steps[step.ID] = outcome
		switch {
		case abandoned:
			result.Failed = append(result.Failed, StepFailure{StepID: step.ID, Attempts: outcome.Attempts, Message: outcome.Error})
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", step.ID, outcome.Error))
			result.Status = StepFailed
			result.Abandoned = true
			aborted = true
			r.logger.Error("step did not stop after cancellation; run abandoned", "run_id", runID, "step", step.ID, "stop_grace", grace)
		case outcome.Status == StepCompleted:
			result.Completed = append(result.Completed, step.ID)
		case step.BestEffort:
			result.BestEffortFailures = append(result.BestEffortFailures, StepFailure{StepID: step.ID, Attempts: outcome.Attempts, Message: outcome.Error})
			r.logger.Warn("best-effort step failed", "run_id", runID, "step", step.ID, "error", outcome.Error)
		default:
			result.Failed = append(result.Failed, StepFailure{StepID: step.ID, Attempts: outcome.Attempts, Message: outcome.Error})
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", step.ID, outcome.Error))
			result.Status = StepFailed
			aborted = true
		}
	}

	result.Duration = r.now().Sub(start)
	return result, nil
}

func (r *Runner[C]) unmetDependency(step Step[C], result RunResult) (string, bool) {
	for _, dep := range step.DependsOn {
		if result.Steps[dep].Status != StepCompleted {
			return dep, true
		}
	}
	return "", false
}

func (r *Runner[C]) skip(ctx context.Context, result *RunResult, stepID, reason string) {
	result.Steps[stepID] = StepOutcome{Status: StepSkipped, Error: reason}
	result.Skipped = append(result.Skipped, stepID)
	now := r.now()
	r.record(ctx, AttemptRecord{RunID: result.RunID, StepID: stepID, Attempt: 1, Status: StepSkipped, StartedAt: now, FinishedAt: now, Err: errors.New(reason)})
}

func (r *Runner[C]) execute(ctx context.Context, runID string, step Step[C], rc C, grace time.Duration) (StepOutcome, bool) {
	maxAttempts := 1 + step.MaxRetries
	started := r.now()
	var lastErr error
	attempt := 0

	for attempt < maxAttempts {
		if attempt > 0 {
			if err := sleepCtx(ctx, step.delayBefore(attempt)); err != nil {
				lastErr = err
				break
			}
		}
		attempt++

		r.logger.Debug("step attempt started", "run_id", runID, "step", step.ID, "attempt", attempt)
		attemptStart := r.now()
		err := runAttempt(ctx, step, rc, grace)
		finished := r.now()

		status := StepCompleted
		if err != nil {
			status = StepFailed
		}
		r.record(ctx, AttemptRecord{RunID: runID, StepID: step.ID, Attempt: attempt, Status: status, StartedAt: attemptStart, FinishedAt: finished, Err: err})

		if err == nil {
			r.logger.Info("step completed", "run_id", runID, "step", step.ID, "attempt", attempt, "duration_ms", finished.Sub(started).Milliseconds())
			return StepOutcome{Status: StepCompleted, Attempts: attempt, Duration: finished.Sub(started)}, false
		}
		lastErr = err
		if errors.Is(err, ErrStepAbandoned) {
			return StepOutcome{Status: StepFailed, Attempts: attempt, Duration: finished.Sub(started), Error: err.Error()}, true
		}
		r.logger.Warn("step attempt failed", "run_id", runID, "step", step.ID, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("step did not run")
	}
	if attempt == 0 {
		attempt = 1
	}
	return StepOutcome{Status: StepFailed, Attempts: attempt, Duration: r.now().Sub(started), Error: lastErr.Error()}, false
}

func runAttempt[C any](ctx context.Context, step Step[C], rc C, grace time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if step.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- fmt.Errorf("%w: %v", ErrStepPanic, v)
			}
		}()
		done <- step.Run(attemptCtx, rc)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
	}

	cause := ctx.Err()
	if cause == nil {
		cause = fmt.Errorf("%w after %s", ErrStepTimeout, step.Timeout)
	}
	// The step still owns rc; wait for it to wind down.
	stop := time.NewTimer(grace)
	defer stop.Stop()
	select {
	case <-done:
		return cause
	case <-stop.C:
		return fmt.Errorf("%w: %w", ErrStepAbandoned, cause)
	}
}

func (r *Runner[C]) record(ctx context.Context, rec AttemptRecord) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordAttempt(context.WithoutCancel(ctx), rec)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
