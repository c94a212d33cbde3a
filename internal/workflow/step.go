package workflow

import (
	"context"
	"time"
)

type BackoffKind string

const (
	BackoffFixed        BackoffKind = "fixed"
	BackoffIncrementing BackoffKind = "incrementing"
)

// Step is one unit of a workflow. C is the run context shared by all steps.
type Step[C any] struct {
	ID         string
	DependsOn  []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Backoff    BackoffKind
	// BestEffort steps may fail without failing the run.
	BestEffort bool
	Run        func(ctx context.Context, rc C) error
}

// delayBefore returns the wait before the given retry (1-based).
func (s Step[C]) delayBefore(retry int) time.Duration {
	if s.RetryDelay <= 0 || retry < 1 {
		return 0
	}
	if s.Backoff == BackoffIncrementing {
		return s.RetryDelay * time.Duration(retry)
	}
	return s.RetryDelay
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)
