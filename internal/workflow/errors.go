package workflow

import (
	"errors"
	"strings"
)

var (
	ErrStepTimeout = errors.New("step timed out")
	ErrStepPanic   = errors.New("step panicked")
	// ErrStepAbandoned marks a step that did not return within the stop
	// grace after its context was cancelled.
	ErrStepAbandoned = errors.New("step abandoned")
)

// ValidationError aggregates workflow definition issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "workflow validation failed"
	}
	return "workflow validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
