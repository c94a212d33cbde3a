package workflow

import "time"

type StepOutcome struct {
	Status   StepStatus
	Attempts int
	Duration time.Duration
	Error    string
}

type StepFailure struct {
	StepID   string
	Attempts int
	Message  string
}

// RunResult summarises one workflow execution.
type RunResult struct {
	RunID              string
	Status             StepStatus
	Order              []string
	Completed          []string
	Failed             []StepFailure
	Skipped            []string
	BestEffortFailures []StepFailure
	Steps              map[string]StepOutcome
	StartedAt          time.Time
	Duration           time.Duration
	Errors             []string
	// Abandoned is set when a step outlived its stop grace and may still be
	// writing the run context.
	Abandoned bool
}

func (r RunResult) Succeeded() bool {
	return r.Status == StepCompleted
}

func (r RunResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// FirstFailure returns the id of the step that failed the run, if any.
func (r RunResult) FirstFailure() (StepFailure, bool) {
	if len(r.Failed) == 0 {
		return StepFailure{}, false
	}
	return r.Failed[0], true
}
