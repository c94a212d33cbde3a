package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/repo"
)

type stepKey struct {
	runID   string
	step    string
	attempt int
}

type StepExecutionStore struct {
	mu      sync.Mutex
	order   []stepKey
	records map[stepKey]repo.StepExecutionRecord
}

func NewStepExecutionStore() *StepExecutionStore {
	return &StepExecutionStore{records: map[stepKey]repo.StepExecutionRecord{}}
}

func (s *StepExecutionStore) InsertAttempt(ctx context.Context, record repo.StepExecutionRecord) (repo.StepExecutionRecord, bool, error) {
	if record.RunID == "" || record.StepName == "" || record.Attempt < 1 {
		return repo.StepExecutionRecord{}, false, fmt.Errorf("run id, step name and attempt are required")
	}
	key := stepKey{runID: record.RunID, step: record.StepName, attempt: record.Attempt}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[key]; ok {
		return existing, false, nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.records[key] = record
	s.order = append(s.order, key)
	return record, true, nil
}

func (s *StepExecutionStore) ListByRun(ctx context.Context, runID string) ([]repo.StepExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repo.StepExecutionRecord, 0)
	for _, key := range s.order {
		if key.runID == runID {
			out = append(out, s.records[key])
		}
	}
	return out, nil
}
