package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

type RunStore struct {
	mu   sync.Mutex
	runs []domain.RunRecord
	now  func() time.Time
}

func NewRunStore() *RunStore {
	return &RunStore{now: time.Now}
}

func (s *RunStore) Create(ctx context.Context, runType domain.RunType, asOf time.Time, status domain.RunStatus) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := domain.RunRecord{
		ID:        uuid.NewString(),
		Type:      runType,
		AsOf:      domain.DayStart(asOf),
		Status:    status,
		StartedAt: s.now().UTC(),
		Stats:     domain.Metadata{},
	}
	s.runs = append(s.runs, rec)
	return rec, nil
}

func (s *RunStore) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errMsg string, stats domain.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID != runID {
			continue
		}
		s.runs[i].Status = status
		s.runs[i].Error = errMsg
		s.runs[i].Stats = stats.Clone()
		if status != domain.RunStatusRunning {
			ended := s.now().UTC()
			s.runs[i].EndedAt = &ended
		}
		return nil
	}
	return fmt.Errorf("run %s: %w", runID, repo.ErrNotFound)
}

func (s *RunStore) ExistsForDate(ctx context.Context, runType domain.RunType, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := domain.DayStart(date)
	for _, r := range s.runs {
		if r.Type == runType && r.Status == domain.RunStatusCompleted && r.AsOf.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (s *RunStore) Latest(ctx context.Context, runType domain.RunType) (domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Type == runType {
			rec := s.runs[i]
			rec.Stats = rec.Stats.Clone()
			return rec, nil
		}
	}
	return domain.RunRecord{}, repo.ErrNotFound
}
