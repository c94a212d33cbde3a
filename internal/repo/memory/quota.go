package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

type quotaKey struct {
	week  time.Time
	style domain.Style
}

type dayKey struct {
	day   time.Time
	style domain.Style
}

type QuotaStore struct {
	mu     sync.Mutex
	weekly map[quotaKey]int
	daily  map[dayKey]int
}

func NewQuotaStore() *QuotaStore {
	return &QuotaStore{weekly: map[quotaKey]int{}, daily: map[dayKey]int{}}
}

func (s *QuotaStore) GetCurrentWeek(ctx context.Context, asOf time.Time) (domain.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(asOf), nil
}

// IncrementStyleCount bumps the day and week counters under one lock.
func (s *QuotaStore) IncrementStyleCount(ctx context.Context, asOf time.Time, style domain.Style) (domain.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(asOf, style), nil
}

func (s *QuotaStore) incrementLocked(asOf time.Time, style domain.Style) domain.QuotaState {
	s.weekly[quotaKey{week: domain.WeekStart(asOf), style: style}]++
	s.daily[dayKey{day: domain.DayStart(asOf), style: style}]++
	return s.stateLocked(asOf)
}

func (s *QuotaStore) stateLocked(asOf time.Time) domain.QuotaState {
	week := domain.WeekStart(asOf)
	day := domain.DayStart(asOf)
	state := domain.QuotaState{WeekStart: week, Day: day, WeeklyByStyle: map[domain.Style]int{}}
	for k, v := range s.weekly {
		if k.week.Equal(week) {
			state.WeeklyByStyle[k.style] += v
			state.WeeklyTotal += v
		}
	}
	for k, v := range s.daily {
		if k.day.Equal(day) {
			state.DailyTotal += v
		}
	}
	return state
}
