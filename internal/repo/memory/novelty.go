package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

type NoveltyStore struct {
	mu     sync.Mutex
	states map[string]domain.NoveltyState
}

func NewNoveltyStore(seed ...domain.NoveltyState) *NoveltyStore {
	s := &NoveltyStore{states: map[string]domain.NoveltyState{}}
	for _, st := range seed {
		s.states[strings.ToUpper(st.Ticker)] = st.Clone()
	}
	return s
}

func (s *NoveltyStore) GetMany(ctx context.Context, tickers []string) (map[string]domain.NoveltyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.NoveltyState, len(tickers))
	for _, t := range tickers {
		key := strings.ToUpper(strings.TrimSpace(t))
		if st, ok := s.states[key]; ok {
			out[key] = st.Clone()
		}
	}
	return out, nil
}

func (s *NoveltyStore) Upsert(ctx context.Context, state domain.NoveltyState) error {
	key := strings.ToUpper(strings.TrimSpace(state.Ticker))
	if key == "" {
		return fmt.Errorf("ticker is required")
	}
	state.Ticker = key
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state.Clone()
	return nil
}

func (s *NoveltyStore) List(ctx context.Context) ([]domain.NoveltyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NoveltyState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}
