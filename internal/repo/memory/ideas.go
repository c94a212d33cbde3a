// Package memory holds in-process repository implementations used by dry
// runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

type IdeaStore struct {
	mu       sync.Mutex
	byTicker map[string][]domain.Idea
	now      func() time.Time
}

func NewIdeaStore() *IdeaStore {
	return &IdeaStore{byTicker: map[string][]domain.Idea{}, now: time.Now}
}

func (s *IdeaStore) Create(ctx context.Context, idea domain.Idea) (domain.Idea, error) {
	idea, err := prepareIdea(idea)
	if err != nil {
		return domain.Idea{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(idea)
}

func prepareIdea(idea domain.Idea) (domain.Idea, error) {
	ticker := strings.ToUpper(strings.TrimSpace(idea.Ticker))
	if ticker == "" {
		return domain.Idea{}, fmt.Errorf("ticker is required")
	}
	if strings.TrimSpace(idea.ID) == "" {
		idea.ID = uuid.NewString()
	}
	idea.Ticker = ticker
	return idea, nil
}

// appendLocked assigns the next version and stores the idea. Nothing is
// written when it returns an error.
func (s *IdeaStore) appendLocked(idea domain.Idea) (domain.Idea, error) {
	versions := s.byTicker[idea.Ticker]
	next := 1
	if n := len(versions); n > 0 {
		next = versions[n-1].Version + 1
	}
	if idea.Version != 0 && idea.Version < next {
		return domain.Idea{}, fmt.Errorf("idea %s v%d: %w", idea.Ticker, idea.Version, repo.ErrImmutable)
	}
	idea.Version = next
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = s.now().UTC()
	}
	if err := idea.Validate(); err != nil {
		return domain.Idea{}, err
	}
	if idea.IntegritySHA256 == "" {
		sum, err := idea.ComputeIntegrity()
		if err != nil {
			return domain.Idea{}, err
		}
		idea.IntegritySHA256 = sum
	}
	s.byTicker[idea.Ticker] = append(versions, cloneIdea(idea))
	return cloneIdea(idea), nil
}

func (s *IdeaStore) GetByTicker(ctx context.Context, ticker string) ([]domain.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.byTicker[strings.ToUpper(strings.TrimSpace(ticker))]
	out := make([]domain.Idea, 0, len(versions))
	for _, idea := range versions {
		out = append(out, cloneIdea(idea))
	}
	return out, nil
}

func (s *IdeaStore) GetLatestByTicker(ctx context.Context, ticker string) (domain.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.byTicker[strings.ToUpper(strings.TrimSpace(ticker))]
	if len(versions) == 0 {
		return domain.Idea{}, repo.ErrNotFound
	}
	return cloneIdea(versions[len(versions)-1]), nil
}

func (s *IdeaStore) ListSince(ctx context.Context, since time.Time) ([]domain.Idea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Idea, 0)
	for _, versions := range s.byTicker {
		for _, idea := range versions {
			if !idea.CreatedAt.Before(since) {
				out = append(out, cloneIdea(idea))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if out[i].Ticker == out[j].Ticker {
				return out[i].Version < out[j].Version
			}
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneIdea(idea domain.Idea) domain.Idea {
	out := idea
	out.EdgeTypes = append([]domain.EdgeType(nil), idea.EdgeTypes...)
	out.Signposts = append([]string(nil), idea.Signposts...)
	out.Catalysts = append([]string(nil), idea.Catalysts...)
	return out
}
