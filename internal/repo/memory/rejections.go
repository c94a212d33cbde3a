package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

type RejectionStore struct {
	mu      sync.Mutex
	markers []domain.RejectionMarker
}

func NewRejectionStore(seed ...domain.RejectionMarker) *RejectionStore {
	return &RejectionStore{markers: append([]domain.RejectionMarker(nil), seed...)}
}

func (s *RejectionStore) ListBlocking(ctx context.Context, asOf time.Time) (map[string]domain.RejectionMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.RejectionMarker{}
	for _, m := range s.markers {
		if m.Blocking && m.ActiveAt(asOf) {
			out[strings.ToUpper(m.Ticker)] = m
		}
	}
	return out, nil
}

func (s *RejectionStore) Create(ctx context.Context, marker domain.RejectionMarker) error {
	if strings.TrimSpace(marker.Ticker) == "" {
		return fmt.Errorf("ticker is required")
	}
	if marker.ID == "" {
		marker.ID = uuid.NewString()
	}
	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = time.Now().UTC()
	}
	marker.Ticker = strings.ToUpper(strings.TrimSpace(marker.Ticker))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, marker)
	return nil
}
