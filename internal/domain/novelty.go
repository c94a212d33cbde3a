package domain

import (
	"sort"
	"time"
)

// NoveltyState is the persisted per-ticker appearance history.
type NoveltyState struct {
	Ticker      string
	FirstSeen   time.Time
	LastSeen    time.Time
	Appearances []time.Time
	LastEdgeKey string
	LastStyle   Style
	UpdatedAt   time.Time
}

// AppearancesSince counts appearances at or after cutoff.
func (s NoveltyState) AppearancesSince(cutoff time.Time) int {
	n := 0
	for _, at := range s.Appearances {
		if !at.Before(cutoff) {
			n++
		}
	}
	return n
}

func (s NoveltyState) Clone() NoveltyState {
	out := s
	out.Appearances = append([]time.Time(nil), s.Appearances...)
	return out
}

// SortAppearances keeps appearance history ascending.
func (s *NoveltyState) SortAppearances() {
	sort.Slice(s.Appearances, func(i, j int) bool { return s.Appearances[i].Before(s.Appearances[j]) })
}

// RejectionMarker excludes a ticker from shortlisting while active and blocking.
type RejectionMarker struct {
	ID        string
	Ticker    string
	Reason    string
	Blocking  bool
	CreatedAt time.Time
	ExpiresAt *time.Time
}

func (m RejectionMarker) ActiveAt(t time.Time) bool {
	if m.ExpiresAt == nil {
		return true
	}
	return t.Before(*m.ExpiresAt)
}
