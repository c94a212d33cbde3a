package novelty

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

type scored struct {
	entry domain.UniverseEntry
	nov   domain.NoveltyAssessment
}

// Shortlist returns exactly min(capacity, eligible) entries. Blocked tickers
// are removed before scoring. The top n-k by novelty are taken as is; the k
// exploration slots are drawn uniformly from the candidates ranked below the
// top n, topped up from the bottom of the top n when that pool is short.
func (e *Engine) Shortlist(universe []domain.UniverseEntry, states map[string]domain.NoveltyState, blocked map[string]domain.RejectionMarker, capacity int, now time.Time) []domain.ShortlistEntry {
	if capacity <= 0 {
		capacity = e.cfg.Capacity
	}

	seen := make(map[string]struct{}, len(universe))
	ranked := make([]scored, 0, len(universe))
	for _, entry := range universe {
		entry.Ticker = strings.ToUpper(strings.TrimSpace(entry.Ticker))
		if entry.Ticker == "" {
			continue
		}
		if _, dup := seen[entry.Ticker]; dup {
			continue
		}
		seen[entry.Ticker] = struct{}{}
		if _, ok := blocked[entry.Ticker]; ok {
			continue
		}
		var state *domain.NoveltyState
		if s, ok := states[entry.Ticker]; ok {
			state = &s
		}
		ranked = append(ranked, scored{entry: entry, nov: e.Score(entry, state, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].nov.Score != ranked[j].nov.Score {
			return ranked[i].nov.Score > ranked[j].nov.Score
		}
		return ranked[i].entry.Ticker < ranked[j].entry.Ticker
	})

	n := min(capacity, len(ranked))
	k := int(math.Round(float64(n) * e.cfg.ExplorationRate))
	k = min(k, n)

	out := make([]domain.ShortlistEntry, 0, n)
	for _, s := range ranked[:n-k] {
		out = append(out, domain.ShortlistEntry{Entry: s.entry, Novelty: s.nov})
	}

	pool := ranked[n:]
	picks := e.sample(len(pool), k)
	for _, i := range picks {
		s := pool[i]
		out = append(out, domain.ShortlistEntry{Entry: s.entry, Novelty: s.nov, Exploration: true})
	}
	for _, s := range ranked[n-k : n-k+(k-len(picks))] {
		out = append(out, domain.ShortlistEntry{Entry: s.entry, Novelty: s.nov, Exploration: true})
	}
	return out
}

// sample draws min(k, n) distinct indices from [0, n), in ascending order.
func (e *Engine) sample(n, k int) []int {
	k = min(k, n)
	if k <= 0 {
		return nil
	}
	e.mu.Lock()
	perm := e.rng.Perm(n)
	e.mu.Unlock()
	picks := perm[:k]
	sort.Ints(picks)
	return picks
}
