// Package novelty scores how fresh each universe ticker is and cuts the
// universe down to a bounded shortlist before any enrichment spend.
package novelty

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

const (
	ReasonNeverSeen    = "never seen"
	ReasonStale        = "not seen within novelty window"
	ReasonRepeated     = "seen within repetition window without change"
	ReasonFrequent     = "frequent appearances within novelty window"
	ReasonMaterialNews = "material event since last seen"
	ReasonEdgeChanged  = "edge changed since last seen"
	ReasonStyleChanged = "style changed since last seen"
	ReasonRecent       = "seen within novelty window"
)

type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine builds an engine. A nil rng is replaced by a time-seeded one;
// tests pass a fixed seed to make exploration picks reproducible.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return &Engine{cfg: cfg, rng: rng}
}

func (e *Engine) Config() Config { return e.cfg }

// Score assesses one ticker against its stored state. A nil state means the
// ticker has never been shortlisted.
func (e *Engine) Score(entry domain.UniverseEntry, state *domain.NoveltyState, now time.Time) domain.NoveltyAssessment {
	if state == nil || state.LastSeen.IsZero() {
		return e.assess(e.cfg.NewBonus, true, ReasonNeverSeen)
	}
	since := now.Sub(state.LastSeen)
	if since >= e.cfg.noveltyWindow() {
		return e.assess(e.cfg.NewBonus, true, ReasonStale)
	}

	changes := qualifyingChanges(entry, *state)
	frequent := state.AppearancesSince(now.Add(-e.cfg.noveltyWindow())) > e.cfg.FrequentThreshold

	if since < e.cfg.repetitionWindow() && len(changes) == 0 {
		score := e.cfg.RepetitionPenalty
		reasons := []string{ReasonRepeated}
		if frequent {
			score += e.cfg.FrequentPenalty
			reasons = append(reasons, ReasonFrequent)
		}
		return e.assess(score, false, reasons...)
	}

	score := e.cfg.Neutral
	reasons := []string{ReasonRecent}
	if len(changes) > 0 {
		score += e.cfg.ChangeBonus
		reasons = append(reasons, changes...)
	}
	return e.assess(score, false, reasons...)
}

func (e *Engine) assess(score float64, isNew bool, reasons ...string) domain.NoveltyAssessment {
	score = math.Max(e.cfg.Floor, math.Min(e.cfg.Max, score))
	return domain.NoveltyAssessment{
		Score:      score,
		Normalized: e.Normalize(score),
		IsNew:      isNew,
		Reasons:    reasons,
	}
}

// Normalize maps a score in [Floor, Max] onto [0, 100].
func (e *Engine) Normalize(score float64) float64 {
	span := e.cfg.Max - e.cfg.Floor
	if span <= 0 {
		return 0
	}
	n := (score - e.cfg.Floor) / span * 100
	return math.Max(0, math.Min(100, n))
}

func qualifyingChanges(entry domain.UniverseEntry, state domain.NoveltyState) []string {
	var out []string
	if entry.MaterialEventAt != nil && entry.MaterialEventAt.After(state.LastSeen) {
		out = append(out, ReasonMaterialNews)
	}
	if hint := edgeKeyFromHint(entry.EdgeHint); hint != "" && state.LastEdgeKey != "" && hint != state.LastEdgeKey {
		out = append(out, ReasonEdgeChanged)
	}
	if entry.StyleHint != "" && state.LastStyle != "" && entry.StyleHint != state.LastStyle {
		out = append(out, ReasonStyleChanged)
	}
	return out
}

func edgeKeyFromHint(hint string) string {
	var edges []domain.EdgeType
	for _, part := range strings.Split(hint, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			edges = append(edges, domain.EdgeType(p))
		}
	}
	return domain.EdgeKey(edges)
}

// Observe returns the state to persist after a ticker was shortlisted.
// Enrichment, when present, supplies the edge and style to remember.
func (e *Engine) Observe(prev *domain.NoveltyState, entry domain.UniverseEntry, enrichment *domain.Enrichment, now time.Time) domain.NoveltyState {
	var next domain.NoveltyState
	if prev != nil {
		next = prev.Clone()
	}
	next.Ticker = entry.Ticker
	if next.FirstSeen.IsZero() {
		next.FirstSeen = now
	}
	next.LastSeen = now
	next.Appearances = append(next.Appearances, now)
	next.SortAppearances()
	next.Appearances = prune(next.Appearances, now.Add(-e.cfg.noveltyWindow()))

	switch {
	case enrichment != nil && len(enrichment.EdgeTypes) > 0:
		next.LastEdgeKey = domain.EdgeKey(enrichment.EdgeTypes)
	case entry.EdgeHint != "":
		next.LastEdgeKey = edgeKeyFromHint(entry.EdgeHint)
	}
	switch {
	case enrichment != nil && enrichment.Style.Valid():
		next.LastStyle = enrichment.Style
	case entry.StyleHint != "":
		next.LastStyle = entry.StyleHint
	}
	next.UpdatedAt = now
	return next
}

// Decay drops appearances that fell out of the novelty window and returns
// only the states that changed.
func (e *Engine) Decay(states []domain.NoveltyState, now time.Time) []domain.NoveltyState {
	cutoff := now.Add(-e.cfg.noveltyWindow())
	var out []domain.NoveltyState
	for _, s := range states {
		kept := prune(s.Appearances, cutoff)
		if len(kept) == len(s.Appearances) {
			continue
		}
		next := s.Clone()
		next.Appearances = kept
		next.UpdatedAt = now
		out = append(out, next)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func prune(at []time.Time, cutoff time.Time) []time.Time {
	out := make([]time.Time, 0, len(at))
	for _, t := range at {
		if !t.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
