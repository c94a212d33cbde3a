// Package pipeline wires the shortlist, enrichment, gate, ranking and
// research stages into named runs and records their outcome.
package pipeline

import (
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/enrich"
	"github.com/arc-research/arc-pipeline/internal/gates"
	"github.com/arc-research/arc-pipeline/internal/research"
)

// RunContext carries the output of each stage to the next. Each slot is
// written by exactly one step.
type RunContext struct {
	RunID  string
	Type   domain.RunType
	AsOf   time.Time
	DryRun bool

	Universe      []domain.UniverseEntry
	States        map[string]domain.NoveltyState
	Shortlist     []domain.ShortlistEntry
	Enriched      []domain.EnrichedCandidate
	EnrichStats   enrich.Stats
	Observed      int
	Gated         []domain.GatedCandidate
	Rejections    []gates.Rejection
	GateStats     gates.Stats
	Ranked        []domain.ScoredCandidate
	RankIssues    []string
	Decisions     []domain.PromotionDecision
	Selected      []domain.Idea
	Packets       []domain.ResearchPacket
	ResearchStats research.Stats
	PacketRefs    []domain.PacketRef
	Decayed       int
	Swept         int
}

// Promoted returns the ideas created by this run.
func (rc *RunContext) Promoted() []domain.Idea {
	out := make([]domain.Idea, 0, len(rc.Decisions))
	for _, d := range rc.Decisions {
		if d.Promoted && d.Idea != nil {
			out = append(out, *d.Idea)
		}
	}
	return out
}

func (rc *RunContext) explorationCount() int {
	n := 0
	for _, s := range rc.Shortlist {
		if s.Exploration {
			n++
		}
	}
	return n
}

// Stats are the counters stored on the run record.
func (rc *RunContext) Stats() domain.Metadata {
	stats := domain.Metadata{"dry_run": rc.DryRun}
	switch rc.Type {
	case domain.RunLaneADaily:
		gateFailures := map[string]int{}
		for _, g := range rc.GateStats.Gates {
			if g.Failed > 0 {
				gateFailures[string(g.Gate)] = g.Failed
			}
		}
		stats["universe"] = len(rc.Universe)
		stats["shortlisted"] = len(rc.Shortlist)
		stats["exploration"] = rc.explorationCount()
		stats["enriched"] = rc.EnrichStats.Enriched
		stats["enrich_failed"] = rc.EnrichStats.Failed
		stats["novelty_observed"] = rc.Observed
		stats["gates_passed"] = rc.GateStats.Advanced
		stats["gate_failures"] = gateFailures
		stats["ranked"] = len(rc.Ranked)
		if len(rc.RankIssues) > 0 {
			stats["rank_issues"] = rc.RankIssues
		}
		stats["promoted"] = len(rc.Promoted())
	case domain.RunLaneBWeekly:
		stats["selected"] = len(rc.Selected)
		stats["packets"] = rc.ResearchStats.Written
		stats["research_failed"] = rc.ResearchStats.Failed
		stats["packets_stored"] = len(rc.PacketRefs)
	case domain.RunMaintenance:
		stats["novelty_decayed"] = rc.Decayed
		stats["cache_swept"] = rc.Swept
	}
	return stats
}
