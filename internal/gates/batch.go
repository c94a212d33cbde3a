package gates

import "github.com/arc-research/arc-pipeline/internal/domain"

type GateCount struct {
	Gate         domain.GateName `json:"gate"`
	Passed       int             `json:"passed"`
	Failed       int             `json:"failed"`
	NotEvaluated int             `json:"not_evaluated"`
}

// Stats aggregates a batch. Each gate's three counts sum to Total.
type Stats struct {
	Total    int          `json:"total"`
	Advanced int          `json:"advanced"`
	Gates    [5]GateCount `json:"gates"`
}

type Rejection struct {
	Candidate domain.GatedCandidate
	Gate      domain.GateName
	Reason    string
}

func (e *Engine) RunBatch(candidates []domain.EnrichedCandidate) ([]domain.GatedCandidate, []Rejection, Stats) {
	stats := Stats{Total: len(candidates)}
	for i, name := range domain.GateOrder {
		stats.Gates[i].Gate = name
	}

	var (
		passed   []domain.GatedCandidate
		rejected []Rejection
	)
	for _, c := range candidates {
		outcome := e.Run(c)
		gated := domain.GatedCandidate{Enriched: c, Gates: outcome}
		for i, r := range outcome.Results {
			switch r.Status {
			case domain.GatePassed:
				stats.Gates[i].Passed++
			case domain.GateFailed:
				stats.Gates[i].Failed++
				rejected = append(rejected, Rejection{Candidate: gated, Gate: r.Gate, Reason: r.Reason})
			default:
				stats.Gates[i].NotEvaluated++
			}
		}
		if outcome.Passed {
			passed = append(passed, gated)
		}
	}
	stats.Advanced = len(passed)
	return passed, rejected, stats
}
