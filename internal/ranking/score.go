// Package ranking scores gated candidates, orders them, and decides which
// ones are promoted into versioned ideas.
package ranking

import (
	"math"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

// scale maps a metric linearly onto [0,1]; lo may exceed hi for metrics
// where smaller is better.
type scale struct {
	metric string
	lo, hi float64
}

var (
	qualityScales = []scale{
		{"gross_margin", 0, 0.6},
		{"operating_margin", 0, 0.3},
		{"roic", 0, 0.25},
	}
	resilienceScales = []scale{
		{"net_debt_to_ebitda", 4, 0},
		{"interest_coverage", 0, 10},
		{"current_ratio", 0.5, 2.5},
	}
	valuationScales = []scale{
		{"ev_to_ebit", 25, 5},
		{"fcf_yield", 0, 0.10},
		{"price_to_book", 3, 0.5},
	}
)

// neutralPrior is used for a metric family with no known inputs.
const neutralPrior = 0.5

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func (s scale) apply(v float64) float64 {
	if s.hi == s.lo {
		return 0
	}
	return clamp01((v - s.lo) / (s.hi - s.lo))
}

func family(m domain.Metrics, scales []scale) float64 {
	var sum float64
	n := 0
	for _, s := range scales {
		v, _ := m.Lookup(s.metric)
		if v == nil {
			continue
		}
		sum += s.apply(*v)
		n++
	}
	if n == 0 {
		return neutralPrior
	}
	return sum / float64(n)
}

type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Score is a weighted sum of sub-scores, each clamped to [0,1] before
// weighting, minus penalties. The total is clamped to [0,100].
func (s *Scorer) Score(c domain.GatedCandidate) domain.ScoreComponents {
	enr := c.Enriched.Enrichment
	r := enr.Ratings
	out := domain.ScoreComponents{
		EdgeClarity:             clamp01(r.EdgeClarity/10) * s.w.EdgeClarity,
		BusinessQuality:         family(enr.Metrics, qualityScales) * s.w.BusinessQuality,
		FinancialResilience:     family(enr.Metrics, resilienceScales) * s.w.FinancialResilience,
		ValuationTension:        family(enr.Metrics, valuationScales) * s.w.ValuationTension,
		CatalystClarity:         clamp01(r.CatalystClarity/10) * s.w.CatalystClarity,
		InformationAvailability: clamp01(c.Enriched.Coverage.Ratio()) * s.w.InformationAvailability,
		ComplexityPenalty:       clamp01(r.Complexity/10) * s.w.ComplexityPenalty,
		DisclosurePenalty:       clamp01(r.DisclosureFriction/10) * s.w.DisclosurePenalty,
	}
	total := out.EdgeClarity + out.BusinessQuality + out.FinancialResilience + out.ValuationTension +
		out.CatalystClarity + out.InformationAvailability - out.ComplexityPenalty - out.DisclosurePenalty
	out.Total = math.Max(0, math.Min(100, total))
	return out
}
