// Package gates runs the five ordered pass/fail checks every enriched
// candidate must clear before it is scored.
package gates

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

type check func(c domain.EnrichedCandidate) (bool, string)

type Engine struct {
	cfg    Config
	checks [5]check
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{cfg: cfg}
	e.checks = [5]check{
		e.dataSufficiency,
		e.coherence,
		e.edgeClaim,
		e.downsideShape,
		e.styleFit,
	}
	return e
}

// Run evaluates the gates in order and stops at the first failure; the
// remaining gates are recorded as not evaluated.
func (e *Engine) Run(c domain.EnrichedCandidate) domain.GateOutcome {
	var out domain.GateOutcome
	out.Passed = true
	for i, name := range domain.GateOrder {
		if !out.Passed {
			out.Results[i] = domain.GateResult{Gate: name, Status: domain.GateNotEvaluated}
			continue
		}
		ok, reason := e.checks[i](c)
		if ok {
			out.Results[i] = domain.GateResult{Gate: name, Status: domain.GatePassed}
			continue
		}
		out.Results[i] = domain.GateResult{Gate: name, Status: domain.GateFailed, Reason: reason}
		out.Passed = false
		out.FirstFailure = name
	}
	return out
}

func (e *Engine) dataSufficiency(c domain.EnrichedCandidate) (bool, string) {
	enr := c.Enrichment
	if n := utf8.RuneCountInString(enr.Hypothesis); n < e.cfg.MinHypothesisChars {
		return false, fmt.Sprintf("hypothesis has %d chars, need %d", n, e.cfg.MinHypothesisChars)
	}
	if n := utf8.RuneCountInString(enr.Mechanism); n < e.cfg.MinMechanismChars {
		return false, fmt.Sprintf("mechanism has %d chars, need %d", n, e.cfg.MinMechanismChars)
	}
	if n := len(enr.Signposts); n < e.cfg.MinSignposts {
		return false, fmt.Sprintf("%d signposts, need %d", n, e.cfg.MinSignposts)
	}
	if n := len(enr.Catalysts); n < e.cfg.MinCatalysts {
		return false, fmt.Sprintf("%d catalysts, need %d", n, e.cfg.MinCatalysts)
	}
	var missing []string
	for _, name := range e.cfg.RequiredMetrics {
		if v, _ := enr.Metrics.Lookup(name); v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return false, "missing metrics: " + strings.Join(missing, ", ")
	}
	return true, ""
}

func (e *Engine) coherence(c domain.EnrichedCandidate) (bool, string) {
	headline := utf8.RuneCountInString(strings.TrimSpace(c.Enrichment.Headline))
	if headline == 0 {
		return false, "no headline claim"
	}
	explanation := utf8.RuneCountInString(c.Enrichment.Hypothesis) + utf8.RuneCountInString(c.Enrichment.Mechanism)
	ratio := float64(explanation) / float64(headline)
	if ratio < e.cfg.MinCoherenceRatio {
		return false, fmt.Sprintf("explanation is %.1fx the headline, need %.1fx", ratio, e.cfg.MinCoherenceRatio)
	}
	return true, ""
}

func (e *Engine) edgeClaim(c domain.EnrichedCandidate) (bool, string) {
	edges := c.Enrichment.EdgeTypes
	if len(edges) == 0 {
		return false, "no edge declared"
	}
	for _, edge := range edges {
		if !edge.Valid() {
			return false, fmt.Sprintf("unknown edge type %q", edge)
		}
	}
	return true, ""
}

func (e *Engine) downsideShape(c domain.EnrichedCandidate) (bool, string) {
	d := e.cfg.downside(c.Enrichment.Style)
	m := c.Enrichment.Metrics
	if m.NetDebtToEBITDA != nil && d.MaxNetDebtToEBITDA > 0 && *m.NetDebtToEBITDA > d.MaxNetDebtToEBITDA {
		return false, fmt.Sprintf("net debt/ebitda %.2f above %.2f", *m.NetDebtToEBITDA, d.MaxNetDebtToEBITDA)
	}
	if m.InterestCoverage != nil && *m.InterestCoverage < d.MinInterestCoverage {
		return false, fmt.Sprintf("interest coverage %.2f below %.2f", *m.InterestCoverage, d.MinInterestCoverage)
	}
	if m.CurrentRatio != nil && *m.CurrentRatio < d.MinCurrentRatio {
		return false, fmt.Sprintf("current ratio %.2f below %.2f", *m.CurrentRatio, d.MinCurrentRatio)
	}
	return true, ""
}

func (e *Engine) styleFit(c domain.EnrichedCandidate) (bool, string) {
	style := c.Enrichment.Style
	if !style.Valid() {
		return false, "no declared style"
	}
	rules, ok := e.cfg.Styles[style]
	if !ok {
		return false, fmt.Sprintf("no fit rules for style %s", style)
	}
	for _, b := range rules.Fit {
		v, _ := c.Enrichment.Metrics.Lookup(b.Metric)
		if v == nil {
			return false, fmt.Sprintf("%s: %s unknown", style, b.Metric)
		}
		if b.Min != nil && *v < *b.Min {
			return false, fmt.Sprintf("%s: %s %.2f below %.2f", style, b.Metric, *v, *b.Min)
		}
		if b.Max != nil && *v > *b.Max {
			return false, fmt.Sprintf("%s: %s %.2f above %.2f", style, b.Metric, *v, *b.Max)
		}
	}
	return true, ""
}
