package domain

import "time"

// UniverseEntry is one ticker of the daily investable universe.
type UniverseEntry struct {
	Ticker    string
	Name      string
	Sector    string
	Industry  string
	MarketCap float64
	// Hints come from the screener and may be empty.
	EdgeHint        string
	StyleHint       Style
	MaterialEventAt *time.Time
}

type NoveltyAssessment struct {
	Score      float64
	Normalized float64
	IsNew      bool
	Reasons    []string
}

type ShortlistEntry struct {
	Entry       UniverseEntry
	Novelty     NoveltyAssessment
	Exploration bool
}

func (s ShortlistEntry) Ticker() string { return s.Entry.Ticker }

// Metrics holds quantitative fundamentals. Nil means unknown.
type Metrics struct {
	GrossMargin      *float64 `json:"gross_margin,omitempty"`
	OperatingMargin  *float64 `json:"operating_margin,omitempty"`
	ROIC             *float64 `json:"roic,omitempty"`
	NetDebtToEBITDA  *float64 `json:"net_debt_to_ebitda,omitempty"`
	InterestCoverage *float64 `json:"interest_coverage,omitempty"`
	CurrentRatio     *float64 `json:"current_ratio,omitempty"`
	EVToEBIT         *float64 `json:"ev_to_ebit,omitempty"`
	PriceToBook      *float64 `json:"price_to_book,omitempty"`
	FCFYield         *float64 `json:"fcf_yield,omitempty"`
}

// Lookup resolves a metric by its snake_case name.
func (m Metrics) Lookup(name string) (*float64, bool) {
	switch name {
	case "gross_margin":
		return m.GrossMargin, true
	case "operating_margin":
		return m.OperatingMargin, true
	case "roic":
		return m.ROIC, true
	case "net_debt_to_ebitda":
		return m.NetDebtToEBITDA, true
	case "interest_coverage":
		return m.InterestCoverage, true
	case "current_ratio":
		return m.CurrentRatio, true
	case "ev_to_ebit":
		return m.EVToEBIT, true
	case "price_to_book":
		return m.PriceToBook, true
	case "fcf_yield":
		return m.FCFYield, true
	default:
		return nil, false
	}
}

// Merge fills unknown metrics from other.
func (m Metrics) Merge(other Metrics) Metrics {
	pick := func(a, b *float64) *float64 {
		if a != nil {
			return a
		}
		return b
	}
	return Metrics{
		GrossMargin:      pick(m.GrossMargin, other.GrossMargin),
		OperatingMargin:  pick(m.OperatingMargin, other.OperatingMargin),
		ROIC:             pick(m.ROIC, other.ROIC),
		NetDebtToEBITDA:  pick(m.NetDebtToEBITDA, other.NetDebtToEBITDA),
		InterestCoverage: pick(m.InterestCoverage, other.InterestCoverage),
		CurrentRatio:     pick(m.CurrentRatio, other.CurrentRatio),
		EVToEBIT:         pick(m.EVToEBIT, other.EVToEBIT),
		PriceToBook:      pick(m.PriceToBook, other.PriceToBook),
		FCFYield:         pick(m.FCFYield, other.FCFYield),
	}
}

// Ratings are qualitative 0-10 judgements returned by the reasoning service.
type Ratings struct {
	EdgeClarity        float64 `json:"edge_clarity"`
	CatalystClarity    float64 `json:"catalyst_clarity"`
	Complexity         float64 `json:"complexity"`
	DisclosureFriction float64 `json:"disclosure_friction"`
}

type Enrichment struct {
	Headline   string     `json:"headline"`
	Hypothesis string     `json:"hypothesis"`
	Mechanism  string     `json:"mechanism"`
	EdgeTypes  []EdgeType `json:"edge_types"`
	Style      Style      `json:"style"`
	Signposts  []string   `json:"signposts"`
	Catalysts  []string   `json:"catalysts"`
	Metrics    Metrics    `json:"metrics"`
	Ratings    Ratings    `json:"ratings"`
	Model      string     `json:"model,omitempty"`
}

type SourceCoverage struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// Ratio is the share of requested sources that answered.
func (c SourceCoverage) Ratio() float64 {
	total := len(c.Succeeded) + len(c.Failed)
	if total == 0 {
		return 0
	}
	return float64(len(c.Succeeded)) / float64(total)
}

type EnrichedCandidate struct {
	Shortlist  ShortlistEntry
	Enrichment Enrichment
	Coverage   SourceCoverage
}

func (c EnrichedCandidate) Ticker() string { return c.Shortlist.Entry.Ticker }

type GateName string

const (
	GateDataSufficiency GateName = "data_sufficiency"
	GateCoherence       GateName = "coherence"
	GateEdgeClaim       GateName = "edge_claim"
	GateDownsideShape   GateName = "downside_shape"
	GateStyleFit        GateName = "style_fit"
)

// GateOrder is the fixed evaluation order.
var GateOrder = [5]GateName{
	GateDataSufficiency,
	GateCoherence,
	GateEdgeClaim,
	GateDownsideShape,
	GateStyleFit,
}

type GateStatus string

const (
	GatePassed       GateStatus = "passed"
	GateFailed       GateStatus = "failed"
	GateNotEvaluated GateStatus = "not_evaluated"
)

type GateResult struct {
	Gate   GateName   `json:"gate"`
	Status GateStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// GateOutcome is held by value; its array is copied with the candidate.
type GateOutcome struct {
	Results      [5]GateResult `json:"results"`
	Passed       bool          `json:"passed"`
	FirstFailure GateName      `json:"first_failure,omitempty"`
}

type GatedCandidate struct {
	Enriched EnrichedCandidate
	Gates    GateOutcome
}

func (c GatedCandidate) Ticker() string { return c.Enriched.Ticker() }
func (c GatedCandidate) Style() Style   { return c.Enriched.Enrichment.Style }

// ScoreComponents are the point contributions making up a fundamental score.
type ScoreComponents struct {
	EdgeClarity             float64 `json:"edge_clarity"`
	BusinessQuality         float64 `json:"business_quality"`
	FinancialResilience     float64 `json:"financial_resilience"`
	ValuationTension        float64 `json:"valuation_tension"`
	CatalystClarity         float64 `json:"catalyst_clarity"`
	InformationAvailability float64 `json:"information_availability"`
	ComplexityPenalty       float64 `json:"complexity_penalty"`
	DisclosurePenalty       float64 `json:"disclosure_penalty"`
	Total                   float64 `json:"total"`
}

// Component resolves a sub-score by name for threshold overrides.
func (s ScoreComponents) Component(name string) (float64, bool) {
	switch name {
	case "edge_clarity":
		return s.EdgeClarity, true
	case "business_quality":
		return s.BusinessQuality, true
	case "financial_resilience":
		return s.FinancialResilience, true
	case "valuation_tension":
		return s.ValuationTension, true
	case "catalyst_clarity":
		return s.CatalystClarity, true
	case "information_availability":
		return s.InformationAvailability, true
	default:
		return 0, false
	}
}

type ScoredCandidate struct {
	Gated     GatedCandidate
	Score     ScoreComponents
	RankScore float64
	Rank      int
	Quintile  int
}

func (c ScoredCandidate) Ticker() string { return c.Gated.Ticker() }
func (c ScoredCandidate) Style() Style   { return c.Gated.Style() }

type PromotionDecision struct {
	Candidate ScoredCandidate
	Threshold float64
	Margin    float64
	Promoted  bool
	Reason    string
	Idea      *Idea
}
