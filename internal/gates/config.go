package gates

import (
	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/platform/validation"
)

// Bound is an inclusive range on one named metric. Either side may be open.
type Bound struct {
	Metric string   `yaml:"metric"`
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
}

type Downside struct {
	MaxNetDebtToEBITDA  float64 `yaml:"max_net_debt_to_ebitda"`
	MinInterestCoverage float64 `yaml:"min_interest_coverage"`
	MinCurrentRatio     float64 `yaml:"min_current_ratio"`
}

type StyleRules struct {
	Downside Downside `yaml:"downside"`
	Fit      []Bound  `yaml:"fit"`
}

type Config struct {
	MinHypothesisChars int      `yaml:"min_hypothesis_chars"`
	MinMechanismChars  int      `yaml:"min_mechanism_chars"`
	MinSignposts       int      `yaml:"min_signposts"`
	MinCatalysts       int      `yaml:"min_catalysts"`
	RequiredMetrics    []string `yaml:"required_metrics"`
	// MinCoherenceRatio is the minimum length of hypothesis plus mechanism
	// relative to the headline.
	MinCoherenceRatio float64                     `yaml:"min_coherence_ratio"`
	DefaultDownside   Downside                    `yaml:"default_downside"`
	Styles            map[domain.Style]StyleRules `yaml:"styles"`
}

func f(v float64) *float64 { return &v }

func DefaultConfig() Config {
	return Config{
		MinHypothesisChars: 60,
		MinMechanismChars:  40,
		MinSignposts:       2,
		MinCatalysts:       1,
		RequiredMetrics:    []string{"net_debt_to_ebitda", "current_ratio"},
		MinCoherenceRatio:  3,
		DefaultDownside:    Downside{MaxNetDebtToEBITDA: 3, MinInterestCoverage: 3, MinCurrentRatio: 1},
		Styles: map[domain.Style]StyleRules{
			domain.StyleQualityCompounder: {
				Downside: Downside{MaxNetDebtToEBITDA: 2.5, MinInterestCoverage: 5, MinCurrentRatio: 1},
				Fit: []Bound{
					{Metric: "gross_margin", Min: f(0.35)},
					{Metric: "roic", Min: f(0.12)},
				},
			},
			domain.StyleGARP: {
				Downside: Downside{MaxNetDebtToEBITDA: 3, MinInterestCoverage: 4, MinCurrentRatio: 1},
				Fit: []Bound{
					{Metric: "roic", Min: f(0.10)},
					{Metric: "ev_to_ebit", Max: f(20)},
				},
			},
			domain.StyleCigarButt: {
				Downside: Downside{MaxNetDebtToEBITDA: 1.5, MinInterestCoverage: 3, MinCurrentRatio: 1.5},
				Fit: []Bound{
					{Metric: "price_to_book", Max: f(1.2)},
					{Metric: "ev_to_ebit", Max: f(8)},
				},
			},
			domain.StyleSpecialSituation: {
				Downside: Downside{MaxNetDebtToEBITDA: 4.5, MinInterestCoverage: 1.5, MinCurrentRatio: 0.8},
				Fit: []Bound{
					{Metric: "ev_to_ebit", Max: f(25)},
				},
			},
		},
	}
}

func (c Config) Validate() error {
	v := validation.New("gates config")
	if c.MinHypothesisChars < 0 || c.MinMechanismChars < 0 || c.MinSignposts < 0 || c.MinCatalysts < 0 {
		v.Add("gates minimums must be >= 0")
	}
	if c.MinCoherenceRatio < 0 {
		v.Add("gates.min_coherence_ratio must be >= 0")
	}
	var probe domain.Metrics
	for _, name := range c.RequiredMetrics {
		if _, ok := probe.Lookup(name); !ok {
			v.Addf("gates.required_metrics: unknown metric %q", name)
		}
	}
	for style, rules := range c.Styles {
		if !style.Valid() {
			v.Addf("gates.styles: unknown style %q", style)
		}
		for i, b := range rules.Fit {
			if _, ok := probe.Lookup(b.Metric); !ok {
				v.Addf("gates.styles.%s.fit[%d]: unknown metric %q", style, i, b.Metric)
			}
			if b.Min == nil && b.Max == nil {
				v.Addf("gates.styles.%s.fit[%d]: min or max is required", style, i)
			}
			if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
				v.Addf("gates.styles.%s.fit[%d]: min must be <= max", style, i)
			}
		}
	}
	return v.OrNil()
}

func (c Config) downside(style domain.Style) Downside {
	if rules, ok := c.Styles[style]; ok {
		return rules.Downside
	}
	return c.DefaultDownside
}
