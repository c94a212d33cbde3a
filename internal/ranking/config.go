package ranking

import (
	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/platform/validation"
)

// Weights are the maximum points each component contributes.
type Weights struct {
	EdgeClarity             float64 `yaml:"edge_clarity"`
	BusinessQuality         float64 `yaml:"business_quality"`
	FinancialResilience     float64 `yaml:"financial_resilience"`
	ValuationTension        float64 `yaml:"valuation_tension"`
	CatalystClarity         float64 `yaml:"catalyst_clarity"`
	InformationAvailability float64 `yaml:"information_availability"`
	ComplexityPenalty       float64 `yaml:"complexity_penalty"`
	DisclosurePenalty       float64 `yaml:"disclosure_penalty"`
}

// Override lowers a style's threshold when one score component clears Min.
type Override struct {
	Component string  `yaml:"component"`
	Min       float64 `yaml:"min"`
	Threshold float64 `yaml:"threshold"`
}

type StylePolicy struct {
	Base           float64   `yaml:"base"`
	Override       *Override `yaml:"override,omitempty"`
	TargetSharePct float64   `yaml:"target_share_pct"`
	// WeeklyCap bounds promotions of the style per week; zero means no cap.
	WeeklyCap int `yaml:"weekly_cap"`
}

type Config struct {
	Weights             Weights                      `yaml:"weights"`
	FundamentalWeight   float64                      `yaml:"fundamental_weight"`
	NoveltyWeight       float64                      `yaml:"novelty_weight"`
	DefaultThreshold    float64                      `yaml:"default_threshold"`
	OverweightCutoffPts float64                      `yaml:"overweight_cutoff_pts"`
	OverweightAddOn     float64                      `yaml:"overweight_add_on"`
	DailyCap            int                          `yaml:"daily_cap"`
	WeeklyCap           int                          `yaml:"weekly_cap"`
	Styles              map[domain.Style]StylePolicy `yaml:"styles"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			EdgeClarity:             20,
			BusinessQuality:         20,
			FinancialResilience:     15,
			ValuationTension:        15,
			CatalystClarity:         15,
			InformationAvailability: 15,
			ComplexityPenalty:       10,
			DisclosurePenalty:       10,
		},
		FundamentalWeight:   0.55,
		NoveltyWeight:       0.45,
		DefaultThreshold:    70,
		OverweightCutoffPts: 10,
		OverweightAddOn:     5,
		DailyCap:            3,
		WeeklyCap:           10,
		Styles: map[domain.Style]StylePolicy{
			domain.StyleQualityCompounder: {
				Base:           65,
				Override:       &Override{Component: "business_quality", Min: 17, Threshold: 62},
				TargetSharePct: 40,
				WeeklyCap:      4,
			},
			domain.StyleGARP: {
				Base:           65,
				TargetSharePct: 30,
				WeeklyCap:      4,
			},
			domain.StyleCigarButt: {
				Base:           72,
				Override:       &Override{Component: "financial_resilience", Min: 12, Threshold: 66},
				TargetSharePct: 15,
				WeeklyCap:      2,
			},
			domain.StyleSpecialSituation: {
				Base:           68,
				Override:       &Override{Component: "catalyst_clarity", Min: 13, Threshold: 65},
				TargetSharePct: 15,
				WeeklyCap:      2,
			},
		},
	}
}

func (c Config) Validate() error {
	v := validation.New("ranking config")
	w := c.Weights
	for name, val := range map[string]float64{
		"edge_clarity": w.EdgeClarity, "business_quality": w.BusinessQuality,
		"financial_resilience": w.FinancialResilience, "valuation_tension": w.ValuationTension,
		"catalyst_clarity": w.CatalystClarity, "information_availability": w.InformationAvailability,
		"complexity_penalty": w.ComplexityPenalty, "disclosure_penalty": w.DisclosurePenalty,
	} {
		if val < 0 {
			v.Addf("ranking.weights.%s must be >= 0", name)
		}
	}
	if c.FundamentalWeight < 0 || c.NoveltyWeight < 0 || c.FundamentalWeight+c.NoveltyWeight <= 0 {
		v.Add("ranking.fundamental_weight and novelty_weight must be >= 0 and not both zero")
	}
	if c.OverweightAddOn < 0 {
		v.Add("ranking.overweight_add_on must be >= 0")
	}
	if c.DailyCap < 0 || c.WeeklyCap < 0 {
		v.Add("ranking caps must be >= 0")
	}
	var share float64
	for style, p := range c.Styles {
		if !style.Valid() {
			v.Addf("ranking.styles: unknown style %q", style)
		}
		if p.Override != nil {
			if _, ok := (domain.ScoreComponents{}).Component(p.Override.Component); !ok {
				v.Addf("ranking.styles.%s.override: unknown component %q", style, p.Override.Component)
			}
			if p.Override.Threshold > p.Base {
				v.Addf("ranking.styles.%s.override threshold must not exceed base", style)
			}
		}
		if p.WeeklyCap < 0 {
			v.Addf("ranking.styles.%s.weekly_cap must be >= 0", style)
		}
		share += p.TargetSharePct
	}
	if len(c.Styles) > 0 && (share < 99.5 || share > 100.5) {
		v.Addf("ranking target shares sum to %.1f, want 100", share)
	}
	return v.OrNil()
}
