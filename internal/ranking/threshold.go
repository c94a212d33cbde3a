package ranking

import "github.com/arc-research/arc-pipeline/internal/domain"

type ThresholdPolicy struct {
	cfg Config
}

func NewThresholdPolicy(cfg Config) ThresholdPolicy {
	return ThresholdPolicy{cfg: cfg}
}

// Effective is the promotion threshold for one candidate given this week's
// quota state: the style base, lowered by the style's override when its
// component clears the bar, then raised by the add-on when the style is
// overweight its target share.
func (p ThresholdPolicy) Effective(style domain.Style, score domain.ScoreComponents, quota domain.QuotaState) float64 {
	sp, ok := p.cfg.Styles[style]
	if !ok {
		return p.cfg.DefaultThreshold
	}
	threshold := sp.Base
	if o := sp.Override; o != nil {
		if v, ok := score.Component(o.Component); ok && v >= o.Min {
			threshold = o.Threshold
		}
	}
	if p.Overweight(style, quota) {
		threshold += p.cfg.OverweightAddOn
	}
	return threshold
}

// Overweight reports whether the style's weekly share exceeds its target by
// more than the cutoff.
func (p ThresholdPolicy) Overweight(style domain.Style, quota domain.QuotaState) bool {
	sp, ok := p.cfg.Styles[style]
	if !ok {
		return false
	}
	return quota.SharePct(style)-sp.TargetSharePct > p.cfg.OverweightCutoffPts
}
