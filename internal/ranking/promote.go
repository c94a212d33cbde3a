package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

const (
	ReasonPromoted        = "promoted"
	ReasonBelowThreshold  = "below threshold"
	ReasonDailyExhausted  = "daily quota exhausted"
	ReasonWeeklyExhausted = "weekly quota exhausted"
	ReasonStyleExhausted  = "style quota exhausted"
)

type Promoter struct {
	logger     *slog.Logger
	cfg        Config
	policy     ThresholdPolicy
	quotas     repo.QuotaRepository
	promotions repo.PromotionRepository
	now        func() time.Time
	newID      func() string
}

func NewPromoter(logger *slog.Logger, cfg Config, quotas repo.QuotaRepository, promotions repo.PromotionRepository) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{
		logger:     logger,
		cfg:        cfg,
		policy:     NewThresholdPolicy(cfg),
		quotas:     quotas,
		promotions: promotions,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Select decides promotion for every ranked candidate. Candidates are
// visited by margin over their threshold at batch start; each one is then
// re-checked against the quota state as updated by earlier promotions in
// the same batch. Each promotion commits its idea and quota increment
// together. A returned error means a commit failed; decisions made before it
// stand and are returned with the error.
func (p *Promoter) Select(ctx context.Context, runID string, ranked []domain.ScoredCandidate, asOf time.Time) ([]domain.PromotionDecision, error) {
	if p == nil || p.quotas == nil || p.promotions == nil {
		return nil, fmt.Errorf("promoter not initialized")
	}
	quota, err := p.quotas.GetCurrentWeek(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("load quota state: %w", err)
	}

	order := make([]domain.PromotionDecision, 0, len(ranked))
	for _, c := range ranked {
		threshold := p.policy.Effective(c.Style(), c.Score, quota)
		order = append(order, domain.PromotionDecision{Candidate: c, Threshold: threshold, Margin: c.Score.Total - threshold})
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Margin != order[j].Margin {
			return order[i].Margin > order[j].Margin
		}
		return order[i].Candidate.Rank < order[j].Candidate.Rank
	})

	for i := range order {
		d := &order[i]
		style := d.Candidate.Style()
		d.Threshold = p.policy.Effective(style, d.Candidate.Score, quota)
		d.Margin = d.Candidate.Score.Total - d.Threshold

		switch {
		case p.cfg.DailyCap > 0 && quota.DailyTotal >= p.cfg.DailyCap:
			d.Reason = ReasonDailyExhausted
		case p.cfg.WeeklyCap > 0 && quota.WeeklyTotal >= p.cfg.WeeklyCap:
			d.Reason = ReasonWeeklyExhausted
		case p.styleCap(style) > 0 && quota.WeeklyByStyle[style] >= p.styleCap(style):
			d.Reason = ReasonStyleExhausted
		case d.Margin < 0:
			d.Reason = fmt.Sprintf("%s: %.1f < %.1f", ReasonBelowThreshold, d.Candidate.Score.Total, d.Threshold)
		}
		if d.Reason != "" {
			p.logger.Info("candidate not promoted", "run_id", runID, "ticker", d.Candidate.Ticker(), "reason", d.Reason)
			continue
		}

		idea, err := p.buildIdea(runID, *d)
		if err != nil {
			return order[:i], err
		}
		stored, state, err := p.promotions.Commit(ctx, idea, asOf)
		if err != nil {
			return order[:i], fmt.Errorf("promote %s: %w", idea.Ticker, err)
		}
		quota = state
		d.Promoted = true
		d.Reason = ReasonPromoted
		d.Idea = &stored
		p.logger.Info("idea promoted", "run_id", runID, "ticker", stored.Ticker, "version", stored.Version,
			"style", style, "score", d.Candidate.Score.Total, "threshold", d.Threshold)
	}
	return order, nil
}

func (p *Promoter) styleCap(style domain.Style) int {
	return p.cfg.Styles[style].WeeklyCap
}

func (p *Promoter) buildIdea(runID string, d domain.PromotionDecision) (domain.Idea, error) {
	c := d.Candidate
	enr := c.Gated.Enriched.Enrichment
	idea := domain.Idea{
		ID:           p.newID(),
		Ticker:       c.Ticker(),
		RunID:        runID,
		Style:        c.Style(),
		EdgeTypes:    append([]domain.EdgeType(nil), enr.EdgeTypes...),
		Headline:     enr.Headline,
		Hypothesis:   enr.Hypothesis,
		Mechanism:    enr.Mechanism,
		Signposts:    append([]string(nil), enr.Signposts...),
		Catalysts:    append([]string(nil), enr.Catalysts...),
		Score:        c.Score,
		RankScore:    c.RankScore,
		Rank:         c.Rank,
		Quintile:     c.Quintile,
		NoveltyScore: c.Gated.Enriched.Shortlist.Novelty.Score,
		Exploration:  c.Gated.Enriched.Shortlist.Exploration,
		Threshold:    d.Threshold,
		Margin:       d.Margin,
		Gates:        c.Gated.Gates,
		CreatedAt:    p.now().UTC(),
	}
	sum, err := idea.ComputeIntegrity()
	if err != nil {
		return domain.Idea{}, err
	}
	idea.IntegritySHA256 = sum
	return idea, nil
}
