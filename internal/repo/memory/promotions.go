package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

// Promotions commits ideas and quota counts held by an IdeaStore and a
// QuotaStore. Both locks are held for the whole commit, ideas first.
type Promotions struct {
	ideas *IdeaStore
	quota *QuotaStore
}

func NewPromotions(ideas *IdeaStore, quota *QuotaStore) *Promotions {
	return &Promotions{ideas: ideas, quota: quota}
}

func (p *Promotions) Commit(ctx context.Context, idea domain.Idea, asOf time.Time) (domain.Idea, domain.QuotaState, error) {
	if p == nil || p.ideas == nil || p.quota == nil {
		return domain.Idea{}, domain.QuotaState{}, fmt.Errorf("promotion store not initialized")
	}
	idea, err := prepareIdea(idea)
	if err != nil {
		return domain.Idea{}, domain.QuotaState{}, err
	}

	p.ideas.mu.Lock()
	defer p.ideas.mu.Unlock()
	p.quota.mu.Lock()
	defer p.quota.mu.Unlock()

	stored, err := p.ideas.appendLocked(idea)
	if err != nil {
		return domain.Idea{}, domain.QuotaState{}, err
	}
	return stored, p.quota.incrementLocked(asOf, stored.Style), nil
}

var _ repo.PromotionRepository = (*Promotions)(nil)
