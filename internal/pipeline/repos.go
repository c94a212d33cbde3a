package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
	"github.com/arc-research/arc-pipeline/internal/repo/memory"
)

// MemoryRepos is a process-local set of repositories.
func MemoryRepos() Repos {
	ideas := memory.NewIdeaStore()
	quota := memory.NewQuotaStore()
	return Repos{
		Ideas:      ideas,
		Novelty:    memory.NewNoveltyStore(),
		Quota:      quota,
		Promotions: memory.NewPromotions(ideas, quota),
		Runs:       memory.NewRunStore(),
		Rejections: memory.NewRejectionStore(),
		Steps:      memory.NewStepExecutionStore(),
		Packets:    NewMemoryPackets(),
		Audit:      NewMemoryAudit(),
	}
}

// scratchRepos snapshots the live novelty and rejection state into memory
// so a dry run sees real history but writes nothing back.
func scratchRepos(ctx context.Context, logger *slog.Logger, live Repos, asOf time.Time) Repos {
	out := MemoryRepos()

	states, err := live.Novelty.List(ctx)
	if err != nil {
		logger.Warn("dry run: novelty snapshot unavailable", "error", err)
	}
	out.Novelty = memory.NewNoveltyStore(states...)

	blocked, err := live.Rejections.ListBlocking(ctx, asOf)
	if err != nil {
		logger.Warn("dry run: rejection snapshot unavailable", "error", err)
	}
	markers := make([]domain.RejectionMarker, 0, len(blocked))
	for _, m := range blocked {
		markers = append(markers, m)
	}
	out.Rejections = memory.NewRejectionStore(markers...)

	scratch := memory.NewIdeaStore()
	quota := memory.NewQuotaStore()
	ideas := &scratchIdeas{live: live.Ideas, scratch: scratch}
	out.Ideas = ideas
	out.Quota = quota
	out.Promotions = &scratchPromotions{ideas: ideas, commit: memory.NewPromotions(scratch, quota)}
	return out
}

// scratchPromotions commits into the scratch stores and numbers versions
// after the live ones.
type scratchPromotions struct {
	ideas  *scratchIdeas
	commit *memory.Promotions
}

func (s *scratchPromotions) Commit(ctx context.Context, idea domain.Idea, asOf time.Time) (domain.Idea, domain.QuotaState, error) {
	idea.Version = 0
	stored, state, err := s.commit.Commit(ctx, idea, asOf)
	if err != nil {
		return domain.Idea{}, domain.QuotaState{}, err
	}
	stored.Version += s.ideas.liveLatest(ctx, stored.Ticker)
	return stored, state, nil
}

// scratchIdeas reads through to the live store and keeps writes in memory.
// Versions returned by Create continue the live numbering.
type scratchIdeas struct {
	live    repo.IdeaRepository
	scratch *memory.IdeaStore
}

func (s *scratchIdeas) liveLatest(ctx context.Context, ticker string) int {
	latest, err := s.live.GetLatestByTicker(ctx, ticker)
	if err != nil {
		return 0
	}
	return latest.Version
}

func (s *scratchIdeas) shift(ctx context.Context, ideas []domain.Idea) []domain.Idea {
	for i := range ideas {
		ideas[i].Version += s.liveLatest(ctx, ideas[i].Ticker)
	}
	return ideas
}

func (s *scratchIdeas) Create(ctx context.Context, idea domain.Idea) (domain.Idea, error) {
	idea.Version = 0
	stored, err := s.scratch.Create(ctx, idea)
	if err != nil {
		return domain.Idea{}, err
	}
	stored.Version += s.liveLatest(ctx, stored.Ticker)
	return stored, nil
}

func (s *scratchIdeas) GetByTicker(ctx context.Context, ticker string) ([]domain.Idea, error) {
	live, err := s.live.GetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	scratch, _ := s.scratch.GetByTicker(ctx, ticker)
	return append(live, s.shift(ctx, scratch)...), nil
}

func (s *scratchIdeas) GetLatestByTicker(ctx context.Context, ticker string) (domain.Idea, error) {
	if latest, err := s.scratch.GetLatestByTicker(ctx, ticker); err == nil {
		latest.Version += s.liveLatest(ctx, ticker)
		return latest, nil
	}
	return s.live.GetLatestByTicker(ctx, ticker)
}

func (s *scratchIdeas) ListSince(ctx context.Context, since time.Time) ([]domain.Idea, error) {
	live, err := s.live.ListSince(ctx, since)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	scratch, _ := s.scratch.ListSince(ctx, since)
	out := append(live, s.shift(ctx, scratch)...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
