package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/notify"
	"github.com/arc-research/arc-pipeline/internal/platform/auditlog"
	"github.com/arc-research/arc-pipeline/internal/ranking"
	"github.com/arc-research/arc-pipeline/internal/research"
	"github.com/arc-research/arc-pipeline/internal/workflow"
)

const (
	StepLoadUniverse     = "load_universe"
	StepShortlist        = "shortlist"
	StepEnrich           = "enrich"
	StepRecordNovelty    = "record_novelty"
	StepGate             = "gate"
	StepRecordRejections = "record_rejections"
	StepRank             = "rank"
	StepPromote          = "promote"
	StepNotify           = "notify"

	StepSelectIdeas  = "select_ideas"
	StepResearch     = "research"
	StepStorePackets = "store_packets"

	StepDecayNovelty = "decay_novelty"
	StepSweepCache   = "sweep_cache"
)

type step = workflow.Step[*RunContext]

func (o *Orchestrator) laneASteps(repos Repos) []step {
	return []step{
		{
			ID:         StepLoadUniverse,
			Timeout:    2 * time.Minute,
			MaxRetries: 2,
			RetryDelay: 5 * time.Second,
			Backoff:    workflow.BackoffIncrementing,
			Run: func(ctx context.Context, rc *RunContext) error {
				universe, err := o.universe.Universe(ctx, rc.AsOf)
				if err != nil {
					return err
				}
				rc.Universe = universe
				return nil
			},
		},
		{
			ID:         StepShortlist,
			DependsOn:  []string{StepLoadUniverse},
			Timeout:    time.Minute,
			MaxRetries: 1,
			RetryDelay: time.Second,
			Run: func(ctx context.Context, rc *RunContext) error {
				tickers := make([]string, 0, len(rc.Universe))
				for _, e := range rc.Universe {
					tickers = append(tickers, e.Ticker)
				}
				states, err := repos.Novelty.GetMany(ctx, tickers)
				if err != nil {
					return fmt.Errorf("load novelty states: %w", err)
				}
				blocked, err := repos.Rejections.ListBlocking(ctx, rc.AsOf)
				if err != nil {
					return fmt.Errorf("load rejection markers: %w", err)
				}
				rc.States = states
				rc.Shortlist = o.novelty.Shortlist(rc.Universe, states, blocked, o.cfg.Novelty.Capacity, rc.AsOf)
				return nil
			},
		},
		{
			ID:        StepEnrich,
			DependsOn: []string{StepShortlist},
			Timeout:   45 * time.Minute,
			Run: func(ctx context.Context, rc *RunContext) error {
				rc.Enriched, rc.EnrichStats = o.enricher.Enrich(ctx, rc.Shortlist)
				if err := ctx.Err(); err != nil {
					return err
				}
				return nil
			},
		},
		{
			ID:         StepRecordNovelty,
			DependsOn:  []string{StepEnrich},
			Timeout:    5 * time.Minute,
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
			Run: func(ctx context.Context, rc *RunContext) error {
				enriched := make(map[string]*domain.Enrichment, len(rc.Enriched))
				for i := range rc.Enriched {
					enriched[rc.Enriched[i].Ticker()] = &rc.Enriched[i].Enrichment
				}
				rc.Observed = 0
				for _, s := range rc.Shortlist {
					var prev *domain.NoveltyState
					if st, ok := rc.States[s.Ticker()]; ok {
						prev = &st
					}
					next := o.novelty.Observe(prev, s.Entry, enriched[s.Ticker()], rc.AsOf)
					if err := repos.Novelty.Upsert(ctx, next); err != nil {
						return fmt.Errorf("upsert novelty %s: %w", s.Ticker(), err)
					}
					rc.Observed++
				}
				return nil
			},
		},
		{
			ID:        StepGate,
			DependsOn: []string{StepEnrich},
			Timeout:   time.Minute,
			Run: func(ctx context.Context, rc *RunContext) error {
				rc.Gated, rc.Rejections, rc.GateStats = o.gates.RunBatch(rc.Enriched)
				return nil
			},
		},
		{
			ID:         StepRecordRejections,
			DependsOn:  []string{StepGate},
			Timeout:    2 * time.Minute,
			BestEffort: true,
			Run: func(ctx context.Context, rc *RunContext) error {
				var errs []error
				for _, r := range rc.Rejections {
					marker := domain.RejectionMarker{
						ID:        uuid.NewString(),
						Ticker:    r.Candidate.Ticker(),
						Reason:    fmt.Sprintf("%s: %s", r.Gate, r.Reason),
						CreatedAt: rc.AsOf,
					}
					if err := repos.Rejections.Create(ctx, marker); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", marker.Ticker, err))
					}
				}
				return errors.Join(errs...)
			},
		},
		{
			ID:        StepRank,
			DependsOn: []string{StepGate},
			Timeout:   time.Minute,
			Run: func(ctx context.Context, rc *RunContext) error {
				rc.Ranked = ranking.Rank(o.scorer, o.cfg.Ranking, rc.Gated)
				rc.RankIssues = ranking.CheckDistribution(rc.Ranked)
				for _, issue := range rc.RankIssues {
					o.logger.Warn("ranked batch failed sanity check", "run_id", rc.RunID, "issue", issue)
				}
				return nil
			},
		},
		{
			// Promotion writes ideas and quota; it is not retried so a
			// partial batch is never promoted twice.
			ID:        StepPromote,
			DependsOn: []string{StepRank},
			Timeout:   5 * time.Minute,
			Run: func(ctx context.Context, rc *RunContext) error {
				promoter := ranking.NewPromoter(o.logger, o.cfg.Ranking, repos.Quota, repos.Promotions)
				decisions, err := promoter.Select(ctx, rc.RunID, rc.Ranked, rc.AsOf)
				rc.Decisions = decisions
				for _, idea := range rc.Promoted() {
					o.audit(ctx, repos, o.logger, auditlog.Event{
						Action: auditlog.ActionIdeaPromoted, ResourceType: "idea", ResourceID: idea.ID, RunID: rc.RunID,
						Payload: map[string]any{
							"ticker": idea.Ticker, "version": idea.Version, "style": idea.Style,
							"score": idea.Score.Total, "threshold": idea.Threshold, "integrity_sha256": idea.IntegritySHA256,
						},
					})
				}
				return err
			},
		},
		o.notifyStep(StepPromote, laneAMessage),
	}
}

func (o *Orchestrator) laneBSteps(repos Repos) []step {
	return []step{
		{
			ID:         StepSelectIdeas,
			Timeout:    time.Minute,
			MaxRetries: 2,
			RetryDelay: 2 * time.Second,
			Run: func(ctx context.Context, rc *RunContext) error {
				since := rc.AsOf.AddDate(0, 0, -o.cfg.Research.LookbackDays)
				ideas, err := repos.Ideas.ListSince(ctx, since)
				if err != nil {
					return fmt.Errorf("list ideas: %w", err)
				}
				rc.Selected = research.Select(ideas, o.cfg.Research.MaxPackets)
				return nil
			},
		},
		{
			ID:        StepResearch,
			DependsOn: []string{StepSelectIdeas},
			Timeout:   90 * time.Minute,
			Run: func(ctx context.Context, rc *RunContext) error {
				rc.Packets, rc.ResearchStats = o.researcher.Research(ctx, rc.RunID, rc.Selected)
				if err := ctx.Err(); err != nil {
					return err
				}
				if len(rc.Selected) > 0 && len(rc.Packets) == 0 {
					return fmt.Errorf("no research packet produced for %d idea(s)", len(rc.Selected))
				}
				return nil
			},
		},
		{
			ID:         StepStorePackets,
			DependsOn:  []string{StepResearch},
			Timeout:    5 * time.Minute,
			MaxRetries: 2,
			RetryDelay: 5 * time.Second,
			Backoff:    workflow.BackoffIncrementing,
			Run: func(ctx context.Context, rc *RunContext) error {
				refs := make([]domain.PacketRef, 0, len(rc.Packets))
				for _, p := range rc.Packets {
					ref, err := repos.Packets.Put(ctx, p)
					if err != nil {
						return fmt.Errorf("store packet %s: %w", p.Ticker, err)
					}
					refs = append(refs, ref)
				}
				rc.PacketRefs = refs
				for _, ref := range refs {
					o.audit(ctx, repos, o.logger, auditlog.Event{
						Action: auditlog.ActionPacketStored, ResourceType: "research_packet", ResourceID: ref.Key, RunID: rc.RunID,
						Payload: map[string]any{"ticker": ref.Ticker, "idea_id": ref.IdeaID, "etag": ref.ETag},
					})
				}
				return nil
			},
		},
		o.notifyStep(StepStorePackets, laneBMessage),
	}
}

func (o *Orchestrator) maintenanceSteps(repos Repos) []step {
	return []step{
		{
			ID:         StepDecayNovelty,
			Timeout:    10 * time.Minute,
			MaxRetries: 2,
			RetryDelay: 5 * time.Second,
			Run: func(ctx context.Context, rc *RunContext) error {
				states, err := repos.Novelty.List(ctx)
				if err != nil {
					return fmt.Errorf("list novelty states: %w", err)
				}
				rc.Decayed = 0
				for _, st := range o.novelty.Decay(states, rc.AsOf) {
					if err := repos.Novelty.Upsert(ctx, st); err != nil {
						return fmt.Errorf("upsert novelty %s: %w", st.Ticker, err)
					}
					rc.Decayed++
				}
				return nil
			},
		},
		{
			ID:         StepSweepCache,
			BestEffort: true,
			Run: func(ctx context.Context, rc *RunContext) error {
				if rc.DryRun {
					return nil
				}
				if c := o.hub.Cache(); c != nil {
					rc.Swept = c.Sweep(o.now())
				}
				return nil
			},
		},
	}
}

func (o *Orchestrator) notifyStep(after string, build func(*RunContext) notify.Message) step {
	return step{
		ID:         StepNotify,
		DependsOn:  []string{after},
		Timeout:    30 * time.Second,
		MaxRetries: 1,
		RetryDelay: 2 * time.Second,
		BestEffort: true,
		Run: func(ctx context.Context, rc *RunContext) error {
			if rc.DryRun || o.notifier == nil {
				o.logger.Info("notification suppressed", "run_id", rc.RunID, "dry_run", rc.DryRun)
				return nil
			}
			return o.notifier.Notify(ctx, build(rc))
		},
	}
}

func laneAMessage(rc *RunContext) notify.Message {
	promoted := rc.Promoted()
	msg := notify.Message{
		RunID:   rc.RunID,
		RunType: string(rc.Type),
		Status:  string(domain.RunStatusCompleted),
		AsOf:    rc.AsOf,
		Title:   fmt.Sprintf("%s %s: %d idea(s) promoted", rc.Type, rc.AsOf.Format(time.DateOnly), len(promoted)),
		Counts: map[string]int{
			"universe":    len(rc.Universe),
			"shortlisted": len(rc.Shortlist),
			"enriched":    rc.EnrichStats.Enriched,
			"advanced":    rc.GateStats.Advanced,
			"promoted":    len(promoted),
		},
	}
	for _, d := range rc.Decisions {
		if !d.Promoted || d.Idea == nil {
			continue
		}
		msg.Ideas = append(msg.Ideas, notify.IdeaLine{
			Ticker:    d.Idea.Ticker,
			Version:   d.Idea.Version,
			Style:     string(d.Idea.Style),
			Headline:  d.Idea.Headline,
			Score:     d.Idea.Score.Total,
			Threshold: d.Threshold,
		})
	}
	if rc.EnrichStats.Failed > 0 {
		msg.Warnings = append(msg.Warnings, fmt.Sprintf("%d of %d enrichments failed", rc.EnrichStats.Failed, rc.EnrichStats.Requested))
	}
	return msg
}

func laneBMessage(rc *RunContext) notify.Message {
	msg := notify.Message{
		RunID:   rc.RunID,
		RunType: string(rc.Type),
		Status:  string(domain.RunStatusCompleted),
		AsOf:    rc.AsOf,
		Title:   fmt.Sprintf("%s %s: %d research packet(s)", rc.Type, rc.AsOf.Format(time.DateOnly), len(rc.PacketRefs)),
		Counts: map[string]int{
			"selected": len(rc.Selected),
			"packets":  len(rc.PacketRefs),
		},
	}
	for _, ref := range rc.PacketRefs {
		msg.Packets = append(msg.Packets, ref.Key)
	}
	for _, f := range rc.ResearchStats.Failures {
		msg.Warnings = append(msg.Warnings, fmt.Sprintf("%s: %s", f.Ticker, f.Reason))
	}
	return msg
}
