// Package research builds the weekly deep-research packets for promoted
// ideas.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/arc-research/arc-pipeline/internal/batch"
	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/reasoning"
)

type Hub interface {
	FetchBundle(ctx context.Context, ticker string, stage datahub.Stage) datahub.Bundle
	Complete(ctx context.Context, req datahub.CompletionRequest) datahub.Result
}

type Failure struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

type Stats struct {
	Requested int       `json:"requested"`
	Written   int       `json:"written"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

type Researcher struct {
	logger *slog.Logger
	hub    Hub
	model  reasoning.Options
	batch  batch.Options
	now    func() time.Time
}

func New(logger *slog.Logger, hub Hub, model reasoning.Options, opts batch.Options) *Researcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Researcher{logger: logger, hub: hub, model: model, batch: opts, now: time.Now}
}

// Select picks the ideas to research: the latest version of each ticker
// promoted since the cutoff, best rank score first, at most limit.
func Select(ideas []domain.Idea, limit int) []domain.Idea {
	latest := make(map[string]domain.Idea, len(ideas))
	for _, idea := range ideas {
		if cur, ok := latest[idea.Ticker]; !ok || idea.Version > cur.Version {
			latest[idea.Ticker] = idea
		}
	}
	out := make([]domain.Idea, 0, len(latest))
	for _, idea := range latest {
		out = append(out, idea)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return out[i].Ticker < out[j].Ticker
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type outcome struct {
	packet domain.ResearchPacket
	err    error
}

// Research writes one packet per idea. Failed ideas are reported in Stats.
func (r *Researcher) Research(ctx context.Context, runID string, ideas []domain.Idea) ([]domain.ResearchPacket, Stats) {
	results, ran := batch.Run(ctx, ideas, r.batch, func(ctx context.Context, idea domain.Idea) outcome {
		return r.researchOne(ctx, runID, idea)
	})

	stats := Stats{Requested: len(ideas)}
	out := make([]domain.ResearchPacket, 0, len(ideas))
	for i, res := range results[:ran] {
		if res.err != nil {
			stats.Failed++
			stats.Failures = append(stats.Failures, Failure{Ticker: ideas[i].Ticker, Reason: res.err.Error()})
			r.logger.Warn("research failed", "ticker", ideas[i].Ticker, "error", res.err)
			continue
		}
		out = append(out, res.packet)
	}
	for _, idea := range ideas[ran:] {
		stats.Failed++
		stats.Failures = append(stats.Failures, Failure{Ticker: idea.Ticker, Reason: fmt.Sprintf("not started: %v", context.Cause(ctx))})
	}
	stats.Written = len(out)
	return out, stats
}

func (r *Researcher) researchOne(ctx context.Context, runID string, idea domain.Idea) outcome {
	bundle := r.hub.FetchBundle(ctx, idea.Ticker, datahub.StageResearch)
	res := r.hub.Complete(ctx, datahub.CompletionRequest{
		Prompt:      BuildPrompt(idea, bundle),
		System:      systemPrompt,
		Model:       r.model.Model,
		Temperature: r.model.Temperature,
		MaxTokens:   r.model.MaxTokens,
	})
	if !res.Success {
		return outcome{err: fmt.Errorf("completion failed: %s", res.Error())}
	}
	body, err := reasoning.DecodeCompletion(res.Data)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{packet: domain.ResearchPacket{
		IdeaID:      idea.ID,
		Ticker:      idea.Ticker,
		IdeaVersion: idea.Version,
		RunID:       runID,
		Model:       r.model.Model,
		Body:        strings.TrimSpace(body),
		Coverage:    bundle.Coverage(),
		CreatedAt:   r.now().UTC(),
	}}
}

const systemPrompt = "You are a buy-side research analyst writing an internal memo. Be specific and cite the data you were given."

// BuildPrompt renders the research request for one idea version.
func BuildPrompt(idea domain.Idea, b datahub.Bundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker: %s (idea v%d, style %s)\n", idea.Ticker, idea.Version, idea.Style)
	fmt.Fprintf(&sb, "Headline: %s\n", idea.Headline)
	fmt.Fprintf(&sb, "Hypothesis: %s\n", idea.Hypothesis)
	if idea.Mechanism != "" {
		fmt.Fprintf(&sb, "Mechanism: %s\n", idea.Mechanism)
	}
	writeList(&sb, "Signposts", idea.Signposts)
	writeList(&sb, "Catalysts", idea.Catalysts)

	names := make([]string, 0, len(b.Results))
	for name := range b.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, ok := b.Data(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", name, compact(data, 2000))
	}
	if len(b.Failed) > 0 {
		fmt.Fprintf(&sb, "\nUnavailable sources: %s\n", strings.Join(b.Failed, ", "))
	}
	sb.WriteString("\nWrite a research packet with sections: Thesis, Evidence, Risks and pre-mortem, ")
	sb.WriteString("Signposts to monitor, Valuation sanity check, Verdict.\n")
	return sb.String()
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

// compact re-encodes JSON without whitespace and truncates it to max bytes.
func compact(data json.RawMessage, max int) string {
	var v any
	s := string(data)
	if err := json.Unmarshal(data, &v); err == nil {
		if blob, err := json.Marshal(v); err == nil {
			s = string(blob)
		}
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
