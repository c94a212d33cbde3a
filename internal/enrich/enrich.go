// Package enrich turns shortlisted tickers into enriched candidates: source
// data through the hub, then a structured thesis from the reasoning source.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arc-research/arc-pipeline/internal/batch"
	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/reasoning"
)

// Hub is the part of the data hub enrichment needs.
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
	Enriched  int       `json:"enriched"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

type Enricher struct {
	logger *slog.Logger
	hub    Hub
	model  reasoning.Options
	batch  batch.Options
}

func New(logger *slog.Logger, hub Hub, model reasoning.Options, opts batch.Options) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{logger: logger, hub: hub, model: model, batch: opts}
}

type outcome struct {
	candidate domain.EnrichedCandidate
	err       error
}

// Enrich processes the shortlist in batches. Candidates whose completion
// fails or cannot be parsed are dropped and reported in Stats; this never
// returns an error for a single candidate.
func (e *Enricher) Enrich(ctx context.Context, shortlist []domain.ShortlistEntry) ([]domain.EnrichedCandidate, Stats) {
	results, ran := batch.Run(ctx, shortlist, e.batch, e.enrichOne)

	stats := Stats{Requested: len(shortlist)}
	out := make([]domain.EnrichedCandidate, 0, len(shortlist))
	for i, r := range results[:ran] {
		if r.err != nil {
			stats.Failed++
			stats.Failures = append(stats.Failures, Failure{Ticker: shortlist[i].Ticker(), Reason: r.err.Error()})
			e.logger.Warn("enrichment failed", "ticker", shortlist[i].Ticker(), "error", r.err)
			continue
		}
		out = append(out, r.candidate)
	}
	for _, s := range shortlist[ran:] {
		stats.Failed++
		stats.Failures = append(stats.Failures, Failure{Ticker: s.Ticker(), Reason: fmt.Sprintf("not started: %v", context.Cause(ctx))})
	}
	stats.Enriched = len(out)
	return out, stats
}

func (e *Enricher) enrichOne(ctx context.Context, entry domain.ShortlistEntry) outcome {
	bundle := e.hub.FetchBundle(ctx, entry.Ticker(), datahub.StageEnrichment)
	providerMetrics := MetricsFromBundle(bundle)

	res := e.hub.Complete(ctx, datahub.CompletionRequest{
		Prompt:      BuildPrompt(entry.Entry, bundle, providerMetrics),
		System:      systemPrompt,
		Model:       e.model.Model,
		Temperature: e.model.Temperature,
		MaxTokens:   e.model.MaxTokens,
		JSON:        true,
	})
	if !res.Success {
		return outcome{err: fmt.Errorf("completion failed: %s", res.Error())}
	}
	text, err := reasoning.DecodeCompletion(res.Data)
	if err != nil {
		return outcome{err: fmt.Errorf("unparsable completion: %w", err)}
	}
	enrichment, err := ParseEnrichment(text)
	if err != nil {
		return outcome{err: fmt.Errorf("unparsable completion: %w", err)}
	}
	enrichment.Metrics = providerMetrics.Merge(enrichment.Metrics)
	if enrichment.Style == "" && entry.Entry.StyleHint.Valid() {
		enrichment.Style = entry.Entry.StyleHint
	}
	enrichment.Model = e.model.Model

	return outcome{candidate: domain.EnrichedCandidate{
		Shortlist:  entry,
		Enrichment: enrichment,
		Coverage:   bundle.Coverage(),
	}}
}
