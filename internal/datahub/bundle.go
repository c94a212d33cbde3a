package datahub

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

type Stage string

const (
	StageEnrichment Stage = "enrichment"
	StageResearch   Stage = "research"
)

// Bundle merges the per-source results gathered for one ticker.
type Bundle struct {
	Ticker    string
	Results   map[string]Result
	Succeeded []string
	Failed    []string
}

func (b Bundle) Data(name string) (json.RawMessage, bool) {
	r, ok := b.Results[name]
	if !ok || !r.Success {
		return nil, false
	}
	return r.Data, true
}

func (b Bundle) Coverage() domain.SourceCoverage {
	return domain.SourceCoverage{
		Succeeded: append([]string(nil), b.Succeeded...),
		Failed:    append([]string(nil), b.Failed...),
	}
}

type bundleRequest struct {
	name  string
	fetch func(context.Context) Result
}

func (h *Hub) bundleRequests(ticker string, stage Stage) []bundleRequest {
	reqs := []bundleRequest{
		{MethodProfile, func(ctx context.Context) Result { return h.CompanyProfile(ctx, ticker) }},
		{MethodKeyMetrics, func(ctx context.Context) Result { return h.KeyMetrics(ctx, ticker) }},
		{MethodRatios, func(ctx context.Context) Result { return h.Ratios(ctx, ticker) }},
		{MethodQuote, func(ctx context.Context) Result { return h.Quote(ctx, ticker) }},
		{MethodNews, func(ctx context.Context) Result { return h.News(ctx, ticker, 10) }},
	}
	if stage != StageResearch {
		return reqs
	}
	reqs = append(reqs,
		bundleRequest{MethodFilings, func(ctx context.Context) Result { return h.Filings(ctx, ticker) }},
		bundleRequest{MethodSocial, func(ctx context.Context) Result { return h.SocialMentions(ctx, ticker) }},
	)
	for _, series := range h.cfg.MacroSeries {
		id := series
		reqs = append(reqs, bundleRequest{MethodMacro + "_" + strings.ToLower(id), func(ctx context.Context) Result { return h.MacroSeries(ctx, id) }})
	}
	return reqs
}

// FetchBundle queries every source of the stage concurrently. One source
// failing never cancels the others; a partial bundle is a valid result.
func (h *Hub) FetchBundle(ctx context.Context, ticker string, stage Stage) Bundle {
	reqs := h.bundleRequests(ticker, stage)
	bundle := Bundle{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Results: make(map[string]Result, len(reqs))}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, req := range reqs {
		g.Go(func() error {
			res := req.fetch(ctx)
			mu.Lock()
			defer mu.Unlock()
			bundle.Results[req.name] = res
			if res.Success {
				bundle.Succeeded = append(bundle.Succeeded, req.name)
			} else {
				bundle.Failed = append(bundle.Failed, req.name)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(bundle.Succeeded)
	sort.Strings(bundle.Failed)
	return bundle
}
