package datahub

import (
	"context"
	"strconv"
	"strings"
)

func symbol(ticker string) map[string]string {
	return map[string]string{"symbol": strings.ToUpper(strings.TrimSpace(ticker))}
}

func (h *Hub) CompanyProfile(ctx context.Context, ticker string) Result {
	return h.Fetch(ctx, SourceFMP, MethodProfile, symbol(ticker))
}

func (h *Hub) KeyMetrics(ctx context.Context, ticker string) Result {
	return h.Fetch(ctx, SourceFMP, MethodKeyMetrics, symbol(ticker))
}

func (h *Hub) Ratios(ctx context.Context, ticker string) Result {
	return h.Fetch(ctx, SourceFMP, MethodRatios, symbol(ticker))
}

// Quote prefers Polygon and falls back to FMP.
func (h *Hub) Quote(ctx context.Context, ticker string) Result {
	return h.FetchFirst(ctx, MethodQuote, symbol(ticker), SourcePolygon, SourceFMP)
}

func (h *Hub) News(ctx context.Context, ticker string, limit int) Result {
	params := symbol(ticker)
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	return h.Fetch(ctx, SourcePolygon, MethodNews, params)
}

func (h *Hub) Filings(ctx context.Context, ticker string) Result {
	return h.Fetch(ctx, SourceSEC, MethodFilings, symbol(ticker))
}

func (h *Hub) SocialMentions(ctx context.Context, ticker string) Result {
	return h.Fetch(ctx, SourceReddit, MethodSocial, symbol(ticker))
}

func (h *Hub) MacroSeries(ctx context.Context, seriesID string) Result {
	return h.Fetch(ctx, SourceFRED, MethodMacro, map[string]string{"series_id": seriesID})
}

// Universe lists screener candidates. Filter keys are passed to the
// screener unchanged.
func (h *Hub) Universe(ctx context.Context, filter map[string]string) Result {
	return h.Fetch(ctx, SourceFMP, MethodScreener, filter)
}

// CompletionRequest is a prompt for the reasoning source.
type CompletionRequest struct {
	Prompt      string
	System      string
	Model       string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

func (r CompletionRequest) Params() map[string]string {
	params := map[string]string{"prompt": r.Prompt}
	if r.System != "" {
		params["system"] = r.System
	}
	if r.Model != "" {
		params["model"] = r.Model
	}
	if r.Temperature > 0 {
		params["temperature"] = strconv.FormatFloat(r.Temperature, 'f', -1, 64)
	}
	if r.MaxTokens > 0 {
		params["max_tokens"] = strconv.Itoa(r.MaxTokens)
	}
	if r.JSON {
		params["json"] = "true"
	}
	return params
}

// Complete routes a prompt through the reasoning source so completions get
// the same breaker, timeout and retry treatment as data sources.
func (h *Hub) Complete(ctx context.Context, req CompletionRequest) Result {
	return h.Fetch(ctx, SourceReasoner, MethodComplete, req.Params())
}
