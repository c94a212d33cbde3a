package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

const DefaultFMPURL = "https://financialmodelingprep.com/api/v3"

// FMP serves fundamentals, quotes and the screener that seeds the universe.
type FMP struct {
	c *client
}

func NewFMP(baseURL, apiKey string, httpClient *http.Client) *FMP {
	if baseURL == "" {
		baseURL = DefaultFMPURL
	}
	return &FMP{c: newClient(datahub.SourceFMP, baseURL, apiKey, "apikey", httpClient)}
}

func (f *FMP) Name() string { return datahub.SourceFMP }

func (f *FMP) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if method == datahub.MethodScreener {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		return f.c.getJSON(ctx, "/stock-screener", q)
	}

	ticker, err := requireParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	escaped := url.PathEscape(ticker)
	switch method {
	case datahub.MethodProfile:
		return f.c.getJSON(ctx, "/profile/"+escaped, nil)
	case datahub.MethodKeyMetrics:
		return f.c.getJSON(ctx, "/key-metrics-ttm/"+escaped, nil)
	case datahub.MethodRatios:
		return f.c.getJSON(ctx, "/ratios/"+escaped, url.Values{"limit": {"1"}})
	case datahub.MethodQuote:
		return f.c.getJSON(ctx, "/quote/"+escaped, nil)
	default:
		return nil, unsupported(datahub.SourceFMP, method)
	}
}
