package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

const DefaultPolygonURL = "https://api.polygon.io"

// Polygon serves quotes (previous close aggregate) and news.
type Polygon struct {
	c *client
}

func NewPolygon(baseURL, apiKey string, httpClient *http.Client) *Polygon {
	if baseURL == "" {
		baseURL = DefaultPolygonURL
	}
	return &Polygon{c: newClient(datahub.SourcePolygon, baseURL, apiKey, "apiKey", httpClient)}
}

func (p *Polygon) Name() string { return datahub.SourcePolygon }

func (p *Polygon) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	ticker, err := requireParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	switch method {
	case datahub.MethodQuote:
		return p.c.getJSON(ctx, "/v2/aggs/ticker/"+url.PathEscape(ticker)+"/prev", nil)
	case datahub.MethodNews:
		q := url.Values{"ticker": {ticker}}
		if limit := params["limit"]; limit != "" {
			q.Set("limit", limit)
		}
		return p.c.getJSON(ctx, "/v2/reference/news", q)
	default:
		return nil, unsupported(datahub.SourcePolygon, method)
	}
}
