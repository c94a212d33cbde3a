package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

const DefaultFREDURL = "https://api.stlouisfed.org"

// FRED serves macro series observations, newest first.
type FRED struct {
	c *client
}

func NewFRED(baseURL, apiKey string, httpClient *http.Client) *FRED {
	if baseURL == "" {
		baseURL = DefaultFREDURL
	}
	return &FRED{c: newClient(datahub.SourceFRED, baseURL, apiKey, "api_key", httpClient)}
}

func (f *FRED) Name() string { return datahub.SourceFRED }

func (f *FRED) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if method != datahub.MethodMacro {
		return nil, unsupported(datahub.SourceFRED, method)
	}
	series, err := requireParam(params, "series_id")
	if err != nil {
		return nil, err
	}
	limit := params["limit"]
	if limit == "" {
		limit = "12"
	}
	q := url.Values{
		"series_id":  {series},
		"file_type":  {"json"},
		"sort_order": {"desc"},
		"limit":      {limit},
	}
	return f.c.getJSON(ctx, "/fred/series/observations", q)
}
