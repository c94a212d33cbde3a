package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

const (
	DefaultRedditURL       = "https://www.reddit.com"
	DefaultRedditSubreddit = "wallstreetbets"
)

// Reddit searches one subreddit's public JSON listing for ticker mentions.
type Reddit struct {
	c         *client
	subreddit string
}

func NewReddit(baseURL, subreddit, userAgent string, httpClient *http.Client) *Reddit {
	if baseURL == "" {
		baseURL = DefaultRedditURL
	}
	if subreddit == "" {
		subreddit = DefaultRedditSubreddit
	}
	c := newClient(datahub.SourceReddit, baseURL, "", "", httpClient)
	c.userAgent = userAgent
	return &Reddit{c: c, subreddit: subreddit}
}

func (r *Reddit) Name() string { return datahub.SourceReddit }

func (r *Reddit) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if method != datahub.MethodSocial {
		return nil, unsupported(datahub.SourceReddit, method)
	}
	ticker, err := requireParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"q":           {ticker},
		"sort":        {"new"},
		"limit":       {"25"},
		"restrict_sr": {"1"},
	}
	return r.c.getJSON(ctx, "/r/"+url.PathEscape(r.subreddit)+"/search.json", q)
}
