package providers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/platform/env"
)

type Config struct {
	PolygonAPIKey   string
	FMPAPIKey       string
	FREDAPIKey      string
	SECUserAgent    string
	RedditUserAgent string
	RedditSubreddit string
	RequestTimeout  time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("ARC_PROVIDER_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		PolygonAPIKey:   env.String("POLYGON_API_KEY", ""),
		FMPAPIKey:       env.String("FMP_API_KEY", ""),
		FREDAPIKey:      env.String("FRED_API_KEY", ""),
		SECUserAgent:    env.String("ARC_SEC_USER_AGENT", ""),
		RedditUserAgent: env.String("ARC_REDDIT_USER_AGENT", "arc-pipeline/1.0"),
		RedditSubreddit: env.String("ARC_REDDIT_SUBREDDIT", DefaultRedditSubreddit),
		RequestTimeout:  timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("ARC_PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// Build returns the providers that are configured. Keyed APIs without a
// key are left out and show up as unknown sources in the hub.
func Build(cfg Config) []datahub.Provider {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	var out []datahub.Provider
	if strings.TrimSpace(cfg.FMPAPIKey) != "" {
		out = append(out, NewFMP("", cfg.FMPAPIKey, httpClient))
	}
	if strings.TrimSpace(cfg.PolygonAPIKey) != "" {
		out = append(out, NewPolygon("", cfg.PolygonAPIKey, httpClient))
	}
	if strings.TrimSpace(cfg.FREDAPIKey) != "" {
		out = append(out, NewFRED("", cfg.FREDAPIKey, httpClient))
	}
	if strings.TrimSpace(cfg.SECUserAgent) != "" {
		out = append(out, NewSEC("", "", cfg.SECUserAgent, httpClient))
	}
	out = append(out, NewReddit("", cfg.RedditSubreddit, cfg.RedditUserAgent, httpClient))
	return out
}
