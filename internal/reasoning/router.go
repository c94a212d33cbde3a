package reasoning

import (
	"fmt"
	"time"

	"github.com/arc-research/arc-pipeline/internal/platform/env"
)

const (
	LaneDiscovery = "lane_a"
	LaneResearch  = "lane_b"
)

// Router picks model options per lane: a fast model for daily discovery, a
// deeper one for weekly research.
type Router struct {
	Default Options
	Lanes   map[string]Options
}

func DefaultRouter() Router {
	return Router{
		Default: Options{Model: DefaultModel, Temperature: 0.2, MaxTokens: 2048, JSON: true},
		Lanes: map[string]Options{
			LaneDiscovery: {Model: "gemini-2.5-flash", Temperature: 0.2, MaxTokens: 2048, JSON: true},
			LaneResearch:  {Model: "gemini-2.5-pro", Temperature: 0.3, MaxTokens: 8192, JSON: true},
		},
	}
}

func (r Router) For(lane string) Options {
	if opts, ok := r.Lanes[lane]; ok {
		return opts
	}
	return r.Default
}

type Config struct {
	APIKey         string
	DiscoveryModel string
	ResearchModel  string
	Timeout        time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("ARC_REASONER_TIMEOUT", 90*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		APIKey:         env.String("GEMINI_API_KEY", ""),
		DiscoveryModel: env.String("ARC_MODEL_LANE_A", "gemini-2.5-flash"),
		ResearchModel:  env.String("ARC_MODEL_LANE_B", "gemini-2.5-pro"),
		Timeout:        timeout,
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("ARC_REASONER_TIMEOUT must be positive")
	}
	return cfg, nil
}

// Router applies the configured model names on top of DefaultRouter.
func (c Config) Router() Router {
	r := DefaultRouter()
	if c.DiscoveryModel != "" {
		o := r.Lanes[LaneDiscovery]
		o.Model = c.DiscoveryModel
		r.Lanes[LaneDiscovery] = o
	}
	if c.ResearchModel != "" {
		o := r.Lanes[LaneResearch]
		o.Model = c.ResearchModel
		r.Lanes[LaneResearch] = o
	}
	return r
}
