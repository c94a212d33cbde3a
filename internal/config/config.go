// Package config loads the pipeline tuning file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arc-research/arc-pipeline/internal/batch"
	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/gates"
	"github.com/arc-research/arc-pipeline/internal/novelty"
	"github.com/arc-research/arc-pipeline/internal/platform/validation"
	"github.com/arc-research/arc-pipeline/internal/ranking"
	"github.com/arc-research/arc-pipeline/internal/schedule"
)

const SchemaV1 = "arc.pipeline.v1"

// Universe selects the Lane A candidate set. Tickers, when set, replace the
// screener.
type Universe struct {
	Screener map[string]string `yaml:"screener"`
	Tickers  []string          `yaml:"tickers,omitempty"`
}

// Research tunes the weekly deep-research lane.
type Research struct {
	LookbackDays int     `yaml:"lookback_days"`
	MaxPackets   int     `yaml:"max_packets"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

type Enrichment struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type Pipeline struct {
	Schema     string          `yaml:"schema"`
	Universe   Universe        `yaml:"universe"`
	Novelty    novelty.Config  `yaml:"novelty"`
	Gates      gates.Config    `yaml:"gates"`
	Ranking    ranking.Config  `yaml:"ranking"`
	DataHub    datahub.Config  `yaml:"datahub"`
	Batch      batch.Options   `yaml:"batch"`
	Enrichment Enrichment      `yaml:"enrichment"`
	Research   Research        `yaml:"research"`
	Schedule   schedule.Config `yaml:"schedule"`
}

func Default() Pipeline {
	return Pipeline{
		Schema: SchemaV1,
		Universe: Universe{Screener: map[string]string{
			"marketCapMoreThan": "300000000",
			"isActivelyTrading": "true",
			"exchange":          "NYSE,NASDAQ",
			"limit":             "500",
		}},
		Novelty:    novelty.DefaultConfig(),
		Gates:      gates.DefaultConfig(),
		Ranking:    ranking.DefaultConfig(),
		DataHub:    datahub.DefaultConfig(),
		Batch:      batch.DefaultOptions(),
		Enrichment: Enrichment{Temperature: 0.2, MaxTokens: 2048},
		Research:   Research{LookbackDays: 7, MaxPackets: 10, Temperature: 0.3, MaxTokens: 8192},
		Schedule:   schedule.DefaultConfig(),
	}
}

// Parse decodes a tuning file over the defaults. Keys the file omits keep
// their default values. A map entry set in the file replaces the default
// entry for that key as a whole.
func Parse(input []byte) (Pipeline, error) {
	cfg := Default()
	if strings.TrimSpace(string(input)) != "" {
		if err := yaml.Unmarshal(input, &cfg); err != nil {
			return Pipeline{}, fmt.Errorf("decode pipeline config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Pipeline{}, err
	}
	return cfg, nil
}

// Load reads the tuning file at path. An empty path yields the defaults.
func Load(path string) (Pipeline, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline config: %w", err)
	}
	return Parse(blob)
}

func (p Pipeline) Validate() error {
	v := validation.New("pipeline config")
	if strings.TrimSpace(p.Schema) != SchemaV1 {
		v.Addf("schema must be %q", SchemaV1)
	}
	if len(p.Universe.Screener) == 0 && len(p.Universe.Tickers) == 0 {
		v.Add("universe needs a screener filter or tickers")
	}
	v.Merge(p.Novelty.Validate())
	v.Merge(p.Gates.Validate())
	v.Merge(p.Ranking.Validate())
	if err := p.DataHub.Validate(); err != nil {
		v.Add("datahub." + err.Error())
	}
	if p.Batch.Size < 1 {
		v.Add("batch.size must be >= 1")
	}
	if p.Batch.Pause < 0 {
		v.Add("batch.pause must be >= 0")
	}
	if p.Enrichment.MaxTokens < 0 || p.Research.MaxTokens < 0 {
		v.Add("max_tokens must be >= 0")
	}
	if p.Research.LookbackDays < 1 {
		v.Add("research.lookback_days must be >= 1")
	}
	if p.Research.MaxPackets < 0 {
		v.Add("research.max_packets must be >= 0")
	}
	v.Merge(p.Schedule.Validate())
	return v.OrNil()
}

// Hash is the SHA-256 of the canonical YAML encoding of the effective
// configuration. Runs record it so results can be tied to their tuning.
func (p Pipeline) Hash() (string, error) {
	blob, err := yaml.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode pipeline config: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal renders the effective configuration.
func (p Pipeline) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
