package novelty

import (
	"time"

	"github.com/arc-research/arc-pipeline/internal/platform/validation"
)

type Config struct {
	NewIfUnseenDays   int     `yaml:"new_if_unseen_days"`
	RepetitionDays    int     `yaml:"repetition_days"`
	FrequentThreshold int     `yaml:"frequent_threshold"`
	NewBonus          float64 `yaml:"new_bonus"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
	FrequentPenalty   float64 `yaml:"frequent_penalty"`
	ChangeBonus       float64 `yaml:"change_bonus"`
	Neutral           float64 `yaml:"neutral"`
	Floor             float64 `yaml:"floor"`
	Max               float64 `yaml:"max"`
	ExplorationRate   float64 `yaml:"exploration_rate"`
	Capacity          int     `yaml:"capacity"`
}

func DefaultConfig() Config {
	return Config{
		NewIfUnseenDays:   90,
		RepetitionDays:    30,
		FrequentThreshold: 3,
		NewBonus:          30,
		RepetitionPenalty: -20,
		FrequentPenalty:   -15,
		ChangeBonus:       10,
		Neutral:           0,
		Floor:             -30,
		Max:               30,
		ExplorationRate:   0.10,
		Capacity:          200,
	}
}

func (c Config) Validate() error {
	v := validation.New("novelty config")
	if c.NewIfUnseenDays <= 0 {
		v.Add("novelty.new_if_unseen_days must be positive")
	}
	if c.RepetitionDays <= 0 || c.RepetitionDays > c.NewIfUnseenDays {
		v.Add("novelty.repetition_days must be positive and no longer than new_if_unseen_days")
	}
	if c.FrequentThreshold < 0 {
		v.Add("novelty.frequent_threshold must be >= 0")
	}
	if c.Floor >= c.Max {
		v.Addf("novelty.floor (%v) must be below max (%v)", c.Floor, c.Max)
	}
	if c.ExplorationRate < 0 || c.ExplorationRate > 1 {
		v.Add("novelty.exploration_rate must be within [0,1]")
	}
	if c.Capacity < 1 {
		v.Add("novelty.capacity must be >= 1")
	}
	return v.OrNil()
}

func (c Config) noveltyWindow() time.Duration {
	return time.Duration(c.NewIfUnseenDays) * 24 * time.Hour
}

func (c Config) repetitionWindow() time.Duration {
	return time.Duration(c.RepetitionDays) * 24 * time.Hour
}
