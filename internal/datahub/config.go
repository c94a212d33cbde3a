package datahub

import (
	"fmt"
	"time"
)

const (
	SourceFMP      = "fmp"
	SourcePolygon  = "polygon"
	SourceFRED     = "fred"
	SourceSEC      = "sec"
	SourceReddit   = "reddit"
	SourceReasoner = "reasoner"
)

const (
	MethodProfile    = "profile"
	MethodKeyMetrics = "key_metrics"
	MethodRatios     = "ratios"
	MethodQuote      = "quote"
	MethodNews       = "news"
	MethodFilings    = "filings"
	MethodSocial     = "social"
	MethodMacro      = "macro"
	MethodScreener   = "screener"
	MethodComplete   = "complete"
)

type Config struct {
	MaxRetries       int                      `yaml:"max_retries"`
	RetryDelay       time.Duration            `yaml:"retry_delay"`
	AttemptTimeout   time.Duration            `yaml:"attempt_timeout"`
	FailureThreshold int                      `yaml:"failure_threshold"`
	BreakerCooldown  time.Duration            `yaml:"breaker_cooldown"`
	DefaultTTL       time.Duration            `yaml:"default_ttl"`
	TTLs             map[string]time.Duration `yaml:"ttls"`
	MacroSeries      []string                 `yaml:"macro_series"`
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:       2,
		RetryDelay:       500 * time.Millisecond,
		AttemptTimeout:   15 * time.Second,
		FailureThreshold: 5,
		BreakerCooldown:  5 * time.Minute,
		DefaultTTL:       time.Hour,
		TTLs: map[string]time.Duration{
			MethodQuote:      5 * time.Minute,
			MethodNews:       15 * time.Minute,
			MethodSocial:     30 * time.Minute,
			MethodMacro:      6 * time.Hour,
			MethodScreener:   12 * time.Hour,
			MethodProfile:    24 * time.Hour,
			MethodKeyMetrics: 24 * time.Hour,
			MethodRatios:     24 * time.Hour,
			MethodFilings:    24 * time.Hour,
			MethodComplete:   0,
		},
		MacroSeries: []string{"DGS10", "BAMLH0A0HYM2"},
	}
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt_timeout must be positive")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be >= 1")
	}
	if c.BreakerCooldown < 0 {
		return fmt.Errorf("breaker_cooldown must be >= 0")
	}
	return nil
}

// TTL returns the cache lifetime of a method. Methods with an explicit
// zero entry are never cached.
func (c Config) TTL(method string) time.Duration {
	if ttl, ok := c.TTLs[method]; ok {
		return ttl
	}
	return c.DefaultTTL
}
