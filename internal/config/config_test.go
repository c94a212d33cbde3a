package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() err=%v", err)
	}
}

func TestParse_OverridesKeepDefaults(t *testing.T) {
	input := `
schema: arc.pipeline.v1
ranking:
  daily_cap: 5
  styles:
    garp:
      base: 60
      target_share_pct: 30
      weekly_cap: 4
batch:
  pause: 250ms
datahub:
  ttls:
    quote: 1m
`
	cfg, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	def := Default()
	if cfg.Ranking.DailyCap != 5 || cfg.Ranking.WeeklyCap != def.Ranking.WeeklyCap {
		t.Fatalf("caps daily=%d weekly=%d", cfg.Ranking.DailyCap, cfg.Ranking.WeeklyCap)
	}
	if cfg.Batch.Pause != 250*time.Millisecond || cfg.Batch.Size != def.Batch.Size {
		t.Fatalf("batch=%+v", cfg.Batch)
	}
	if got := cfg.Ranking.Styles[domain.StyleGARP]; got.Base != 60 || got.Override != nil {
		t.Fatalf("garp policy=%+v", got)
	}
	if got := cfg.Ranking.Styles[domain.StyleCigarButt]; got.Base != def.Ranking.Styles[domain.StyleCigarButt].Base || got.Override == nil {
		t.Fatalf("cigar_butt policy lost: %+v", got)
	}
	if cfg.DataHub.TTL("quote") != time.Minute || cfg.DataHub.TTL("profile") != def.DataHub.TTL("profile") {
		t.Fatalf("ttls=%v", cfg.DataHub.TTLs)
	}
}

func TestParse_EmptyInputIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	a, _ := cfg.Hash()
	b, _ := Default().Hash()
	if a != b {
		t.Fatalf("hash mismatch: %s vs %s", a, b)
	}
}

func TestParse_AggregatesIssues(t *testing.T) {
	input := `
schema: other
batch:
  size: 0
novelty:
  exploration_rate: 2
ranking:
  daily_cap: -1
`
	_, err := Parse([]byte(input))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"schema", "batch.size", "novelty.exploration_rate", "caps"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestParse_RejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("schema: [")); err == nil || !strings.Contains(err.Error(), "decode pipeline config") {
		t.Fatalf("err=%v", err)
	}
}

func TestHash_ChangesWithConfig(t *testing.T) {
	a, err := Default().Hash()
	if err != nil {
		t.Fatalf("Hash() err=%v", err)
	}
	again, _ := Default().Hash()
	if a != again || len(a) != 64 {
		t.Fatalf("hash not stable: %s %s", a, again)
	}
	cfg := Default()
	cfg.Ranking.DailyCap = 4
	b, _ := cfg.Hash()
	if a == b {
		t.Fatalf("hash did not change")
	}
}

func TestLoad(t *testing.T) {
	if _, err := Load(""); err != nil {
		t.Fatalf("Load(\"\") err=%v", err)
	}
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("schema: arc.pipeline.v1\nuniverse:\n  tickers: [ACME, INIT]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if len(cfg.Universe.Tickers) != 2 {
		t.Fatalf("tickers=%v", cfg.Universe.Tickers)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
