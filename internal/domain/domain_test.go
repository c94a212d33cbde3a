package domain

import (
	"testing"
	"time"
)

func TestWeekStartIsMonday(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 25, 23, 59, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 21, 1, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := WeekStart(tc.in); !got.Equal(tc.want) {
			t.Fatalf("WeekStart(%v)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestQuotaSharePct(t *testing.T) {
	q := QuotaState{}
	if got := q.SharePct(StyleGARP); got != 0 {
		t.Fatalf("empty share=%v, want 0", got)
	}
	q.Increment(StyleGARP)
	q.Increment(StyleGARP)
	q.Increment(StyleCigarButt)
	q.Increment(StyleQualityCompounder)
	if got := q.SharePct(StyleGARP); got != 50 {
		t.Fatalf("garp share=%v, want 50", got)
	}
	if q.DailyTotal != 4 || q.WeeklyTotal != 4 {
		t.Fatalf("totals daily=%d weekly=%d, want 4", q.DailyTotal, q.WeeklyTotal)
	}
}

func TestQuotaCloneIsIndependent(t *testing.T) {
	q := QuotaState{}
	q.Increment(StyleGARP)
	c := q.Clone()
	c.Increment(StyleGARP)
	if q.WeeklyByStyle[StyleGARP] != 1 {
		t.Fatalf("clone mutated original: %d", q.WeeklyByStyle[StyleGARP])
	}
}

func TestParseStyle(t *testing.T) {
	s, err := ParseStyle(" Cigar_Butt ")
	if err != nil || s != StyleCigarButt {
		t.Fatalf("ParseStyle()=%q err=%v", s, err)
	}
	if _, err := ParseStyle("momentum"); err == nil {
		t.Fatalf("expected error for unknown style")
	}
}

func TestEdgeKeyIsOrderIndependent(t *testing.T) {
	a := EdgeKey([]EdgeType{EdgeCatalyst, EdgeStructural})
	b := EdgeKey([]EdgeType{EdgeStructural, EdgeCatalyst})
	if a != b {
		t.Fatalf("EdgeKey order dependent: %q vs %q", a, b)
	}
}

func TestMetricsMergeKeepsKnownValues(t *testing.T) {
	one, two := 1.0, 2.0
	m := Metrics{GrossMargin: &one}.Merge(Metrics{GrossMargin: &two, ROIC: &two})
	if *m.GrossMargin != 1 || m.ROIC == nil || *m.ROIC != 2 {
		t.Fatalf("Merge()=%+v", m)
	}
}

func TestEnsureIdeaImmutable(t *testing.T) {
	before := Idea{ID: "i1", Ticker: "ACME", Version: 1, IntegritySHA256: "abc"}
	after := before
	if err := EnsureIdeaImmutable(before, after); err != nil {
		t.Fatalf("identical ideas err=%v", err)
	}
	after.Version = 2
	if err := EnsureIdeaImmutable(before, after); err == nil {
		t.Fatalf("expected version change to be rejected")
	}
}

func TestIdeaIntegrityChangesWithContent(t *testing.T) {
	idea := Idea{Ticker: "ACME", RunID: "r1", Style: StyleGARP, Headline: "a"}
	a, err := idea.ComputeIntegrity()
	if err != nil {
		t.Fatalf("ComputeIntegrity() err=%v", err)
	}
	idea.Headline = "b"
	b, _ := idea.ComputeIntegrity()
	if a == b {
		t.Fatalf("integrity did not change")
	}
}

func TestRejectionMarkerActiveAt(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	m := RejectionMarker{Blocking: true, ExpiresAt: &exp}
	if !m.ActiveAt(now) {
		t.Fatalf("expected marker active before expiry")
	}
	if m.ActiveAt(exp) {
		t.Fatalf("expected marker inactive at expiry")
	}
}

func TestNoveltyAppearancesSince(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	s := NoveltyState{Appearances: []time.Time{now.AddDate(0, 0, -100), now.AddDate(0, 0, -10), now}}
	if got := s.AppearancesSince(now.AddDate(0, 0, -90)); got != 2 {
		t.Fatalf("AppearancesSince()=%d, want 2", got)
	}
}
