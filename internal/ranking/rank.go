package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

// RankScore blends the fundamental total with normalized novelty.
func RankScore(total, noveltyNormalized, fundamentalWeight, noveltyWeight float64) float64 {
	return fundamentalWeight*total + noveltyWeight*noveltyNormalized
}

// Rank scores every candidate, orders them by rank score (ticker breaks
// ties), assigns 1-based ranks and cross-sectional quintiles.
func Rank(scorer *Scorer, cfg Config, gated []domain.GatedCandidate) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, 0, len(gated))
	for _, g := range gated {
		sc := scorer.Score(g)
		out = append(out, domain.ScoredCandidate{
			Gated:     g,
			Score:     sc,
			RankScore: RankScore(sc.Total, g.Enriched.Shortlist.Novelty.Normalized, cfg.FundamentalWeight, cfg.NoveltyWeight),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return out[i].Ticker() < out[j].Ticker()
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	AssignQuintiles(out)
	return out
}

// AssignQuintiles sets Quintile from the mid-rank percentile of RankScore:
// 5 is the top fifth, 1 the bottom. Ties share their average rank.
func AssignQuintiles(scored []domain.ScoredCandidate) {
	n := len(scored)
	if n == 0 {
		return
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scored[idx[a]].RankScore < scored[idx[b]].RankScore })

	for start := 0; start < n; {
		end := start
		for end+1 < n && scored[idx[end+1]].RankScore == scored[idx[start]].RankScore {
			end++
		}
		avgRank := float64(start+end)/2 + 1
		pct := (avgRank - 0.5) / float64(n)
		q := int(math.Ceil(pct*5 - 1e-9))
		q = max(1, min(5, q))
		for k := start; k <= end; k++ {
			scored[idx[k]].Quintile = q
		}
		start = end + 1
	}
}

// MinDistributionSample is the smallest batch whose quintile spread is
// checked; smaller batches cannot fill five buckets evenly.
const MinDistributionSample = 10

const (
	quintileShare     = 0.20
	quintileTolerance = 0.10
)

// CheckDistribution reports ranked candidates whose totals, rank scores or
// quintiles are out of range, and quintiles whose share of the batch strays
// more than ten points from a fifth. An empty result means the batch is
// sane.
func CheckDistribution(ranked []domain.ScoredCandidate) []string {
	var issues []string
	counts := [6]int{}
	for _, c := range ranked {
		total := c.Score.Total
		if math.IsNaN(total) || total < 0 || total > 100 {
			issues = append(issues, fmt.Sprintf("%s: total %.2f outside [0, 100]", c.Ticker(), total))
		}
		if math.IsNaN(c.RankScore) || math.IsInf(c.RankScore, 0) {
			issues = append(issues, fmt.Sprintf("%s: rank score is not finite", c.Ticker()))
		}
		if c.Quintile < 1 || c.Quintile > 5 {
			issues = append(issues, fmt.Sprintf("%s: quintile %d outside 1-5", c.Ticker(), c.Quintile))
			continue
		}
		counts[c.Quintile]++
	}
	if len(ranked) < MinDistributionSample {
		return issues
	}
	for q := 1; q <= 5; q++ {
		share := float64(counts[q]) / float64(len(ranked))
		if math.Abs(share-quintileShare) > quintileTolerance {
			issues = append(issues, fmt.Sprintf("Q%d holds %.0f%% of the batch, want about %.0f%%", q, share*100, quintileShare*100))
		}
	}
	return issues
}
