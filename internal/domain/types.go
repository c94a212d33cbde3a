package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Metadata is an unstructured container for run statistics and annotations.
type Metadata map[string]any

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Style is the investment style an idea is classified under.
type Style string

const (
	StyleQualityCompounder Style = "quality_compounder"
	StyleGARP              Style = "garp"
	StyleCigarButt         Style = "cigar_butt"
	StyleSpecialSituation  Style = "special_situation"
)

var knownStyles = map[Style]struct{}{
	StyleQualityCompounder: {},
	StyleGARP:              {},
	StyleCigarButt:         {},
	StyleSpecialSituation:  {},
}

func (s Style) Valid() bool {
	_, ok := knownStyles[s]
	return ok
}

func ParseStyle(raw string) (Style, error) {
	s := Style(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown style %q", raw)
	}
	return s, nil
}

// Styles returns every known style in a stable order.
func Styles() []Style {
	out := make([]Style, 0, len(knownStyles))
	for s := range knownStyles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgeType is one of the enumerated kinds of analytical edge a thesis may claim.
type EdgeType string

const (
	EdgeVariantPerception EdgeType = "variant_perception"
	EdgeCatalyst          EdgeType = "catalyst"
	EdgeStructural        EdgeType = "structural"
	EdgeBehavioral        EdgeType = "behavioral"
	EdgeInformation       EdgeType = "information"
	EdgeTimeArbitrage     EdgeType = "time_arbitrage"
)

var knownEdges = map[EdgeType]struct{}{
	EdgeVariantPerception: {},
	EdgeCatalyst:          {},
	EdgeStructural:        {},
	EdgeBehavioral:        {},
	EdgeInformation:       {},
	EdgeTimeArbitrage:     {},
}

func (e EdgeType) Valid() bool {
	_, ok := knownEdges[e]
	return ok
}

// EdgeKey is the canonical, order-independent form of a set of edge types.
func EdgeKey(edges []EdgeType) string {
	if len(edges) == 0 {
		return ""
	}
	parts := make([]string, 0, len(edges))
	for _, e := range edges {
		parts = append(parts, string(e))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
