package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

var ErrEmptyEnrichment = errors.New("completion has no headline or hypothesis")

type wireEnrichment struct {
	Headline   string         `json:"headline"`
	Hypothesis string         `json:"hypothesis"`
	Mechanism  string         `json:"mechanism"`
	EdgeTypes  []string       `json:"edge_types"`
	Style      string         `json:"style"`
	Signposts  []string       `json:"signposts"`
	Catalysts  []string       `json:"catalysts"`
	Metrics    domain.Metrics `json:"metrics"`
	Ratings    domain.Ratings `json:"ratings"`
}

// ParseEnrichment decodes a model answer. Code fences around the JSON are
// tolerated. Edge types are kept as written so the edge gate can reject
// unknown ones; an unknown style is left empty.
func ParseEnrichment(text string) (domain.Enrichment, error) {
	body := stripFences(text)
	var w wireEnrichment
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return domain.Enrichment{}, fmt.Errorf("decode enrichment: %w", err)
	}
	if strings.TrimSpace(w.Headline) == "" && strings.TrimSpace(w.Hypothesis) == "" {
		return domain.Enrichment{}, ErrEmptyEnrichment
	}

	out := domain.Enrichment{
		Headline:   strings.TrimSpace(w.Headline),
		Hypothesis: strings.TrimSpace(w.Hypothesis),
		Mechanism:  strings.TrimSpace(w.Mechanism),
		Signposts:  nonEmpty(w.Signposts),
		Catalysts:  nonEmpty(w.Catalysts),
		Metrics:    w.Metrics,
		Ratings:    w.Ratings,
	}
	for _, e := range w.EdgeTypes {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out.EdgeTypes = append(out.EdgeTypes, domain.EdgeType(e))
		}
	}
	if style, err := domain.ParseStyle(w.Style); err == nil {
		out.Style = style
	}
	return out, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
