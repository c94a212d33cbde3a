package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
)

const systemPrompt = "You are an equity research analyst. Answer with a single JSON object and nothing else."

const answerShape = `{"headline": string, "hypothesis": string, "mechanism": string,
 "edge_types": [one or more of variant_perception, catalyst, structural, behavioral, information, time_arbitrage],
 "style": one of quality_compounder, garp, cigar_butt, special_situation,
 "signposts": [string], "catalysts": [string],
 "metrics": {"gross_margin": number, "operating_margin": number, "roic": number, "net_debt_to_ebitda": number,
  "interest_coverage": number, "current_ratio": number, "ev_to_ebit": number, "price_to_book": number, "fcf_yield": number},
 "ratings": {"edge_clarity": 0-10, "catalyst_clarity": 0-10, "complexity": 0-10, "disclosure_friction": 0-10}}`

const maxHeadlines = 5

// BuildPrompt renders the enrichment request for one shortlisted ticker.
func BuildPrompt(entry domain.UniverseEntry, b datahub.Bundle, metrics domain.Metrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker: %s\n", entry.Ticker)
	if entry.Name != "" {
		fmt.Fprintf(&sb, "Company: %s\n", entry.Name)
	}
	if entry.Sector != "" || entry.Industry != "" {
		fmt.Fprintf(&sb, "Sector: %s / %s\n", entry.Sector, entry.Industry)
	}
	if desc := profileDescription(b); desc != "" {
		fmt.Fprintf(&sb, "Business: %s\n", desc)
	}
	if raw, err := json.Marshal(metrics); err == nil && string(raw) != "{}" {
		fmt.Fprintf(&sb, "Known metrics: %s\n", raw)
	}
	if titles := newsTitles(b); len(titles) > 0 {
		sb.WriteString("Recent headlines:\n")
		for _, t := range titles {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
	}
	if entry.StyleHint != "" {
		fmt.Fprintf(&sb, "Screener style hint: %s\n", entry.StyleHint)
	}
	sb.WriteString("\nState the investment hypothesis, the mechanism by which it pays off, the edge, the style it fits, ")
	sb.WriteString("observable signposts and dated catalysts. Fill metrics you are confident about and leave others out.\n")
	sb.WriteString("Answer shape:\n")
	sb.WriteString(answerShape)
	return sb.String()
}

func profileDescription(b datahub.Bundle) string {
	data, ok := b.Data(datahub.MethodProfile)
	if !ok {
		return ""
	}
	row, ok := firstRow(data)
	if !ok {
		return ""
	}
	desc, _ := row["description"].(string)
	desc = strings.TrimSpace(desc)
	if len(desc) > 600 {
		desc = desc[:600]
	}
	return desc
}

func newsTitles(b datahub.Bundle) []string {
	data, ok := b.Data(datahub.MethodNews)
	if !ok {
		return nil
	}
	var payload struct {
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	var out []string
	for _, r := range payload.Results {
		if t := strings.TrimSpace(r.Title); t != "" {
			out = append(out, t)
		}
		if len(out) == maxHeadlines {
			break
		}
	}
	return out
}
