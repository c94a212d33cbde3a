package enrich

import (
	"encoding/json"

	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
)

// Provider field names, in preference order, for each metric. TTM key
// metrics come first, annual ratios fill the gaps.
var metricFields = map[string][]string{
	"gross_margin":       {"grossProfitMarginTTM", "grossProfitMargin"},
	"operating_margin":   {"operatingProfitMarginTTM", "operatingProfitMargin"},
	"roic":               {"roicTTM", "returnOnInvestedCapitalTTM", "returnOnCapitalEmployed"},
	"net_debt_to_ebitda": {"netDebtToEBITDATTM", "netDebtToEBITDA"},
	"interest_coverage":  {"interestCoverageTTM", "interestCoverage"},
	"current_ratio":      {"currentRatioTTM", "currentRatio"},
	"ev_to_ebit":         {"enterpriseValueOverEBITTTM", "enterpriseValueOverEBITDATTM", "enterpriseValueMultiple"},
	"price_to_book":      {"pbRatioTTM", "priceToBookRatioTTM", "priceToBookRatio"},
	"fcf_yield":          {"freeCashFlowYieldTTM", "freeCashFlowYield"},
}

// MetricsFromBundle extracts what the bundle's fundamentals carry. Missing
// or malformed sources simply leave metrics unknown.
func MetricsFromBundle(b datahub.Bundle) domain.Metrics {
	var rows []map[string]any
	for _, name := range []string{datahub.MethodKeyMetrics, datahub.MethodRatios} {
		data, ok := b.Data(name)
		if !ok {
			continue
		}
		if row, ok := firstRow(data); ok {
			rows = append(rows, row)
		}
	}

	var m domain.Metrics
	set := map[string]**float64{
		"gross_margin":       &m.GrossMargin,
		"operating_margin":   &m.OperatingMargin,
		"roic":               &m.ROIC,
		"net_debt_to_ebitda": &m.NetDebtToEBITDA,
		"interest_coverage":  &m.InterestCoverage,
		"current_ratio":      &m.CurrentRatio,
		"ev_to_ebit":         &m.EVToEBIT,
		"price_to_book":      &m.PriceToBook,
		"fcf_yield":          &m.FCFYield,
	}
	for metric, fields := range metricFields {
		if v, ok := lookup(rows, fields); ok {
			*set[metric] = &v
		}
	}
	return m
}

// firstRow accepts both a JSON array of objects and a single object.
func firstRow(data json.RawMessage) (map[string]any, bool) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err == nil {
		if len(rows) == 0 {
			return nil, false
		}
		return rows[0], true
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, false
	}
	return row, true
}

func lookup(rows []map[string]any, fields []string) (float64, bool) {
	for _, row := range rows {
		for _, f := range fields {
			if v, ok := row[f].(float64); ok {
				return v, true
			}
		}
	}
	return 0, false
}
