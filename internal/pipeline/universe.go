package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
)

// UniverseSource lists the tickers Lane A considers.
type UniverseSource interface {
	Universe(ctx context.Context, asOf time.Time) ([]domain.UniverseEntry, error)
}

type screenerHub interface {
	Universe(ctx context.Context, filter map[string]string) datahub.Result
}

// ScreenerUniverse asks the hub's screener for the universe.
type ScreenerUniverse struct {
	hub    screenerHub
	filter map[string]string
}

func NewScreenerUniverse(hub screenerHub, filter map[string]string) *ScreenerUniverse {
	return &ScreenerUniverse{hub: hub, filter: filter}
}

func (s *ScreenerUniverse) Universe(ctx context.Context, _ time.Time) ([]domain.UniverseEntry, error) {
	res := s.hub.Universe(ctx, s.filter)
	if !res.Success {
		if res.Err == nil {
			return nil, errors.New("screener failed")
		}
		return nil, fmt.Errorf("screener: %w", res.Err)
	}
	entries, err := ParseScreener(res.Data)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("screener returned an empty universe")
	}
	return entries, nil
}

type screenerRow struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	MarketCap   float64 `json:"marketCap"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
}

// ParseScreener decodes screener rows, dropping blank and duplicate symbols.
func ParseScreener(data json.RawMessage) ([]domain.UniverseEntry, error) {
	var rows []screenerRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode screener rows: %w", err)
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([]domain.UniverseEntry, 0, len(rows))
	for _, r := range rows {
		ticker := strings.ToUpper(strings.TrimSpace(r.Symbol))
		if ticker == "" {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		out = append(out, domain.UniverseEntry{
			Ticker:    ticker,
			Name:      r.CompanyName,
			Sector:    r.Sector,
			Industry:  r.Industry,
			MarketCap: r.MarketCap,
		})
	}
	return out, nil
}

// StaticUniverse is a fixed ticker list.
type StaticUniverse []string

func (s StaticUniverse) Universe(context.Context, time.Time) ([]domain.UniverseEntry, error) {
	seen := make(map[string]struct{}, len(s))
	out := make([]domain.UniverseEntry, 0, len(s))
	for _, raw := range s {
		ticker := strings.ToUpper(strings.TrimSpace(raw))
		if ticker == "" {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		out = append(out, domain.UniverseEntry{Ticker: ticker})
	}
	if len(out) == 0 {
		return nil, errors.New("static universe is empty")
	}
	return out, nil
}
