package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

type NoveltyStore struct {
	db DB
}

const (
	noveltyColumns = `ticker, first_seen, last_seen, appearances, last_edge_key, last_style, updated_at`

	getNoveltyManyQuery = `SELECT ` + noveltyColumns + `
	 FROM novelty_state
	 WHERE ticker = ANY($1)`

	listNoveltyQuery = `SELECT ` + noveltyColumns + `
	 FROM novelty_state
	 ORDER BY ticker ASC`

	upsertNoveltyQuery = `INSERT INTO novelty_state (` + noveltyColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (ticker) DO UPDATE SET
		last_seen = EXCLUDED.last_seen,
		appearances = EXCLUDED.appearances,
		last_edge_key = EXCLUDED.last_edge_key,
		last_style = EXCLUDED.last_style,
		updated_at = EXCLUDED.updated_at`
)

func NewNoveltyStore(db DB) *NoveltyStore {
	if db == nil {
		return nil
	}
	return &NoveltyStore{db: db}
}

func (s *NoveltyStore) GetMany(ctx context.Context, tickers []string) (map[string]domain.NoveltyState, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("novelty store not initialized")
	}
	out := make(map[string]domain.NoveltyState, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(tickers))
	for _, t := range tickers {
		keys = append(keys, normalizeTicker(t))
	}
	rows, err := s.db.QueryContext(ctx, getNoveltyManyQuery, keys)
	if err != nil {
		return nil, fmt.Errorf("get novelty states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		st, err := scanNovelty(rows)
		if err != nil {
			return nil, err
		}
		out[st.Ticker] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get novelty states: %w", err)
	}
	return out, nil
}

func (s *NoveltyStore) Upsert(ctx context.Context, state domain.NoveltyState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("novelty store not initialized")
	}
	state.Ticker = normalizeTicker(state.Ticker)
	if state.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	appearances, err := json.Marshal(state.Appearances)
	if err != nil {
		return fmt.Errorf("encode appearances: %w", err)
	}
	firstSeen := state.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = state.LastSeen
	}
	_, err = s.db.ExecContext(
		ctx,
		upsertNoveltyQuery,
		state.Ticker,
		normalizeTime(firstSeen),
		normalizeTime(state.LastSeen),
		appearances,
		nullIfEmpty(state.LastEdgeKey),
		nullIfEmpty(string(state.LastStyle)),
		normalizeTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert novelty state: %w", err)
	}
	return nil
}

func (s *NoveltyStore) List(ctx context.Context) ([]domain.NoveltyState, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("novelty store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listNoveltyQuery)
	if err != nil {
		return nil, fmt.Errorf("list novelty states: %w", err)
	}
	defer rows.Close()
	out := make([]domain.NoveltyState, 0)
	for rows.Next() {
		st, err := scanNovelty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list novelty states: %w", err)
	}
	return out, nil
}

func scanNovelty(row scanner) (domain.NoveltyState, error) {
	var (
		st          domain.NoveltyState
		appearances []byte
		edgeKey     sql.NullString
		style       sql.NullString
	)
	if err := row.Scan(&st.Ticker, &st.FirstSeen, &st.LastSeen, &appearances, &edgeKey, &style, &st.UpdatedAt); err != nil {
		return domain.NoveltyState{}, err
	}
	if len(appearances) > 0 {
		var at []time.Time
		if err := json.Unmarshal(appearances, &at); err != nil {
			return domain.NoveltyState{}, fmt.Errorf("decode appearances: %w", err)
		}
		st.Appearances = at
	}
	st.LastEdgeKey = edgeKey.String
	st.LastStyle = domain.Style(style.String)
	return st, nil
}

var _ repo.NoveltyRepository = (*NoveltyStore)(nil)
