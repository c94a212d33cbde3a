package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

type IdeaStore struct {
	db DB
}

const (
	insertIdeaQuery = `INSERT INTO ideas (
		idea_id,
		ticker,
		version,
		run_id,
		style,
		rank_score,
		threshold,
		margin,
		quintile,
		payload,
		created_at,
		integrity_sha256
	)
	SELECT $1::text, $2::text, COALESCE(MAX(version), 0) + 1, $3::text, $4::text,
		$5::float8, $6::float8, $7::float8, $8::int, $9::jsonb, $10::timestamptz, $11::text
	FROM ideas WHERE ticker = $2::text
	RETURNING version`

	selectIdeaColumns = `idea_id, ticker, version, run_id, style, rank_score, threshold, margin, quintile, payload, created_at, integrity_sha256`

	listIdeasByTickerQuery = `SELECT ` + selectIdeaColumns + `
	 FROM ideas
	 WHERE ticker = $1
	 ORDER BY version ASC`

	latestIdeaByTickerQuery = `SELECT ` + selectIdeaColumns + `
	 FROM ideas
	 WHERE ticker = $1
	 ORDER BY version DESC
	 LIMIT 1`

	listIdeasSinceQuery = `SELECT ` + selectIdeaColumns + `
	 FROM ideas
	 WHERE created_at >= $1
	 ORDER BY created_at ASC, ticker ASC, version ASC`

	maxVersionRetries = 3
)

type ideaPayload struct {
	EdgeTypes    []domain.EdgeType      `json:"edge_types"`
	Headline     string                 `json:"headline"`
	Hypothesis   string                 `json:"hypothesis"`
	Mechanism    string                 `json:"mechanism"`
	Signposts    []string               `json:"signposts"`
	Catalysts    []string               `json:"catalysts"`
	Score        domain.ScoreComponents `json:"score"`
	Rank         int                    `json:"rank"`
	NoveltyScore float64                `json:"novelty_score"`
	Exploration  bool                   `json:"exploration"`
	Gates        domain.GateOutcome     `json:"gates"`
}

func NewIdeaStore(db DB) *IdeaStore {
	if db == nil {
		return nil
	}
	return &IdeaStore{db: db}
}

// Create inserts the next version for the ticker. A concurrent writer racing
// for the same version loses on the unique key and retries.
func (s *IdeaStore) Create(ctx context.Context, idea domain.Idea) (domain.Idea, error) {
	if s == nil || s.db == nil {
		return domain.Idea{}, fmt.Errorf("idea store not initialized")
	}
	idea, payload, err := prepareIdea(idea)
	if err != nil {
		return domain.Idea{}, err
	}

	for attempt := 1; ; attempt++ {
		var version int
		err = s.db.QueryRowContext(ctx, insertIdeaQuery, ideaInsertArgs(idea, payload)...).Scan(&version)
		if err == nil {
			idea.Version = version
			return idea, nil
		}
		if !isUniqueViolation(err) || attempt >= maxVersionRetries {
			return domain.Idea{}, fmt.Errorf("insert idea: %w", err)
		}
	}
}

func prepareIdea(idea domain.Idea) (domain.Idea, []byte, error) {
	idea.Ticker = normalizeTicker(idea.Ticker)
	if strings.TrimSpace(idea.ID) == "" {
		idea.ID = uuid.NewString()
	}
	idea.CreatedAt = normalizeTime(idea.CreatedAt)
	if err := idea.Validate(); err != nil {
		return domain.Idea{}, nil, err
	}
	if idea.IntegritySHA256 == "" {
		sum, err := idea.ComputeIntegrity()
		if err != nil {
			return domain.Idea{}, nil, err
		}
		idea.IntegritySHA256 = sum
	}

	payload, err := json.Marshal(ideaPayload{
		EdgeTypes:    idea.EdgeTypes,
		Headline:     idea.Headline,
		Hypothesis:   idea.Hypothesis,
		Mechanism:    idea.Mechanism,
		Signposts:    idea.Signposts,
		Catalysts:    idea.Catalysts,
		Score:        idea.Score,
		Rank:         idea.Rank,
		NoveltyScore: idea.NoveltyScore,
		Exploration:  idea.Exploration,
		Gates:        idea.Gates,
	})
	if err != nil {
		return domain.Idea{}, nil, fmt.Errorf("encode idea payload: %w", err)
	}
	return idea, payload, nil
}

func ideaInsertArgs(idea domain.Idea, payload []byte) []any {
	return []any{
		idea.ID,
		idea.Ticker,
		idea.RunID,
		string(idea.Style),
		idea.RankScore,
		idea.Threshold,
		idea.Margin,
		idea.Quintile,
		payload,
		idea.CreatedAt,
		idea.IntegritySHA256,
	}
}

func (s *IdeaStore) GetByTicker(ctx context.Context, ticker string) ([]domain.Idea, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("idea store not initialized")
	}
	return s.list(ctx, listIdeasByTickerQuery, normalizeTicker(ticker))
}

func (s *IdeaStore) GetLatestByTicker(ctx context.Context, ticker string) (domain.Idea, error) {
	if s == nil || s.db == nil {
		return domain.Idea{}, fmt.Errorf("idea store not initialized")
	}
	row := s.db.QueryRowContext(ctx, latestIdeaByTickerQuery, normalizeTicker(ticker))
	idea, err := scanIdea(row)
	if err != nil {
		return domain.Idea{}, handleNotFound(err)
	}
	return idea, nil
}

func (s *IdeaStore) ListSince(ctx context.Context, since time.Time) ([]domain.Idea, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("idea store not initialized")
	}
	return s.list(ctx, listIdeasSinceQuery, since.UTC())
}

func (s *IdeaStore) list(ctx context.Context, query string, arg any) ([]domain.Idea, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Idea, 0)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	return out, nil
}

func scanIdea(row scanner) (domain.Idea, error) {
	var (
		idea    domain.Idea
		style   string
		payload []byte
		created sql.NullTime
	)
	if err := row.Scan(
		&idea.ID,
		&idea.Ticker,
		&idea.Version,
		&idea.RunID,
		&style,
		&idea.RankScore,
		&idea.Threshold,
		&idea.Margin,
		&idea.Quintile,
		&payload,
		&created,
		&idea.IntegritySHA256,
	); err != nil {
		return domain.Idea{}, err
	}
	var p ideaPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Idea{}, fmt.Errorf("decode idea payload: %w", err)
	}
	idea.Style = domain.Style(style)
	idea.EdgeTypes = p.EdgeTypes
	idea.Headline = p.Headline
	idea.Hypothesis = p.Hypothesis
	idea.Mechanism = p.Mechanism
	idea.Signposts = p.Signposts
	idea.Catalysts = p.Catalysts
	idea.Score = p.Score
	idea.Rank = p.Rank
	idea.NoveltyScore = p.NoveltyScore
	idea.Exploration = p.Exploration
	idea.Gates = p.Gates
	if created.Valid {
		idea.CreatedAt = created.Time.UTC()
	}
	return idea, nil
}

var _ repo.IdeaRepository = (*IdeaStore)(nil)
