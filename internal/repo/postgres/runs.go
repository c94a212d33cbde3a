package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

type RunStore struct {
	db DB
}

const (
	insertRunQuery = `INSERT INTO pipeline_runs (run_id, run_type, as_of, status, started_at, stats)
	VALUES ($1,$2,$3,$4,$5,$6)`

	updateRunStatusQuery = `UPDATE pipeline_runs
	 SET status = $2, ended_at = $3, error = $4, stats = $5
	 WHERE run_id = $1`

	existsRunForDateQuery = `SELECT EXISTS (
		SELECT 1 FROM pipeline_runs
		 WHERE run_type = $1 AND as_of = $2 AND status = 'completed'
	)`

	latestRunQuery = `SELECT run_id, run_type, as_of, status, started_at, ended_at, error, stats
	 FROM pipeline_runs
	 WHERE run_type = $1
	 ORDER BY started_at DESC
	 LIMIT 1`
)

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, runType domain.RunType, asOf time.Time, status domain.RunStatus) (domain.RunRecord, error) {
	if s == nil || s.db == nil {
		return domain.RunRecord{}, fmt.Errorf("run store not initialized")
	}
	if strings.TrimSpace(string(runType)) == "" {
		return domain.RunRecord{}, fmt.Errorf("run type is required")
	}
	rec := domain.RunRecord{
		ID:        uuid.NewString(),
		Type:      runType,
		AsOf:      domain.DayStart(asOf),
		Status:    status,
		StartedAt: time.Now().UTC(),
		Stats:     domain.Metadata{},
	}
	stats, err := encodeMetadata(rec.Stats)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("encode stats: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertRunQuery, rec.ID, string(rec.Type), rec.AsOf, string(rec.Status), rec.StartedAt, stats); err != nil {
		return domain.RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

func (s *RunStore) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errMsg string, stats domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	encoded, err := encodeMetadata(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	var endedAt sql.NullTime
	if status != domain.RunStatusRunning {
		endedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, updateRunStatusQuery, strings.TrimSpace(runID), string(status), endedAt, nullIfEmpty(errMsg), encoded)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", runID, repo.ErrNotFound)
	}
	return nil
}

func (s *RunStore) ExistsForDate(ctx context.Context, runType domain.RunType, date time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("run store not initialized")
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsRunForDateQuery, string(runType), domain.DayStart(date)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check run exists: %w", err)
	}
	return exists, nil
}

func (s *RunStore) Latest(ctx context.Context, runType domain.RunType) (domain.RunRecord, error) {
	if s == nil || s.db == nil {
		return domain.RunRecord{}, fmt.Errorf("run store not initialized")
	}
	var (
		rec     domain.RunRecord
		typ     string
		status  string
		endedAt sql.NullTime
		errMsg  sql.NullString
		stats   []byte
	)
	err := s.db.QueryRowContext(ctx, latestRunQuery, string(runType)).Scan(
		&rec.ID, &typ, &rec.AsOf, &status, &rec.StartedAt, &endedAt, &errMsg, &stats,
	)
	if err != nil {
		return domain.RunRecord{}, handleNotFound(err)
	}
	rec.Type = domain.RunType(typ)
	rec.Status = domain.RunStatus(status)
	rec.Error = errMsg.String
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		rec.EndedAt = &t
	}
	meta, err := decodeMetadata(stats)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode stats: %w", err)
	}
	rec.Stats = meta
	return rec, nil
}

var _ repo.RunRepository = (*RunStore)(nil)
