package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

const (
	windowDay  = "day"
	windowWeek = "week"

	incrementQuotaQuery = `INSERT INTO quota_counts (window_kind, window_start, style, count)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (window_kind, window_start, style) DO UPDATE SET count = quota_counts.count + 1`

	selectQuotaQuery = `SELECT window_kind, style, count
	 FROM quota_counts
	 WHERE (window_kind = 'week' AND window_start = $1)
	    OR (window_kind = 'day' AND window_start = $2)`
)

type QuotaStore struct {
	db TxDB
}

func NewQuotaStore(db TxDB) *QuotaStore {
	if db == nil {
		return nil
	}
	return &QuotaStore{db: db}
}

func (s *QuotaStore) GetCurrentWeek(ctx context.Context, asOf time.Time) (domain.QuotaState, error) {
	if s == nil || s.db == nil {
		return domain.QuotaState{}, fmt.Errorf("quota store not initialized")
	}
	return readQuota(ctx, s.db, asOf)
}

// IncrementStyleCount bumps the day and week counters in one transaction and
// returns the state as seen inside it.
func (s *QuotaStore) IncrementStyleCount(ctx context.Context, asOf time.Time, style domain.Style) (domain.QuotaState, error) {
	if s == nil || s.db == nil {
		return domain.QuotaState{}, fmt.Errorf("quota store not initialized")
	}
	if !style.Valid() {
		return domain.QuotaState{}, fmt.Errorf("invalid style %q", style)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.QuotaState{}, fmt.Errorf("begin quota tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, incrementQuotaQuery, windowWeek, domain.WeekStart(asOf), string(style)); err != nil {
		return domain.QuotaState{}, fmt.Errorf("increment weekly quota: %w", err)
	}
	if _, err := tx.ExecContext(ctx, incrementQuotaQuery, windowDay, domain.DayStart(asOf), string(style)); err != nil {
		return domain.QuotaState{}, fmt.Errorf("increment daily quota: %w", err)
	}
	state, err := readQuota(ctx, tx, asOf)
	if err != nil {
		return domain.QuotaState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.QuotaState{}, fmt.Errorf("commit quota tx: %w", err)
	}
	return state, nil
}

type quotaQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readQuota(ctx context.Context, q quotaQueryer, asOf time.Time) (domain.QuotaState, error) {
	week := domain.WeekStart(asOf)
	day := domain.DayStart(asOf)
	rows, err := q.QueryContext(ctx, selectQuotaQuery, week, day)
	if err != nil {
		return domain.QuotaState{}, fmt.Errorf("read quota: %w", err)
	}
	defer rows.Close()

	state := domain.QuotaState{WeekStart: week, Day: day, WeeklyByStyle: map[domain.Style]int{}}
	for rows.Next() {
		var kind, style string
		var count int
		if err := rows.Scan(&kind, &style, &count); err != nil {
			return domain.QuotaState{}, fmt.Errorf("scan quota: %w", err)
		}
		switch kind {
		case windowWeek:
			state.WeeklyByStyle[domain.Style(style)] += count
			state.WeeklyTotal += count
		case windowDay:
			state.DailyTotal += count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.QuotaState{}, fmt.Errorf("read quota: %w", err)
	}
	return state, nil
}

var _ repo.QuotaRepository = (*QuotaStore)(nil)
