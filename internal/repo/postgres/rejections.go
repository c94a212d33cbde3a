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

type RejectionStore struct {
	db DB
}

const (
	insertRejectionQuery = `INSERT INTO rejection_markers (marker_id, ticker, reason, blocking, created_at, expires_at)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (marker_id) DO NOTHING`

	listBlockingRejectionsQuery = `SELECT marker_id, ticker, reason, blocking, created_at, expires_at
	 FROM rejection_markers
	 WHERE blocking = TRUE AND (expires_at IS NULL OR expires_at > $1)
	 ORDER BY created_at ASC`
)

func NewRejectionStore(db DB) *RejectionStore {
	if db == nil {
		return nil
	}
	return &RejectionStore{db: db}
}

func (s *RejectionStore) ListBlocking(ctx context.Context, asOf time.Time) (map[string]domain.RejectionMarker, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("rejection store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, listBlockingRejectionsQuery, asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("list rejection markers: %w", err)
	}
	defer rows.Close()

	out := map[string]domain.RejectionMarker{}
	for rows.Next() {
		var m domain.RejectionMarker
		var expires sql.NullTime
		if err := rows.Scan(&m.ID, &m.Ticker, &m.Reason, &m.Blocking, &m.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("scan rejection marker: %w", err)
		}
		if expires.Valid {
			t := expires.Time.UTC()
			m.ExpiresAt = &t
		}
		out[normalizeTicker(m.Ticker)] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rejection markers: %w", err)
	}
	return out, nil
}

func (s *RejectionStore) Create(ctx context.Context, marker domain.RejectionMarker) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("rejection store not initialized")
	}
	ticker := normalizeTicker(marker.Ticker)
	if ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	if strings.TrimSpace(marker.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	if marker.ID == "" {
		marker.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, insertRejectionQuery,
		marker.ID, ticker, strings.TrimSpace(marker.Reason), marker.Blocking,
		normalizeTime(marker.CreatedAt), nullTime(marker.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert rejection marker: %w", err)
	}
	return nil
}

var _ repo.RejectionRepository = (*RejectionStore)(nil)
