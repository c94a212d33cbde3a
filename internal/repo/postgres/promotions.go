package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
	platformpg "github.com/arc-research/arc-pipeline/internal/platform/postgres"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

// PromotionStore writes the idea version and both quota counters in one
// transaction.
type PromotionStore struct {
	db TxDB
}

func NewPromotionStore(db TxDB) *PromotionStore {
	if db == nil {
		return nil
	}
	return &PromotionStore{db: db}
}

// Commit retries the whole transaction when a concurrent writer took the
// version first; a unique violation aborts the transaction it happens in.
func (s *PromotionStore) Commit(ctx context.Context, idea domain.Idea, asOf time.Time) (domain.Idea, domain.QuotaState, error) {
	if s == nil || s.db == nil {
		return domain.Idea{}, domain.QuotaState{}, fmt.Errorf("promotion store not initialized")
	}
	idea, payload, err := prepareIdea(idea)
	if err != nil {
		return domain.Idea{}, domain.QuotaState{}, err
	}
	for attempt := 1; ; attempt++ {
		stored, state, err := s.commitOnce(ctx, idea, payload, asOf)
		if err == nil {
			return stored, state, nil
		}
		if !isUniqueViolation(err) || attempt >= maxVersionRetries {
			return domain.Idea{}, domain.QuotaState{}, fmt.Errorf("commit promotion %s: %w", idea.Ticker, err)
		}
	}
}

func (s *PromotionStore) commitOnce(ctx context.Context, idea domain.Idea, payload []byte, asOf time.Time) (domain.Idea, domain.QuotaState, error) {
	var state domain.QuotaState
	err := platformpg.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, insertIdeaQuery, ideaInsertArgs(idea, payload)...).Scan(&idea.Version); err != nil {
			return fmt.Errorf("insert idea: %w", err)
		}
		style := string(idea.Style)
		if _, err := tx.ExecContext(ctx, incrementQuotaQuery, windowWeek, domain.WeekStart(asOf), style); err != nil {
			return fmt.Errorf("increment weekly quota: %w", err)
		}
		if _, err := tx.ExecContext(ctx, incrementQuotaQuery, windowDay, domain.DayStart(asOf), style); err != nil {
			return fmt.Errorf("increment daily quota: %w", err)
		}
		var err error
		state, err = readQuota(ctx, tx, asOf)
		return err
	})
	if err != nil {
		return domain.Idea{}, domain.QuotaState{}, err
	}
	return idea, state, nil
}

var _ repo.PromotionRepository = (*PromotionStore)(nil)
