package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/arc-research/arc-pipeline/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrImmutable = errors.New("record is immutable")
)

// IdeaRepository stores promoted ideas as append-only versions.
type IdeaRepository interface {
	// Create assigns the next version for the ticker and returns the stored idea.
	Create(ctx context.Context, idea domain.Idea) (domain.Idea, error)
	GetByTicker(ctx context.Context, ticker string) ([]domain.Idea, error)
	GetLatestByTicker(ctx context.Context, ticker string) (domain.Idea, error)
	ListSince(ctx context.Context, since time.Time) ([]domain.Idea, error)
}

type NoveltyRepository interface {
	GetMany(ctx context.Context, tickers []string) (map[string]domain.NoveltyState, error)
	Upsert(ctx context.Context, state domain.NoveltyState) error
	List(ctx context.Context) ([]domain.NoveltyState, error)
}

type QuotaRepository interface {
	GetCurrentWeek(ctx context.Context, asOf time.Time) (domain.QuotaState, error)
	IncrementStyleCount(ctx context.Context, asOf time.Time, style domain.Style) (domain.QuotaState, error)
}

// PromotionRepository commits one promotion: the new idea version and the
// style's day and week quota increments are stored together or not at all.
type PromotionRepository interface {
	Commit(ctx context.Context, idea domain.Idea, asOf time.Time) (domain.Idea, domain.QuotaState, error)
}

type RunRepository interface {
	Create(ctx context.Context, runType domain.RunType, asOf time.Time, status domain.RunStatus) (domain.RunRecord, error)
	UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errMsg string, stats domain.Metadata) error
	ExistsForDate(ctx context.Context, runType domain.RunType, date time.Time) (bool, error)
	Latest(ctx context.Context, runType domain.RunType) (domain.RunRecord, error)
}

type RejectionRepository interface {
	ListBlocking(ctx context.Context, asOf time.Time) (map[string]domain.RejectionMarker, error)
	Create(ctx context.Context, marker domain.RejectionMarker) error
}

// StepExecutionRecord is one attempt of one workflow step.
type StepExecutionRecord struct {
	ID           string
	RunID        string
	StepName     string
	Attempt      int
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage string
	Result       json.RawMessage
}

// StepExecutionRepository is an idempotent attempt ledger keyed by (run, step, attempt).
type StepExecutionRepository interface {
	InsertAttempt(ctx context.Context, record StepExecutionRecord) (StepExecutionRecord, bool, error)
	ListByRun(ctx context.Context, runID string) ([]StepExecutionRecord, error)
}
