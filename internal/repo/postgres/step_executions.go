package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arc-research/arc-pipeline/internal/repo"
)

type StepExecutionStore struct {
	db DB
}

const (
	insertStepExecutionQuery = `INSERT INTO step_executions (
		step_execution_id,
		run_id,
		step_name,
		attempt,
		status,
		started_at,
		finished_at,
		error_message,
		result
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (run_id, step_name, attempt) DO NOTHING
	RETURNING step_execution_id, run_id, step_name, attempt, status, started_at, finished_at, error_message, result`

	selectStepExecutionQuery = `SELECT step_execution_id, run_id, step_name, attempt, status, started_at, finished_at, error_message, result
	 FROM step_executions
	 WHERE run_id = $1 AND step_name = $2 AND attempt = $3`

	listStepExecutionsByRunQuery = `SELECT step_execution_id, run_id, step_name, attempt, status, started_at, finished_at, error_message, result
	 FROM step_executions
	 WHERE run_id = $1
	 ORDER BY started_at ASC, step_name ASC, attempt ASC`
)

func NewStepExecutionStore(db DB) *StepExecutionStore {
	if db == nil {
		return nil
	}
	return &StepExecutionStore{db: db}
}

// InsertAttempt records an attempt once; a replayed attempt returns the stored row and false.
func (s *StepExecutionStore) InsertAttempt(ctx context.Context, record repo.StepExecutionRecord) (repo.StepExecutionRecord, bool, error) {
	if s == nil || s.db == nil {
		return repo.StepExecutionRecord{}, false, fmt.Errorf("step execution store not initialized")
	}
	runID := strings.TrimSpace(record.RunID)
	stepName := strings.TrimSpace(record.StepName)
	status := strings.TrimSpace(record.Status)

	if runID == "" {
		return repo.StepExecutionRecord{}, false, fmt.Errorf("run id is required")
	}
	if stepName == "" {
		return repo.StepExecutionRecord{}, false, fmt.Errorf("step name is required")
	}
	if record.Attempt < 1 {
		return repo.StepExecutionRecord{}, false, fmt.Errorf("attempt must be >= 1")
	}
	if status == "" {
		return repo.StepExecutionRecord{}, false, fmt.Errorf("status is required")
	}

	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	finishedAt := nullTime(record.FinishedAt)

	id := record.ID
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	var result any
	if len(record.Result) > 0 {
		result = []byte(record.Result)
	}

	row := s.db.QueryRowContext(
		ctx,
		insertStepExecutionQuery,
		id,
		runID,
		stepName,
		record.Attempt,
		status,
		startedAt.UTC(),
		finishedAt,
		nullIfEmpty(record.ErrorMessage),
		result,
	)
	inserted, err := scanStepExecution(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return repo.StepExecutionRecord{}, false, fmt.Errorf("insert step execution: %w", err)
		}
		existing, err := scanStepExecution(s.db.QueryRowContext(ctx, selectStepExecutionQuery, runID, stepName, record.Attempt))
		if err != nil {
			return repo.StepExecutionRecord{}, false, handleNotFound(err)
		}
		return existing, false, nil
	}
	return inserted, true, nil
}

func (s *StepExecutionStore) ListByRun(ctx context.Context, runID string) ([]repo.StepExecutionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step execution store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.db.QueryContext(ctx, listStepExecutionsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list step executions: %w", err)
	}
	defer rows.Close()

	records := make([]repo.StepExecutionRecord, 0)
	for rows.Next() {
		record, err := scanStepExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list step executions: %w", err)
	}
	return records, nil
}

func scanStepExecution(row scanner) (repo.StepExecutionRecord, error) {
	var (
		record       repo.StepExecutionRecord
		finishedAt   sql.NullTime
		errorMessage sql.NullString
		result       []byte
	)
	if err := row.Scan(
		&record.ID,
		&record.RunID,
		&record.StepName,
		&record.Attempt,
		&record.Status,
		&record.StartedAt,
		&finishedAt,
		&errorMessage,
		&result,
	); err != nil {
		return repo.StepExecutionRecord{}, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		record.FinishedAt = &t
	}
	record.ErrorMessage = errorMessage.String
	record.Result = result
	return record, nil
}

var _ repo.StepExecutionRepository = (*StepExecutionStore)(nil)
