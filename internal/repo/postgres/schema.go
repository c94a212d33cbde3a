package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ideas (
		idea_id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		version INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		style TEXT NOT NULL,
		rank_score DOUBLE PRECISION NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		margin DOUBLE PRECISION NOT NULL,
		quintile INTEGER NOT NULL DEFAULT 0,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		integrity_sha256 TEXT NOT NULL,
		UNIQUE (ticker, version)
	)`,
	`CREATE INDEX IF NOT EXISTS ideas_created_at_idx ON ideas (created_at)`,
	`CREATE OR REPLACE FUNCTION reject_idea_mutation() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'ideas are append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS ideas_append_only ON ideas`,
	`CREATE TRIGGER ideas_append_only BEFORE UPDATE OR DELETE ON ideas
		FOR EACH ROW EXECUTE FUNCTION reject_idea_mutation()`,
	`CREATE TABLE IF NOT EXISTS novelty_state (
		ticker TEXT PRIMARY KEY,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		appearances JSONB NOT NULL,
		last_edge_key TEXT,
		last_style TEXT,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quota_counts (
		window_kind TEXT NOT NULL,
		window_start DATE NOT NULL,
		style TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (window_kind, window_start, style)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		run_id TEXT PRIMARY KEY,
		run_type TEXT NOT NULL,
		as_of DATE NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		error TEXT,
		stats JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pipeline_runs_type_as_of_idx ON pipeline_runs (run_type, as_of)`,
	`CREATE TABLE IF NOT EXISTS rejection_markers (
		marker_id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		reason TEXT NOT NULL,
		blocking BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS step_executions (
		step_execution_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		step_name TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		error_message TEXT,
		result JSONB,
		UNIQUE (run_id, step_name, attempt)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		event_id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		run_id TEXT,
		payload JSONB NOT NULL,
		integrity_sha256 TEXT NOT NULL
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
