package postgres

import (
	"context"
	"strings"
	"testing"
)

func TestStepExecutionQueriesAreIdempotent(t *testing.T) {
	if !strings.Contains(insertStepExecutionQuery, "ON CONFLICT (run_id, step_name, attempt) DO NOTHING") {
		t.Fatalf("expected idempotency conflict clause in insert query")
	}
	if !strings.Contains(selectStepExecutionQuery, "run_id = $1") {
		t.Fatalf("expected run_id predicate in select query")
	}
	if !strings.Contains(listStepExecutionsByRunQuery, "ORDER BY") {
		t.Fatalf("expected ORDER BY in list query")
	}
}

func TestIdeaInsertAssignsNextVersion(t *testing.T) {
	if !strings.Contains(insertIdeaQuery, "COALESCE(MAX(version), 0) + 1") {
		t.Fatalf("expected version assignment in insert query")
	}
	if strings.Contains(insertIdeaQuery, "ON CONFLICT") {
		t.Fatalf("idea insert must not upsert")
	}
	if !strings.Contains(latestIdeaByTickerQuery, "ORDER BY version DESC") {
		t.Fatalf("expected latest query to order by version desc")
	}
}

func TestSchemaRejectsIdeaMutation(t *testing.T) {
	joined := strings.Join(schemaStatements, "\n")
	if !strings.Contains(joined, "BEFORE UPDATE OR DELETE ON ideas") {
		t.Fatalf("expected append-only trigger on ideas")
	}
	if !strings.Contains(joined, "UNIQUE (ticker, version)") {
		t.Fatalf("expected unique (ticker, version)")
	}
}

func TestQuotaIncrementIsAtomicUpsert(t *testing.T) {
	if !strings.Contains(incrementQuotaQuery, "count = quota_counts.count + 1") {
		t.Fatalf("expected in-place increment")
	}
	if !strings.Contains(selectQuotaQuery, "window_kind = 'week'") || !strings.Contains(selectQuotaQuery, "window_kind = 'day'") {
		t.Fatalf("expected week and day windows in quota select")
	}
}

func TestRunExistsOnlyCountsCompleted(t *testing.T) {
	if !strings.Contains(existsRunForDateQuery, "status = 'completed'") {
		t.Fatalf("expected completed-status predicate")
	}
}

func TestNoveltyUpsertKeepsFirstSeen(t *testing.T) {
	if strings.Contains(upsertNoveltyQuery, "first_seen = EXCLUDED.first_seen") {
		t.Fatalf("first_seen must not be overwritten on conflict")
	}
	if !strings.Contains(upsertNoveltyQuery, "ON CONFLICT (ticker) DO UPDATE") {
		t.Fatalf("expected upsert clause")
	}
}

func TestBlockingRejectionsHonourExpiry(t *testing.T) {
	if !strings.Contains(listBlockingRejectionsQuery, "expires_at IS NULL OR expires_at > $1") {
		t.Fatalf("expected expiry predicate")
	}
}

func TestConstructorsReturnNilForNilDB(t *testing.T) {
	if NewIdeaStore(nil) != nil || NewNoveltyStore(nil) != nil || NewQuotaStore(nil) != nil ||
		NewRunStore(nil) != nil || NewRejectionStore(nil) != nil || NewStepExecutionStore(nil) != nil ||
		NewPromotionStore(nil) != nil {
		t.Fatalf("expected nil stores for nil db")
	}
	var s *IdeaStore
	if _, err := s.GetByTicker(context.Background(), "ACME"); err == nil {
		t.Fatalf("expected error from nil store")
	}
}
