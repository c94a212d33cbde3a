package auditlog

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestComputeIntegritySHA256_Stable(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	ev := Event{OccurredAt: at, Actor: "arc", Action: ActionIdeaPromoted, ResourceType: "idea", ResourceID: "i-1", RunID: "r-1"}
	payload := []byte(`{"ticker":"ACME"}`)

	a, err := ComputeIntegritySHA256(ev, payload)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, _ := ComputeIntegritySHA256(ev, payload)
	if a != b || len(a) != 64 {
		t.Fatalf("integrity not stable: %q vs %q", a, b)
	}

	ev.ResourceID = "i-2"
	c, _ := ComputeIntegritySHA256(ev, payload)
	if c == a {
		t.Fatalf("integrity should change with resource id")
	}
}

func TestEventValidate(t *testing.T) {
	ev := Event{OccurredAt: time.Now(), Actor: "arc", Action: ActionRunStarted, ResourceType: "run"}
	if err := ev.Validate(); err == nil || !strings.Contains(err.Error(), "ResourceID") {
		t.Fatalf("Validate() err=%v, want ResourceID error", err)
	}
}

func TestInsert_RequiresQueryer(t *testing.T) {
	if _, err := Insert(context.Background(), nil, Event{}); err == nil {
		t.Fatalf("expected error for nil queryer")
	}
}

func TestInsertQueryIsAppendOnly(t *testing.T) {
	if !strings.HasPrefix(strings.TrimSpace(insertEventQuery), "INSERT INTO audit_events") {
		t.Fatalf("expected insert into audit_events")
	}
	if strings.Contains(insertEventQuery, "ON CONFLICT") {
		t.Fatalf("audit events must not upsert")
	}
}

func TestWriter_NilWhenNoQueryer(t *testing.T) {
	if w := NewWriter(nil); w != nil {
		t.Fatalf("expected nil writer")
	}
}
