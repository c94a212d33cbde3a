package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/platform/auditlog"
	"github.com/arc-research/arc-pipeline/internal/platform/objectstore"
	"github.com/arc-research/arc-pipeline/internal/repo"
	"github.com/arc-research/arc-pipeline/internal/workflow"
)

// PacketStore persists research packets.
type PacketStore interface {
	Put(ctx context.Context, packet domain.ResearchPacket) (domain.PacketRef, error)
}

type MemoryPackets struct {
	mu    sync.Mutex
	items map[string]domain.ResearchPacket
}

func NewMemoryPackets() *MemoryPackets {
	return &MemoryPackets{items: map[string]domain.ResearchPacket{}}
}

func (m *MemoryPackets) Put(_ context.Context, p domain.ResearchPacket) (domain.PacketRef, error) {
	key := p.ObjectKey()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = p
	return domain.PacketRef{IdeaID: p.IdeaID, Ticker: p.Ticker, Key: key}, nil
}

func (m *MemoryPackets) Get(key string) (domain.ResearchPacket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[key]
	return p, ok
}

func (m *MemoryPackets) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.items))
	for k := range m.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BucketPackets stores packets as JSON objects in the packets bucket.
type BucketPackets struct {
	bucket *objectstore.JSONBucket
}

func NewBucketPackets(bucket *objectstore.JSONBucket) (*BucketPackets, error) {
	if bucket == nil {
		return nil, errors.New("packet bucket is required")
	}
	return &BucketPackets{bucket: bucket}, nil
}

func (b *BucketPackets) Put(ctx context.Context, p domain.ResearchPacket) (domain.PacketRef, error) {
	key := p.ObjectKey()
	etag, err := b.bucket.PutJSON(ctx, key, p)
	if err != nil {
		return domain.PacketRef{}, err
	}
	return domain.PacketRef{IdeaID: p.IdeaID, Ticker: p.Ticker, Key: key, ETag: etag}, nil
}

// AuditSink receives run and promotion audit events.
type AuditSink interface {
	Append(ctx context.Context, event auditlog.Event) error
}

type MemoryAudit struct {
	mu     sync.Mutex
	events []auditlog.Event
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (m *MemoryAudit) Append(_ context.Context, event auditlog.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryAudit) Events() []auditlog.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auditlog.Event(nil), m.events...)
}

// Recorder writes every workflow attempt to the step execution ledger.
type Recorder struct {
	steps  repo.StepExecutionRepository
	logger *slog.Logger
}

func NewRecorder(steps repo.StepExecutionRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{steps: steps, logger: logger}
}

func (r *Recorder) RecordAttempt(ctx context.Context, rec workflow.AttemptRecord) {
	if r == nil || r.steps == nil {
		return
	}
	finished := rec.FinishedAt.UTC()
	record := repo.StepExecutionRecord{
		RunID:      rec.RunID,
		StepName:   rec.StepID,
		Attempt:    rec.Attempt,
		Status:     string(rec.Status),
		StartedAt:  rec.StartedAt.UTC(),
		FinishedAt: &finished,
	}
	if rec.Err != nil {
		record.ErrorMessage = rec.Err.Error()
	}
	record.Result, _ = json.Marshal(map[string]any{
		"duration_ms": rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
	})
	if _, _, err := r.steps.InsertAttempt(ctx, record); err != nil {
		r.logger.Warn("record step attempt failed", "run_id", rec.RunID, "step", rec.StepID, "attempt", rec.Attempt, "error", err)
	}
}

var _ workflow.AttemptRecorder = (*Recorder)(nil)

// Repos is the persistence a run reads and writes.
type Repos struct {
	Ideas      repo.IdeaRepository
	Novelty    repo.NoveltyRepository
	Quota      repo.QuotaRepository
	Promotions repo.PromotionRepository
	Runs       repo.RunRepository
	Rejections repo.RejectionRepository
	Steps      repo.StepExecutionRepository
	Packets    PacketStore
	Audit      AuditSink
}

func (r Repos) Validate() error {
	var missing []string
	for name, ok := range map[string]bool{
		"ideas":      r.Ideas != nil,
		"novelty":    r.Novelty != nil,
		"quota":      r.Quota != nil,
		"promotions": r.Promotions != nil,
		"runs":       r.Runs != nil,
		"rejections": r.Rejections != nil,
		"steps":      r.Steps != nil,
		"packets":    r.Packets != nil,
		"audit":      r.Audit != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("repositories missing: %v", missing)
	}
	return nil
}
