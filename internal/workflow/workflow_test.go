package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type runCtx struct {
	mu    sync.Mutex
	trace []string
}

func (rc *runCtx) add(s string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.trace = append(rc.trace, s)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tracing(id string) func(context.Context, *runCtx) error {
	return func(ctx context.Context, rc *runCtx) error {
		rc.add(id)
		return nil
	}
}

type captureRecorder struct {
	mu      sync.Mutex
	records []AttemptRecord
}

func (c *captureRecorder) RecordAttempt(_ context.Context, rec AttemptRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func TestPlan_OrdersByDependenciesThenRegistration(t *testing.T) {
	steps := []Step[*runCtx]{
		{ID: "notify", DependsOn: []string{"promote"}, Run: tracing("notify")},
		{ID: "universe", Run: tracing("universe")},
		{ID: "promote", DependsOn: []string{"rank"}, Run: tracing("promote")},
		{ID: "rank", DependsOn: []string{"universe"}, Run: tracing("rank")},
		{ID: "housekeeping", Run: tracing("housekeeping")},
	}
	ordered, err := Plan(steps)
	if err != nil {
		t.Fatalf("Plan() err=%v", err)
	}
	got := make([]string, 0, len(ordered))
	for _, s := range ordered {
		got = append(got, s.ID)
	}
	want := []string{"universe", "rank", "promote", "notify", "housekeeping"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_RejectsCycleAndUnknownDependency(t *testing.T) {
	cyclic := []Step[*runCtx]{
		{ID: "a", DependsOn: []string{"b"}, Run: tracing("a")},
		{ID: "b", DependsOn: []string{"a"}, Run: tracing("b")},
	}
	_, err := Plan(cyclic)
	var verr *ValidationError
	if !errors.As(err, &verr) || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("cycle err=%v, want ValidationError mentioning cycle", err)
	}

	unknown := []Step[*runCtx]{{ID: "a", DependsOn: []string{"ghost"}, Run: tracing("a")}}
	if _, err := Plan(unknown); err == nil || !strings.Contains(err.Error(), "unknown dependency") {
		t.Fatalf("unknown dependency err=%v", err)
	}
}

func TestRun_InvalidPlanRunsNothing(t *testing.T) {
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(
		Step[*runCtx]{ID: "a", DependsOn: []string{"b"}, Run: tracing("a")},
		Step[*runCtx]{ID: "b", DependsOn: []string{"a"}, Run: tracing("b")},
	)
	rc := &runCtx{}
	if _, err := r.Run(context.Background(), "run-1", rc); err == nil {
		t.Fatalf("expected plan error")
	}
	if len(rc.trace) != 0 {
		t.Fatalf("steps ran despite invalid plan: %v", rc.trace)
	}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	r := NewRunner[*runCtx](quietLogger(), nil)
	if err := r.Register(Step[*runCtx]{ID: "a", Run: tracing("a")}); err != nil {
		t.Fatalf("Register() err=%v", err)
	}
	if err := r.Register(Step[*runCtx]{ID: "a", Run: tracing("a")}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	rec := &captureRecorder{}
	r := NewRunner[*runCtx](quietLogger(), rec)
	_ = r.Register(Step[*runCtx]{
		ID:         "fetch",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Run: func(ctx context.Context, rc *runCtx) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})

	res, err := r.Run(context.Background(), "run-1", &runCtx{})
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("status=%s, want completed", res.Status)
	}
	if got := res.Steps["fetch"].Attempts; got != 3 {
		t.Fatalf("attempts=%d, want 3", got)
	}
	if len(rec.records) != 3 || rec.records[2].Status != StepCompleted {
		t.Fatalf("recorded attempts=%+v", rec.records)
	}
}

func TestRun_FailureSkipsRemainingSteps(t *testing.T) {
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(
		Step[*runCtx]{ID: "universe", Run: tracing("universe")},
		Step[*runCtx]{ID: "gate", DependsOn: []string{"universe"}, MaxRetries: 1, Run: func(context.Context, *runCtx) error {
			return errors.New("gate store unavailable")
		}},
		Step[*runCtx]{ID: "rank", DependsOn: []string{"gate"}, Run: tracing("rank")},
		Step[*runCtx]{ID: "audit", Run: tracing("audit")},
	)
	rc := &runCtx{}
	res, err := r.Run(context.Background(), "run-1", rc)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.Succeeded() {
		t.Fatalf("expected failed run")
	}
	failure, ok := res.FirstFailure()
	if !ok || failure.StepID != "gate" || failure.Attempts != 2 {
		t.Fatalf("first failure=%+v ok=%v", failure, ok)
	}
	if diff := cmp.Diff([]string{"rank", "audit"}, res.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"universe"}, rc.trace); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_TimeoutFailsStep(t *testing.T) {
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(Step[*runCtx]{
		ID:      "slow",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, rc *runCtx) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	res, _ := r.Run(context.Background(), "run-1", &runCtx{})
	if res.Succeeded() {
		t.Fatalf("expected timeout failure")
	}
	if !strings.Contains(res.Steps["slow"].Error, ErrStepTimeout.Error()) {
		t.Fatalf("error=%q, want timeout", res.Steps["slow"].Error)
	}
}

func TestRun_TimedOutStepReturnsBeforeRetry(t *testing.T) {
	var active, maxActive atomic.Int32
	rc := &runCtx{}
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(Step[*runCtx]{
		ID:         "enrich",
		Timeout:    20 * time.Millisecond,
		MaxRetries: 1,
		Run: func(ctx context.Context, rc *runCtx) error {
			n := active.Add(1)
			defer active.Add(-1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			<-ctx.Done()
			// in-flight calls finishing after cancellation
			time.Sleep(30 * time.Millisecond)
			rc.add("enrich")
			return ctx.Err()
		},
	})
	res, _ := r.Run(context.Background(), "run-1", rc)
	if res.Succeeded() || res.Abandoned {
		t.Fatalf("status=%s abandoned=%v, want plain failure", res.Status, res.Abandoned)
	}
	if got := res.Steps["enrich"].Attempts; got != 2 {
		t.Fatalf("attempts=%d, want 2", got)
	}
	if got := maxActive.Load(); got != 1 {
		t.Fatalf("concurrent attempts=%d, want 1", got)
	}

	rc.mu.Lock()
	atReturn := len(rc.trace)
	rc.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	rc.mu.Lock()
	later := len(rc.trace)
	rc.mu.Unlock()
	if atReturn != 2 || later != atReturn {
		t.Fatalf("writes at return=%d later=%d, want 2 and no writes after Run", atReturn, later)
	}
}

func TestRun_AbandonsStepThatIgnoresCancellation(t *testing.T) {
	release := make(chan struct{})
	exited := make(chan struct{})
	r := NewRunner[*runCtx](quietLogger(), nil)
	r.SetStopGrace(10 * time.Millisecond)
	_ = r.Register(
		Step[*runCtx]{
			ID:         "stuck",
			Timeout:    10 * time.Millisecond,
			MaxRetries: 3,
			Run: func(context.Context, *runCtx) error {
				defer close(exited)
				<-release
				return nil
			},
		},
		Step[*runCtx]{ID: "after", DependsOn: []string{"stuck"}, Run: tracing("after")},
	)
	rc := &runCtx{}
	res, _ := r.Run(context.Background(), "run-1", rc)
	close(release)
	<-exited

	if !res.Abandoned || res.Succeeded() {
		t.Fatalf("abandoned=%v status=%s, want abandoned failure", res.Abandoned, res.Status)
	}
	if got := res.Steps["stuck"].Attempts; got != 1 {
		t.Fatalf("attempts=%d, want 1 (no retry after abandon)", got)
	}
	if !strings.Contains(res.Steps["stuck"].Error, "abandoned") {
		t.Fatalf("error=%q", res.Steps["stuck"].Error)
	}
	if diff := cmp.Diff([]string{"after"}, res.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
	if len(rc.trace) != 0 {
		t.Fatalf("trace=%v", rc.trace)
	}
}

func TestRun_BestEffortFailureKeepsRunSuccessful(t *testing.T) {
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(
		Step[*runCtx]{ID: "promote", Run: tracing("promote")},
		Step[*runCtx]{ID: "notify", DependsOn: []string{"promote"}, BestEffort: true, Run: func(context.Context, *runCtx) error {
			return errors.New("webhook 502")
		}},
	)
	res, _ := r.Run(context.Background(), "run-1", &runCtx{})
	if !res.Succeeded() {
		t.Fatalf("best-effort failure failed the run: %+v", res)
	}
	if len(res.BestEffortFailures) != 1 || res.BestEffortFailures[0].StepID != "notify" {
		t.Fatalf("best effort failures=%+v", res.BestEffortFailures)
	}
	if res.Steps["notify"].Status != StepFailed {
		t.Fatalf("notify status=%s, want failed", res.Steps["notify"].Status)
	}
}

func TestRun_RecoversPanics(t *testing.T) {
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(Step[*runCtx]{ID: "boom", Run: func(context.Context, *runCtx) error { panic("nil map") }})
	res, _ := r.Run(context.Background(), "run-1", &runCtx{})
	if res.Succeeded() || !strings.Contains(res.Steps["boom"].Error, "panicked") {
		t.Fatalf("panic not converted to failure: %+v", res.Steps["boom"])
	}
}

func TestRun_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := NewRunner[*runCtx](quietLogger(), nil)
	_ = r.Register(Step[*runCtx]{
		ID:         "fetch",
		MaxRetries: 5,
		RetryDelay: time.Hour,
		Run: func(context.Context, *runCtx) error {
			calls++
			cancel()
			return errors.New("down")
		},
	})
	res, _ := r.Run(ctx, "run-1", &runCtx{})
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
	if res.Succeeded() {
		t.Fatalf("expected failure")
	}
}

func TestDelayBefore(t *testing.T) {
	fixed := Step[*runCtx]{RetryDelay: 100 * time.Millisecond, Backoff: BackoffFixed}
	inc := Step[*runCtx]{RetryDelay: 100 * time.Millisecond, Backoff: BackoffIncrementing}
	for retry := 1; retry <= 3; retry++ {
		if got := fixed.delayBefore(retry); got != 100*time.Millisecond {
			t.Fatalf("fixed delay(%d)=%v", retry, got)
		}
		if got := inc.delayBefore(retry); got != time.Duration(retry)*100*time.Millisecond {
			t.Fatalf("incrementing delay(%d)=%v", retry, got)
		}
	}
}
