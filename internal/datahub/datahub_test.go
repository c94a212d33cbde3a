package datahub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	name string
	mu   sync.Mutex
	n    int
	fn   func(call int, method string, params map[string]string) (json.RawMessage, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	f.mu.Lock()
	f.n++
	call := f.n
	f.mu.Unlock()
	return f.fn(call, method, params)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func ok(body string) func(int, string, map[string]string) (json.RawMessage, error) {
	return func(int, string, map[string]string) (json.RawMessage, error) {
		return json.RawMessage(body), nil
	}
}

func failing(int, string, map[string]string) (json.RawMessage, error) {
	return nil, errors.New("503 service unavailable")
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.AttemptTimeout = time.Second
	return cfg
}

func newTestHub(t *testing.T, cfg Config, providers ...Provider) (*Hub, *clock) {
	t.Helper()
	h, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, providers...)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	c := &clock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	h.now = c.Now
	return h, c
}

func TestCacheKey_IgnoresParamOrder(t *testing.T) {
	a := CacheKey("fmp", "profile", map[string]string{"symbol": "ACME", "period": "ttm"})
	b := CacheKey("fmp", "profile", map[string]string{"period": "ttm", "symbol": "ACME"})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
	if a == CacheKey("polygon", "profile", map[string]string{"symbol": "ACME", "period": "ttm"}) {
		t.Fatalf("source must be part of the key")
	}
}

func TestCache_LazyEviction(t *testing.T) {
	c := NewCache()
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c.Set("k", "fmp", json.RawMessage(`{}`), time.Minute, now)
	c.Set("nocache", "fmp", json.RawMessage(`{}`), 0, now)

	if _, ok := c.Get("k", now.Add(59*time.Second)); !ok {
		t.Fatalf("expected hit before expiry")
	}
	if _, ok := c.Get("k", now.Add(time.Minute)); ok {
		t.Fatalf("expected miss at expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestFetch_CacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{name: SourceFMP, fn: ok(`{"name":"Acme"}`)}
	h, c := newTestHub(t, testConfig(), p)
	ctx := context.Background()

	first := h.CompanyProfile(ctx, "acme")
	if !first.Success || first.Cached {
		t.Fatalf("first call=%+v", first)
	}
	second := h.CompanyProfile(ctx, "ACME")
	if !second.Success || !second.Cached {
		t.Fatalf("second call should be cached: %+v", second)
	}
	if p.calls() != 1 {
		t.Fatalf("provider calls=%d, want 1", p.calls())
	}

	c.Advance(25 * time.Hour)
	third := h.CompanyProfile(ctx, "ACME")
	if third.Cached || p.calls() != 2 {
		t.Fatalf("expired entry should refetch once: cached=%v calls=%d", third.Cached, p.calls())
	}
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{name: SourceFMP, fn: func(call int, _ string, _ map[string]string) (json.RawMessage, error) {
		if call < 3 {
			return nil, errors.New("timeout")
		}
		return json.RawMessage(`[]`), nil
	}}
	h, _ := newTestHub(t, testConfig(), p)

	res := h.KeyMetrics(context.Background(), "ACME")
	if !res.Success || res.Attempts != 3 {
		t.Fatalf("result=%+v, want success after 3 attempts", res)
	}
	st, _ := h.breakers.Status(SourceFMP)
	if st.ConsecutiveFailures != 0 || st.State != BreakerClosed {
		t.Fatalf("status=%+v, want closed and reset", st)
	}
}

func TestFetch_PermanentErrorIsNotRetried(t *testing.T) {
	p := &fakeProvider{name: SourceFMP, fn: func(int, string, map[string]string) (json.RawMessage, error) {
		return nil, Permanent(errors.New("404 unknown symbol"))
	}}
	h, _ := newTestHub(t, testConfig(), p)

	res := h.Ratios(context.Background(), "ZZZZ")
	if res.Success || p.calls() != 1 {
		t.Fatalf("result=%+v calls=%d, want single failed attempt", res, p.calls())
	}
	st, _ := h.breakers.Status(SourceFMP)
	if st.ConsecutiveFailures != 0 {
		t.Fatalf("permanent errors must not count against the source")
	}
}

func TestFetch_BreakerOpensAfterThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 5
	p := &fakeProvider{name: SourcePolygon, fn: failing}
	h, _ := newTestHub(t, cfg, p)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if res := h.News(ctx, "ACME", i+1); res.Success {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}
	res := h.News(ctx, "ACME", 99)
	if !errors.Is(res.Err, ErrCircuitOpen) {
		t.Fatalf("6th call err=%v, want ErrCircuitOpen", res.Err)
	}
	if res.Latency != 0 {
		t.Fatalf("short-circuit latency=%v, want 0", res.Latency)
	}
	if p.calls() != 5 {
		t.Fatalf("provider calls=%d, want 5", p.calls())
	}
	st, _ := h.breakers.Status(SourcePolygon)
	if st.Available {
		t.Fatalf("source should be unavailable")
	}
}

func TestFetch_BreakerHalfOpenTrial(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 1
	cfg.BreakerCooldown = time.Minute
	healthy := false
	var mu sync.Mutex
	p := &fakeProvider{name: SourceFRED, fn: func(int, string, map[string]string) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		if healthy {
			return json.RawMessage(`{}`), nil
		}
		return nil, errors.New("500")
	}}
	h, c := newTestHub(t, cfg, p)
	ctx := context.Background()

	_ = h.MacroSeries(ctx, "A")
	if res := h.MacroSeries(ctx, "B"); !errors.Is(res.Err, ErrCircuitOpen) {
		t.Fatalf("expected open breaker, err=%v", res.Err)
	}

	c.Advance(time.Minute)
	if res := h.MacroSeries(ctx, "C"); res.Success || errors.Is(res.Err, ErrCircuitOpen) {
		t.Fatalf("trial call should reach provider and fail: %+v", res)
	}
	if res := h.MacroSeries(ctx, "D"); !errors.Is(res.Err, ErrCircuitOpen) {
		t.Fatalf("failed trial should reopen breaker, err=%v", res.Err)
	}

	mu.Lock()
	healthy = true
	mu.Unlock()
	c.Advance(time.Minute)
	if res := h.MacroSeries(ctx, "E"); !res.Success {
		t.Fatalf("trial after recovery should succeed: %+v", res)
	}
	st, _ := h.breakers.Status(SourceFRED)
	if st.State != BreakerClosed || !st.Available {
		t.Fatalf("status=%+v, want closed", st)
	}
}

func TestBreakers_ZeroCooldownNeedsExplicitReset(t *testing.T) {
	b := NewBreakers(1, 0, "sec")
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	b.RecordFailure("sec", now)
	if b.Allow("sec", now.Add(24*time.Hour)) {
		t.Fatalf("breaker without cooldown must stay open")
	}
	b.Reset("sec")
	if !b.Allow("sec", now) {
		t.Fatalf("reset breaker should allow calls")
	}
}

func TestBreakers_LatencyMovingAverage(t *testing.T) {
	b := NewBreakers(3, time.Minute, "fmp")
	now := time.Now()
	b.RecordSuccess("fmp", 100*time.Millisecond, now)
	b.RecordSuccess("fmp", 200*time.Millisecond, now)
	st, _ := b.Status("fmp")
	want := time.Duration(float64(20*time.Millisecond)*0.8 + float64(200*time.Millisecond)*0.2)
	if st.AvgLatency != want {
		t.Fatalf("avg latency=%v, want %v", st.AvgLatency, want)
	}
}

func TestFetch_AttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.AttemptTimeout = 20 * time.Millisecond
	p := &fakeProvider{name: SourceReddit, fn: func(int, string, map[string]string) (json.RawMessage, error) {
		time.Sleep(100 * time.Millisecond)
		return json.RawMessage(`{}`), nil
	}}
	h, _ := newTestHub(t, cfg, p)
	res := h.SocialMentions(context.Background(), "ACME")
	if !errors.Is(res.Err, ErrAttemptTimeout) {
		t.Fatalf("err=%v, want ErrAttemptTimeout", res.Err)
	}
	time.Sleep(150 * time.Millisecond)
}

func TestFetch_CallerCancellationIsNotChargedToSource(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 2
	p := &fakeProvider{name: SourceFMP, fn: func(int, string, map[string]string) (json.RawMessage, error) {
		time.Sleep(20 * time.Millisecond)
		return json.RawMessage(`{}`), nil
	}}
	h, _ := newTestHub(t, cfg, p)

	for _, ticker := range []string{"AAA", "BBB"} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
		res := h.CompanyProfile(ctx, ticker)
		cancel()
		if res.Success || !errors.Is(res.Err, context.DeadlineExceeded) {
			t.Fatalf("%s: success=%v err=%v, want caller deadline", ticker, res.Success, res.Err)
		}
	}

	res := h.CompanyProfile(context.Background(), "CCC")
	if !res.Success {
		t.Fatalf("healthy caller failed: %v", res.Err)
	}
	deadline := time.Now().Add(time.Second)
	for h.Cache().Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := h.breakers.Status(SourceFMP)
	if st.State != BreakerClosed || st.ConsecutiveFailures != 0 {
		t.Fatalf("state=%s failures=%d, want closed with no failures", st.State, st.ConsecutiveFailures)
	}
	if p.calls() != 3 {
		t.Fatalf("provider calls=%d, want 3", p.calls())
	}
}

func TestFetch_CancelledWaiterDoesNotFailSharedCall(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: SourceFMP, fn: func(int, string, map[string]string) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`{"ok":true}`), nil
	}}
	h, _ := newTestHub(t, testConfig(), p)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan Result, 1)
	go func() { first <- h.CompanyProfile(ctx, "ACME") }()
	time.Sleep(10 * time.Millisecond)

	second := make(chan Result, 1)
	go func() { second <- h.CompanyProfile(context.Background(), "ACME") }()
	time.Sleep(10 * time.Millisecond)

	cancel()
	if res := <-first; !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("first caller err=%v, want context.Canceled", res.Err)
	}
	close(release)
	if res := <-second; !res.Success {
		t.Fatalf("waiter failed with the first caller: %v", res.Err)
	}
	if p.calls() != 1 {
		t.Fatalf("provider calls=%d, want 1", p.calls())
	}
}

func TestFetch_UnknownSource(t *testing.T) {
	h, _ := newTestHub(t, testConfig())
	if res := h.Filings(context.Background(), "ACME"); !errors.Is(res.Err, ErrUnknownSource) {
		t.Fatalf("err=%v, want ErrUnknownSource", res.Err)
	}
}

func TestFetch_ConcurrentIdenticalCallsShareOneRoundTrip(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{name: SourceFMP, fn: func(int, string, map[string]string) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`{}`), nil
	}}
	h, _ := newTestHub(t, testConfig(), p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := h.CompanyProfile(context.Background(), "ACME"); !res.Success {
				t.Errorf("fetch failed: %v", res.Err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if p.calls() != 1 {
		t.Fatalf("provider calls=%d, want 1", p.calls())
	}
}

func TestFetchBundle_PartialSuccessAndFallback(t *testing.T) {
	fmp := &fakeProvider{name: SourceFMP, fn: ok(`{"ok":true}`)}
	polygon := &fakeProvider{name: SourcePolygon, fn: failing}
	cfg := testConfig()
	cfg.MaxRetries = 0
	h, _ := newTestHub(t, cfg, fmp, polygon)

	b := h.FetchBundle(context.Background(), "acme", StageEnrichment)
	if b.Ticker != "ACME" {
		t.Fatalf("ticker=%q", b.Ticker)
	}
	if diff := cmp.Diff([]string{MethodKeyMetrics, MethodProfile, MethodQuote, MethodRatios}, b.Succeeded); diff != "" {
		t.Fatalf("succeeded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{MethodNews}, b.Failed); diff != "" {
		t.Fatalf("failed mismatch (-want +got):\n%s", diff)
	}
	if b.Results[MethodQuote].Source != SourceFMP {
		t.Fatalf("quote source=%q, want fmp fallback", b.Results[MethodQuote].Source)
	}
	if got := b.Coverage().Ratio(); got != 0.8 {
		t.Fatalf("coverage=%v, want 0.8", got)
	}
}

func TestFetchBundle_ResearchStageAddsSources(t *testing.T) {
	all := []Provider{
		&fakeProvider{name: SourceFMP, fn: ok(`{}`)},
		&fakeProvider{name: SourcePolygon, fn: ok(`{}`)},
		&fakeProvider{name: SourceSEC, fn: ok(`{}`)},
		&fakeProvider{name: SourceReddit, fn: ok(`{}`)},
		&fakeProvider{name: SourceFRED, fn: ok(`{}`)},
	}
	cfg := testConfig()
	cfg.MacroSeries = []string{"DGS10"}
	h, _ := newTestHub(t, cfg, all...)
	b := h.FetchBundle(context.Background(), "ACME", StageResearch)
	if len(b.Failed) != 0 || len(b.Succeeded) != 8 {
		t.Fatalf("succeeded=%v failed=%v", b.Succeeded, b.Failed)
	}
	if _, ok := b.Data("macro_dgs10"); !ok {
		t.Fatalf("expected macro_dgs10 in bundle")
	}
}

func TestComplete_IsNeverCached(t *testing.T) {
	p := &fakeProvider{name: SourceReasoner, fn: ok(`"answer"`)}
	h, _ := newTestHub(t, testConfig(), p)
	req := CompletionRequest{Prompt: "thesis?", JSON: true}
	_ = h.Complete(context.Background(), req)
	_ = h.Complete(context.Background(), req)
	if p.calls() != 2 {
		t.Fatalf("calls=%d, want 2", p.calls())
	}
}

func TestNew_RejectsDuplicateProviders(t *testing.T) {
	_, err := New(nil, testConfig(), &fakeProvider{name: "x", fn: failing}, &fakeProvider{name: "x", fn: failing})
	if err == nil {
		t.Fatalf("expected duplicate provider error")
	}
}
