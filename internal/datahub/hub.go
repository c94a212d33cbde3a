// Package datahub fronts every external data source with a TTL cache,
// per-source circuit breakers, bounded retries and attempt timeouts.
package datahub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrCircuitOpen    = errors.New("circuit breaker open")
	ErrUnknownSource  = errors.New("unknown source")
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// Provider is an external data source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error)
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks an error that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Result is the outcome of one hub call. Failures are values, never panics.
type Result struct {
	Source   string
	Method   string
	Success  bool
	Data     json.RawMessage
	Err      error
	Latency  time.Duration
	Attempts int
	Cached   bool
}

func (r Result) LatencyMs() int64 { return r.Latency.Milliseconds() }

func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type Hub struct {
	logger    *slog.Logger
	cfg       Config
	providers map[string]Provider
	cache     *Cache
	breakers  *Breakers
	flight    singleflight.Group
	now       func() time.Time
}

func New(logger *slog.Logger, cfg Config, providers ...Provider) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hub config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:    logger,
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
		cache:     NewCache(),
		now:       time.Now,
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := p.Name()
		if _, dup := h.providers[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		h.providers[name] = p
		names = append(names, name)
	}
	h.breakers = NewBreakers(cfg.FailureThreshold, cfg.BreakerCooldown, names...)
	return h, nil
}

func (h *Hub) Sources() []string {
	out := make([]string, 0, len(h.providers))
	for name := range h.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Statuses() []SourceStatus { return h.breakers.Snapshot() }

func (h *Hub) ResetSource(source string) { h.breakers.Reset(source) }

func (h *Hub) Cache() *Cache { return h.cache }

// Fetch serves from cache when fresh; otherwise it calls the provider with
// retries, unless the source's breaker is open. Identical concurrent calls
// share one provider round trip.
//
// The shared round trip is detached from the caller's cancellation and is
// bounded by the attempt timeouts alone, so a caller that gives up neither
// fails the other waiters nor counts against the source.
func (h *Hub) Fetch(ctx context.Context, source, method string, params map[string]string) Result {
	key := CacheKey(source, method, params)
	if e, ok := h.cache.Get(key, h.now()); ok {
		return Result{Source: source, Method: method, Success: true, Data: e.Payload, Cached: true}
	}
	p, ok := h.providers[source]
	if !ok {
		return Result{Source: source, Method: method, Err: fmt.Errorf("%w: %s", ErrUnknownSource, source)}
	}
	shared := context.WithoutCancel(ctx)
	ch := h.flight.DoChan(key, func() (any, error) {
		return h.fetchUncached(shared, p, key, method, params), nil
	})
	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		return Result{Source: source, Method: method, Err: ctx.Err()}
	}
}

// FetchFirst tries sources in order and returns the first success, or the
// last failure when all fail.
func (h *Hub) FetchFirst(ctx context.Context, method string, params map[string]string, sources ...string) Result {
	var last Result
	for _, source := range sources {
		last = h.Fetch(ctx, source, method, params)
		if last.Success {
			return last
		}
		h.logger.Debug("source failed, trying fallback", "source", source, "method", method, "error", last.Error())
	}
	if len(sources) == 0 {
		last = Result{Method: method, Err: errors.New("no sources given")}
	}
	return last
}

func (h *Hub) fetchUncached(ctx context.Context, p Provider, key, method string, params map[string]string) Result {
	source := p.Name()
	res := Result{Source: source, Method: method}
	if !h.breakers.Allow(source, h.now()) {
		res.Err = fmt.Errorf("%w: %s", ErrCircuitOpen, source)
		return res
	}

	start := h.now()
	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, h.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				lastErr = err
				break
			}
		}
		res.Attempts++
		attemptStart := h.now()
		data, err := h.attempt(ctx, p, method, params)
		if err == nil {
			now := h.now()
			h.breakers.RecordSuccess(source, now.Sub(attemptStart), now)
			h.cache.Set(key, source, data, h.cfg.TTL(method), now)
			res.Success = true
			res.Data = data
			res.Latency = now.Sub(start)
			return res
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			break
		}
	}

	res.Latency = h.now().Sub(start)
	res.Err = lastErr
	if IsPermanent(lastErr) {
		h.breakers.RecordHealthy(source)
	} else {
		h.breakers.RecordFailure(source, h.now())
	}
	h.logger.Warn("source call failed", "source", source, "method", method, "attempts", res.Attempts, "error", lastErr)
	return res
}

func (h *Hub) attempt(ctx context.Context, p Provider, method string, params map[string]string) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, h.cfg.AttemptTimeout)
	defer cancel()

	type outcome struct {
		data json.RawMessage
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- outcome{err: fmt.Errorf("provider panic: %v", v)}
			}
		}()
		data, err := p.Fetch(attemptCtx, method, params)
		ch <- outcome{data: data, err: err}
	}()

	select {
	case o := <-ch:
		return o.data, o.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", ErrAttemptTimeout, h.cfg.AttemptTimeout)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
