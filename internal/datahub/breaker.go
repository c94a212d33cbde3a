package datahub

import (
	"sort"
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const latencyWeight = 0.2

// SourceStatus is the health record of one provider.
type SourceStatus struct {
	Source              string        `json:"source"`
	State               BreakerState  `json:"state"`
	Available           bool          `json:"available"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccessAt       *time.Time    `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time    `json:"last_failure_at,omitempty"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
	AvgLatency          time.Duration `json:"avg_latency"`
}

type breaker struct {
	status   SourceStatus
	trialOut bool
}

// Breakers tracks a circuit breaker per source. An open breaker admits a
// single trial call once the cooldown has elapsed; a zero cooldown keeps it
// open until Reset.
type Breakers struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	sources   map[string]*breaker
}

func NewBreakers(threshold int, cooldown time.Duration, sources ...string) *Breakers {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breakers{threshold: threshold, cooldown: cooldown, sources: map[string]*breaker{}}
	for _, s := range sources {
		b.getLocked(s)
	}
	return b
}

func (b *Breakers) getLocked(source string) *breaker {
	br, ok := b.sources[source]
	if !ok {
		br = &breaker{status: SourceStatus{Source: source, State: BreakerClosed, Available: true}}
		b.sources[source] = br
	}
	return br
}

func (b *Breakers) Allow(source string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	br := b.getLocked(source)
	switch br.status.State {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.cooldown <= 0 || br.status.OpenedAt == nil || now.Before(br.status.OpenedAt.Add(b.cooldown)) {
			return false
		}
		br.status.State = BreakerHalfOpen
		br.trialOut = true
		return true
	case BreakerHalfOpen:
		if br.trialOut {
			return false
		}
		br.trialOut = true
		return true
	}
	return false
}

func (b *Breakers) RecordSuccess(source string, latency time.Duration, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br := b.getLocked(source)
	b.closeLocked(br)
	t := now
	br.status.LastSuccessAt = &t
	br.status.AvgLatency = time.Duration(float64(br.status.AvgLatency)*(1-latencyWeight) + float64(latency)*latencyWeight)
}

// RecordHealthy closes the breaker without touching latency, for calls that
// reached the source but were rejected for request-specific reasons.
func (b *Breakers) RecordHealthy(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked(b.getLocked(source))
}

func (b *Breakers) RecordFailure(source string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br := b.getLocked(source)
	br.status.ConsecutiveFailures++
	t := now
	br.status.LastFailureAt = &t
	if br.status.State == BreakerHalfOpen || br.status.ConsecutiveFailures >= b.threshold {
		br.status.State = BreakerOpen
		br.status.Available = false
		br.status.OpenedAt = &t
		br.trialOut = false
	}
}

func (b *Breakers) Reset(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked(b.getLocked(source))
}

func (b *Breakers) closeLocked(br *breaker) {
	br.status.State = BreakerClosed
	br.status.Available = true
	br.status.ConsecutiveFailures = 0
	br.status.OpenedAt = nil
	br.trialOut = false
}

func (b *Breakers) Status(source string) (SourceStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.sources[source]
	if !ok {
		return SourceStatus{}, false
	}
	return br.status, true
}

func (b *Breakers) Snapshot() []SourceStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SourceStatus, 0, len(b.sources))
	for _, br := range b.sources {
		out = append(out, br.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
