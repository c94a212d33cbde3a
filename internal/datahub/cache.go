package datahub

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"
)

// CacheKey is source|method|params with params sorted by key, so equal
// requests map to the same entry regardless of map iteration order.
func CacheKey(source, method string, params map[string]string) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return source + "|" + method + "|" + values.Encode()
}

type Entry struct {
	Source    string
	Payload   json.RawMessage
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Cache is a TTL cache with lazy eviction on read.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewCache() *Cache {
	return &Cache{entries: map[string]Entry{}}
}

func (c *Cache) Get(key string, now time.Time) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if !now.Before(e.ExpiresAt) {
		delete(c.entries, key)
		return Entry{}, false
	}
	return e, true
}

// Set stores payload for ttl. A non-positive ttl disables caching.
func (c *Cache) Set(key, source string, payload json.RawMessage, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{
		Source:    source,
		Payload:   append(json.RawMessage(nil), payload...),
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry of a source and reports how many were removed.
func (c *Cache) Purge(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.Source == source {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Sweep removes expired entries.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
