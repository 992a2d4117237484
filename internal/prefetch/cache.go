// Package prefetch tracks, process-wide, whether the dashboard prefetch
// pipeline has already been kicked off for a user. The cache is advisory
// only: entries expire after a short TTL and any doubt is treated as a
// miss, so staleness can cause at worst a redundant kickoff.
package prefetch

import (
	"sync"
	"time"
)

const defaultTTL = 90 * time.Second

// Cache remembers recent kickoffs keyed by user.
type Cache struct {
	mu      sync.Mutex
	started map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewCache constructs a Cache with the given TTL.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		started: make(map[string]time.Time),
		ttl:     ttl,
		now:     now,
	}
}

// MarkStarted records a kickoff for the user. It reports false when a fresh
// entry already existed, letting callers skip a duplicate kickoff.
func (c *Cache) MarkStarted(userID string) bool {
	if c == nil || userID == "" {
		return true
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if at, ok := c.started[userID]; ok && now.Sub(at) < c.ttl {
		return false
	}
	c.started[userID] = now
	return true
}

// Started reports whether a fresh kickoff is recorded for the user.
// Expired entries count as misses.
func (c *Cache) Started(userID string) bool {
	if c == nil || userID == "" {
		return false
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.started[userID]
	if !ok {
		return false
	}
	if now.Sub(at) >= c.ttl {
		delete(c.started, userID)
		return false
	}
	return true
}

// Forget drops the user's entry.
func (c *Cache) Forget(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.started, userID)
}

// Default is the process-wide cache, initialized empty at process start.
var Default = NewCache(defaultTTL, nil)
