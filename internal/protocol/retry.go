package protocol

import (
	"sync"
	"time"
)

// RetryCache counts resend requests per message id so a peer cannot make a
// tenant resend the same message forever.
type RetryCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	entries map[string]*retryEntry
	now     func() time.Time
}

type retryEntry struct {
	count int
	seen  time.Time
}

func NewRetryCache(max int, ttl time.Duration) *RetryCache {
	if max <= 0 {
		max = 10
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RetryCache{max: max, ttl: ttl, entries: make(map[string]*retryEntry), now: time.Now}
}

// Allow records one retry of id and reports whether it is still under the cap.
func (c *RetryCache) Allow(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &retryEntry{}
		c.entries[id] = e
	}
	e.seen = c.now()
	if e.count >= c.max {
		return false
	}
	e.count++
	return true
}

// Sweep drops entries idle longer than the ttl.
func (c *RetryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for id, e := range c.entries {
		if e.seen.Before(cutoff) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *RetryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
