package dispatch

import (
	"sync"
	"time"
)

// Guard remembers recently seen keys so redelivered messages are processed once.
type Guard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Guard{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

// Seen reports whether key was recorded within the ttl, and records it if not.
func (g *Guard) Seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if at, ok := g.seen[key]; ok && now.Sub(at) < g.ttl {
		return true
	}
	g.seen[key] = now
	return false
}

// Sweep forgets expired keys.
func (g *Guard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	removed := 0
	for k, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, k)
			removed++
		}
	}
	return removed
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
