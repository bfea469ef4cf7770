package automation

import (
	"sync"
	"time"
)

// Verdict is the outcome of observing one message.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictWarn
	VerdictPunish
)

type spamEntry struct {
	stamps   []time.Time
	warned   bool
	lastSeen time.Time
}

// SpamTracker keeps a sliding window of message times per tenant and sender.
type SpamTracker struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	expiry    time.Duration
	buckets   map[string]map[string]*spamEntry
	now       func() time.Time
}

func NewSpamTracker(window time.Duration, threshold int, expiry time.Duration) *SpamTracker {
	if window <= 0 {
		window = 3 * time.Second
	}
	if threshold <= 0 {
		threshold = 2
	}
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &SpamTracker{
		window:    window,
		threshold: threshold,
		expiry:    expiry,
		buckets:   make(map[string]map[string]*spamEntry),
		now:       time.Now,
	}
}

// Observe records a message and reports whether to warn or punish the sender.
// A warning clears the window; a punishment clears the whole entry.
func (t *SpamTracker) Observe(sessionID, sender string) Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	bucket, ok := t.buckets[sessionID]
	if !ok {
		bucket = make(map[string]*spamEntry)
		t.buckets[sessionID] = bucket
	}
	e, ok := bucket[sender]
	if !ok {
		e = &spamEntry{}
		bucket[sender] = e
	}
	e.lastSeen = now
	e.stamps = append(e.stamps, now)

	recent := e.stamps[:0]
	for _, ts := range e.stamps {
		if now.Sub(ts) < t.window {
			recent = append(recent, ts)
		}
	}
	e.stamps = recent
	if len(recent) < t.threshold {
		return VerdictNone
	}
	if !e.warned {
		e.warned = true
		e.stamps = nil
		return VerdictWarn
	}
	bucket[sender] = &spamEntry{lastSeen: now}
	return VerdictPunish
}

// Sweep drops entries idle past the expiry and empty tenant buckets.
func (t *SpamTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	removed := 0
	for sid, bucket := range t.buckets {
		for sender, e := range bucket {
			if now.Sub(e.lastSeen) > t.expiry {
				delete(bucket, sender)
				removed++
			}
		}
		if len(bucket) == 0 {
			delete(t.buckets, sid)
		}
	}
	return removed
}

// Forget drops every entry of a tenant.
func (t *SpamTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, sessionID)
}

// Len returns the number of tracked senders across tenants.
func (t *SpamTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

// Buckets returns the number of tenants with tracked senders.
func (t *SpamTracker) Buckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
