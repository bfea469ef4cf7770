package session

import (
	"time"

	"github.com/talkincode/wamux/internal/domain"
	"go.uber.org/zap"
)

// backoff returns base·2^(attempt-1) capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// scheduleReconnect arms one delayed reopen of rt. Past the attempt cap the
// tenant is left Disconnected until resumed or restored.
func (r *Registry) scheduleReconnect(rt *runtime) {
	if r.ctx.Err() != nil {
		return
	}
	rt.mu.Lock()
	if rt.removed {
		rt.mu.Unlock()
		return
	}
	rt.attempts++
	attempt := rt.attempts
	rt.stopTimerLocked()
	rt.mu.Unlock()

	if attempt > r.opts.ReconnectAttempts {
		zap.L().Warn("session reconnect attempts exhausted",
			zap.String("namespace", "session"),
			zap.String("session", rt.id),
			zap.Int("attempts", attempt-1),
		)
		rt.ops.Lock()
		if c := rt.detach(); c != nil {
			c.End()
		}
		rt.ops.Unlock()
		r.setStatus(rt, domain.StatusDisconnected)
		return
	}

	r.setStatus(rt, domain.StatusConnecting)
	if r.deps.Observer != nil {
		r.deps.Observer.Reconnecting(rt.id, attempt)
	}
	delay := backoff(r.opts.ReconnectBase, r.opts.ReconnectMax, attempt)
	zap.L().Info("session reconnect scheduled",
		zap.String("namespace", "session"),
		zap.String("session", rt.id),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	r.bg.Add(1)
	timer := time.AfterFunc(delay, func() {
		defer r.bg.Done()
		r.reconnect(rt)
	})
	rt.mu.Lock()
	if rt.removed {
		rt.mu.Unlock()
		if timer.Stop() {
			r.bg.Done()
		}
		return
	}
	rt.stopTimerLocked()
	rt.timer = timer
	rt.timerDone = r.bg.Done
	rt.mu.Unlock()
}

func (r *Registry) reconnect(rt *runtime) {
	rt.mu.Lock()
	rt.timer = nil
	rt.timerDone = nil
	removed := rt.removed
	rt.mu.Unlock()
	if removed || r.ctx.Err() != nil {
		return
	}
	if s := rt.getStatus(); s == domain.StatusPausedUser || s == domain.StatusInactive {
		return
	}
	if err := r.open(r.ctx, rt); err != nil {
		zap.L().Warn("session reconnect failed",
			zap.String("namespace", "session"),
			zap.String("session", rt.id),
			zap.Error(err),
		)
		r.scheduleReconnect(rt)
	}
}

// CheckHealth counts offline tenants. When at least half are offline for
// HealthStrikes checks in a row, tenants still reconnecting are parked in
// PausedNetwork so they stop hammering the server.
func (r *Registry) CheckHealth() (offline, total int) {
	for _, rt := range r.loaded() {
		switch rt.getStatus() {
		case domain.StatusPausedUser, domain.StatusInactive:
			continue
		}
		total++
		if !rt.connected() {
			offline++
		}
	}
	r.mu.Lock()
	if total > 0 && offline*2 >= total {
		r.strikes++
	} else {
		r.strikes = 0
	}
	trip := r.strikes >= r.opts.HealthStrikes
	if trip {
		r.strikes = 0
	}
	r.mu.Unlock()
	if !trip {
		return offline, total
	}
	zap.L().Warn("network looks unhealthy, parking reconnecting sessions",
		zap.String("namespace", "session"),
		zap.Int("offline", offline),
		zap.Int("total", total),
	)
	for _, rt := range r.loaded() {
		if rt.getStatus() != domain.StatusConnecting {
			continue
		}
		rt.ops.Lock()
		if c := rt.detach(); c != nil {
			c.End()
		}
		rt.ops.Unlock()
		r.setStatus(rt, domain.StatusPausedNetwork)
	}
	return offline, total
}
