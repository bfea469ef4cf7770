package session

import (
	"sync"
	"time"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
)

// runtime is the in-memory handle of a loaded tenant. The client is nil
// while the tenant is paused or between reconnect attempts.
type runtime struct {
	id    string
	phone string

	// ops serializes opening and closing clients so at most one is live
	ops sync.Mutex

	mu       sync.Mutex
	client   protocol.Client
	gen      uint64
	status   domain.SessionStatus
	userInfo *domain.UserInfo
	retry    *protocol.RetryCache
	pairing  string
	synced   bool
	attempts int
	removed  bool

	// timerDone releases the registry's hold on the pending reconnect timer
	timer     *time.Timer
	timerDone func()
}

func newRuntime(id, phone string, status domain.SessionStatus) *runtime {
	return &runtime{id: id, phone: phone, status: status}
}

// retryHolder is implemented by clients that track message resend requests.
type retryHolder interface {
	Retries() *protocol.RetryCache
}

// clientFor returns the live client if gen is still the current generation.
func (rt *runtime) clientFor(gen uint64) protocol.Client {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.gen != gen || rt.removed {
		return nil
	}
	return rt.client
}

func (rt *runtime) current() protocol.Client {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.client
}

// nextGen invalidates the events of every earlier client.
func (rt *runtime) nextGen() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.gen++
	return rt.gen
}

func (rt *runtime) attach(c protocol.Client, gen uint64) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.gen != gen || rt.removed {
		return false
	}
	rt.client = c
	if h, ok := c.(retryHolder); ok {
		rt.retry = h.Retries()
	}
	return true
}

// detach takes the client out of the runtime and stops a pending reconnect.
func (rt *runtime) detach() protocol.Client {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	c := rt.client
	rt.client = nil
	rt.gen++
	rt.stopTimerLocked()
	return c
}

func (rt *runtime) stopTimerLocked() {
	if rt.timer == nil {
		return
	}
	if rt.timer.Stop() && rt.timerDone != nil {
		rt.timerDone()
	}
	rt.timer = nil
	rt.timerDone = nil
}

func (rt *runtime) getStatus() domain.SessionStatus {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.status
}

func (rt *runtime) swapStatus(s domain.SessionStatus) domain.SessionStatus {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.status
	rt.status = s
	return prev
}

func (rt *runtime) connected() bool {
	c := rt.current()
	return c != nil && c.IsConnected()
}

// firstOpen flips the one-shot sync flag and reports whether this call did.
func (rt *runtime) firstOpen() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.synced {
		return false
	}
	rt.synced = true
	return true
}

func (rt *runtime) overlay(s *domain.Session) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s.Status = rt.status
	if rt.userInfo != nil {
		s.UserInfo = rt.userInfo
	}
}
