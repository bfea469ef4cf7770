// Package session owns the lifecycle of every tenant: creation with pairing,
// pause and resume, restore at startup, reconnection and teardown.
package session

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupcache"
	"github.com/talkincode/wamux/internal/phone"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EventBus topics published by the registry.
const (
	TopicStatus  = "session:status"
	TopicPairing = "session:pairing"
	TopicDeleted = "session:deleted"
)

// StatusChange is published on TopicStatus.
type StatusChange struct {
	SessionID string
	From      domain.SessionStatus
	To        domain.SessionStatus
}

// PairingNotice is published on TopicPairing.
type PairingNotice struct {
	SessionID   string
	PhoneNumber string
	Code        string
}

// Dispatcher runs inbound message batches through the command pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, client protocol.Client, ev *protocol.MessagesUpsert)
}

type CallHandler interface {
	Handle(ctx context.Context, sessionID string, client protocol.Client, ev *protocol.CallEvent) int
}

type DeleteHandler interface {
	Handle(ctx context.Context, sessionID string, client protocol.Client, ev *protocol.MessagesDelete) int
}

type Credentials interface {
	Write(ctx context.Context, sessionID, name, value string) error
}

type Identities interface {
	AddOrUpdate(ctx context.Context, sessionID, pn, lid string) error
}

type Groups interface {
	Put(ctx context.Context, sessionID string, md *domain.GroupMetadata) error
	Upsert(ctx context.Context, sessionID string, patch groupcache.Patch) error
	Delete(ctx context.Context, sessionID, groupID string) error
	ApplyParticipants(ctx context.Context, sessionID, groupID string, action domain.ParticipantAction, ids []string) error
}

// Forgetter drops in-memory state a tenant leaves behind when deleted.
type Forgetter interface {
	Forget(sessionID string)
}

// Observer is told about status transitions and reconnect attempts.
type Observer interface {
	StatusChanged(sessionID string, from, to domain.SessionStatus)
	Reconnecting(sessionID string, attempt int)
}

type Options struct {
	PairingDelay       time.Duration
	SyncDelay          time.Duration
	ReconnectBase      time.Duration
	ReconnectMax       time.Duration
	ReconnectAttempts  int
	RestoreConcurrency int
	// HealthStrikes is how many failed health checks in a row park
	// reconnecting tenants
	HealthStrikes int
}

type Deps struct {
	Factory    protocol.Factory
	Sessions   store.SessionRepository
	Tables     *store.Tables
	Messages   store.MessageRepository
	Sudo       store.IdentityListRepository
	Vault      Credentials
	Identities Identities
	Groups     Groups
	Dispatcher Dispatcher
	Calls      CallHandler
	Antidelete DeleteHandler
	Forget     []Forgetter
	Bus        EventBus.BusPublisher
	Observer   Observer
}

// Registry is the process-wide tenant orchestrator.
type Registry struct {
	opts Options
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu       sync.RWMutex
	runtimes map[string]*runtime
	strikes  int

	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options) (*Registry, error) {
	if deps.Factory == nil || deps.Sessions == nil || deps.Tables == nil {
		return nil, errors.New("session: factory, sessions and tables are required")
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = 2 * time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = time.Minute
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 10
	}
	if opts.RestoreConcurrency <= 0 {
		opts.RestoreConcurrency = 16
	}
	if opts.HealthStrikes <= 0 {
		opts.HealthStrikes = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:     opts,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		runtimes: make(map[string]*runtime),
		sleep:    sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Created is the result of a successful Create.
type Created struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	PairingCode string `json:"pairing_code,omitempty"`
}

// Create provisions a tenant and requests a pairing code. Any failure rolls
// back the row, the tenant tables and the runtime entry.
func (r *Registry) Create(ctx context.Context, rawPhone string) (*Created, error) {
	digits, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	id := phone.SessionID(digits)
	if _, err := r.deps.Sessions.Get(ctx, id); err == nil {
		return nil, domain.ErrSessionExists
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	rt := newRuntime(id, digits, domain.StatusPairing)
	r.mu.Lock()
	if _, ok := r.runtimes[id]; ok {
		r.mu.Unlock()
		return nil, domain.ErrSessionExists
	}
	r.runtimes[id] = rt
	r.mu.Unlock()

	rollback := func(cause error) (*Created, error) {
		r.forget(rt)
		if c := rt.detach(); c != nil {
			c.End()
		}
		if err := r.deps.Factory.Purge(r.ctx, id); err != nil {
			r.logError(id, "rollback device keys", err)
		}
		if err := r.deps.Sessions.Delete(r.ctx, id); err != nil {
			r.logError(id, "rollback session row", err)
		}
		if err := r.deps.Tables.Drop(r.ctx, digits); err != nil {
			r.logError(id, "rollback tenant tables", err)
		}
		zap.L().Warn("session create rolled back",
			zap.String("namespace", "session"),
			zap.String("session", id),
			zap.Error(cause),
		)
		return nil, cause
	}

	if err := r.deps.Tables.Provision(ctx, digits); err != nil {
		return rollback(err)
	}
	err = r.deps.Sessions.Create(ctx, &domain.Session{ID: id, PhoneNumber: digits, Status: domain.StatusPairing})
	if errors.Is(err, domain.ErrSessionExists) {
		r.forget(rt)
		return nil, err
	}
	if err != nil {
		return rollback(err)
	}
	r.publish(TopicStatus, StatusChange{SessionID: id, To: domain.StatusPairing})

	if err := r.open(ctx, rt); err != nil {
		return rollback(err)
	}
	res := &Created{ID: id, PhoneNumber: digits}
	client := rt.current()
	if client == nil {
		return rollback(domain.ErrSessionNotConnected)
	}
	if client.IsRegistered() {
		r.setStatus(rt, domain.StatusConnecting)
		return res, nil
	}

	if err := r.sleep(ctx, r.opts.PairingDelay); err != nil {
		return rollback(err)
	}
	code, err := client.RequestPairingCode(ctx, digits)
	if err != nil {
		return rollback(domain.Upstream(err))
	}
	rt.mu.Lock()
	rt.pairing = code
	rt.mu.Unlock()
	res.PairingCode = code
	r.publish(TopicPairing, PairingNotice{SessionID: id, PhoneNumber: digits, Code: code})
	zap.L().Info("session pairing code issued",
		zap.String("namespace", "session"),
		zap.String("session", id),
	)
	return res, nil
}

// Delete logs the tenant out when connected and removes every trace of it.
func (r *Registry) Delete(ctx context.Context, idOrPhone string) error {
	row, rt, err := r.resolve(ctx, idOrPhone)
	if err != nil {
		return err
	}
	id, digits := rt.idAndPhone(row)
	if rt != nil {
		r.forget(rt)
		rt.ops.Lock()
		c := rt.detach()
		rt.ops.Unlock()
		if c != nil {
			if err := c.Logout(ctx); err != nil {
				zap.L().Warn("logout during delete failed",
					zap.String("namespace", "session"),
					zap.String("session", id),
					zap.Error(err),
				)
			}
			c.End()
		}
	}
	for _, f := range r.deps.Forget {
		f.Forget(id)
	}

	var firstErr error
	// no-op after a successful logout
	if err := r.deps.Factory.Purge(ctx, id); err != nil {
		r.logError(id, "purge device keys", err)
		firstErr = err
	}
	if err := r.deps.Sessions.Delete(ctx, id); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.deps.Tables.Drop(ctx, digits); err != nil && firstErr == nil {
		firstErr = err
	}
	r.publish(TopicDeleted, id)
	zap.L().Info("session deleted",
		zap.String("namespace", "session"),
		zap.String("session", id),
	)
	return firstErr
}

// Pause ends the client and keeps the credentials. A paused tenant is never
// reconnected automatically.
func (r *Registry) Pause(ctx context.Context, idOrPhone string) error {
	row, rt, err := r.resolve(ctx, idOrPhone)
	if err != nil {
		return err
	}
	if statusOf(row, rt) == domain.StatusPausedUser {
		return domain.ErrSessionPaused
	}
	if rt == nil {
		rt = r.adopt(row)
	}
	rt.ops.Lock()
	if c := rt.detach(); c != nil {
		c.End()
	}
	rt.ops.Unlock()
	r.setStatus(rt, domain.StatusPausedUser)
	return nil
}

// Resume reopens a tenant without requesting a pairing code.
func (r *Registry) Resume(ctx context.Context, idOrPhone string) error {
	row, rt, err := r.resolve(ctx, idOrPhone)
	if err != nil {
		return err
	}
	if statusOf(row, rt).Live() {
		return domain.ErrSessionActive
	}
	if rt == nil {
		rt = r.adopt(row)
	}
	rt.mu.Lock()
	rt.attempts = 0
	rt.mu.Unlock()
	r.setStatus(rt, domain.StatusConnecting)
	if err := r.open(ctx, rt); err != nil {
		r.setStatus(rt, domain.StatusPausedNetwork)
		return err
	}
	return nil
}

// RestoreReport summarizes a RestoreAll run.
type RestoreReport struct {
	Total    int `json:"total"`
	Restored int `json:"restored"`
	Failed   int `json:"failed"`
}

// RestoreAll reopens every tenant that is neither logged out nor paused by
// the user. Failures mark that tenant Disconnected and never abort the rest.
func (r *Registry) RestoreAll(ctx context.Context) (*RestoreReport, error) {
	rows, err := r.deps.Sessions.ListRestorable(ctx)
	if err != nil {
		return nil, err
	}
	var restored, failed int64
	g := new(errgroup.Group)
	g.SetLimit(r.opts.RestoreConcurrency)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			defer func() {
				if e := recover(); e != nil {
					zap.S().Errorf("restore session %s panic: %v\n%s", row.ID, e, debug.Stack())
					atomic.AddInt64(&failed, 1)
				}
			}()
			rt := r.adopt(row)
			if rt.current() != nil {
				atomic.AddInt64(&restored, 1)
				return nil
			}
			r.setStatus(rt, domain.StatusConnecting)
			if err := r.open(ctx, rt); err != nil {
				zap.L().Warn("restore session failed",
					zap.String("namespace", "session"),
					zap.String("session", row.ID),
					zap.Error(err),
				)
				r.setStatus(rt, domain.StatusDisconnected)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			atomic.AddInt64(&restored, 1)
			return nil
		})
	}
	_ = g.Wait()
	report := &RestoreReport{Total: len(rows), Restored: int(restored), Failed: int(failed)}
	zap.L().Info("sessions restored",
		zap.String("namespace", "session"),
		zap.Int("total", report.Total),
		zap.Int("restored", report.Restored),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// Get returns the durable row with the live status and user info overlaid.
func (r *Registry) Get(ctx context.Context, idOrPhone string) (*domain.Session, error) {
	row, rt, err := r.resolve(ctx, idOrPhone)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &domain.Session{ID: rt.id, PhoneNumber: rt.phone}
	}
	if rt != nil {
		rt.overlay(row)
	}
	return row, nil
}

// List returns the durable rows as stored.
func (r *Registry) List(ctx context.Context) ([]*domain.Session, error) {
	return r.deps.Sessions.List(ctx)
}

// Info is a session row enriched with runtime state.
type Info struct {
	*domain.Session
	Loaded      bool   `json:"loaded"`
	Connected   bool   `json:"connected"`
	PairingCode string `json:"pairing_code,omitempty"`
}

// ListExtended overlays the live state on every durable row.
func (r *Registry) ListExtended(ctx context.Context) ([]*Info, error) {
	rows, err := r.deps.Sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Info, 0, len(rows))
	for _, row := range rows {
		info := &Info{Session: row}
		if rt := r.lookup(row.ID); rt != nil {
			rt.overlay(row)
			info.Loaded = true
			info.Connected = rt.connected()
			rt.mu.Lock()
			info.PairingCode = rt.pairing
			rt.mu.Unlock()
		}
		out = append(out, info)
	}
	return out, nil
}

// StatusCounts counts tenants per live status.
func (r *Registry) StatusCounts(ctx context.Context) (map[domain.SessionStatus]int, error) {
	infos, err := r.ListExtended(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.SessionStatus]int)
	for _, info := range infos {
		out[info.Status]++
	}
	return out, nil
}

// Client returns the live client of a tenant.
func (r *Registry) Client(ctx context.Context, idOrPhone string) (protocol.Client, error) {
	_, rt, err := r.resolve(ctx, idOrPhone)
	if err != nil {
		return nil, err
	}
	if rt == nil || !rt.connected() {
		return nil, domain.ErrSessionNotConnected
	}
	return rt.current(), nil
}

// PairingCode returns the last pairing code issued for a tenant.
func (r *Registry) PairingCode(ctx context.Context, idOrPhone string) (string, error) {
	_, rt, err := r.resolve(ctx, idOrPhone)
	if err != nil {
		return "", err
	}
	if rt == nil {
		return "", nil
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.pairing, nil
}

// SweepRetries trims the message retry caches of every loaded tenant.
func (r *Registry) SweepRetries() int {
	n := 0
	for _, rt := range r.loaded() {
		rt.mu.Lock()
		rc := rt.retry
		rt.mu.Unlock()
		if rc != nil {
			n += rc.Sweep()
		}
	}
	return n
}

// Close ends every client without logging out and waits for background work.
func (r *Registry) Close() {
	r.cancel()
	for _, rt := range r.loaded() {
		rt.ops.Lock()
		if c := rt.detach(); c != nil {
			c.End()
		}
		rt.ops.Unlock()
	}
	r.bg.Wait()
}

// open replaces any client of rt with a freshly connected one.
func (r *Registry) open(ctx context.Context, rt *runtime) error {
	rt.ops.Lock()
	defer rt.ops.Unlock()
	if c := rt.detach(); c != nil {
		c.End()
	}
	gen := rt.nextGen()
	t := &tenant{r: r, rt: rt, gen: gen}
	client, err := r.deps.Factory.Open(ctx, rt.id, t.sink)
	if err != nil {
		return domain.Upstream(err)
	}
	if !rt.attach(client, gen) {
		client.End()
		return domain.ErrSessionNotFound
	}
	if err := client.Connect(ctx); err != nil {
		if c := rt.detach(); c != nil {
			c.End()
		}
		return domain.Upstream(err)
	}
	return nil
}

// resolve finds a tenant by id or phone in the store and the runtime map.
func (r *Registry) resolve(ctx context.Context, idOrPhone string) (*domain.Session, *runtime, error) {
	key := strings.TrimSpace(idOrPhone)
	id := key
	if _, ok := phone.FromSessionID(key); !ok {
		// any notation Create accepts resolves to the same tenant
		if digits, err := phone.Normalize(key); err == nil {
			key = digits
			id = phone.SessionID(digits)
		}
	}
	rt := r.lookup(id)
	row, err := r.deps.Sessions.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil, err
	}
	if row != nil && rt == nil {
		rt = r.lookup(row.ID)
	}
	if row == nil && rt == nil {
		return nil, nil, domain.ErrSessionNotFound
	}
	return row, rt, nil
}

func (r *Registry) lookup(id string) *runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runtimes[id]
}

func (r *Registry) loaded() []*runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*runtime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		out = append(out, rt)
	}
	return out
}

// adopt returns the runtime of row, loading it when absent.
func (r *Registry) adopt(row *domain.Session) *runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.runtimes[row.ID]; ok {
		return rt
	}
	rt := newRuntime(row.ID, row.PhoneNumber, row.Status)
	rt.userInfo = row.UserInfo
	r.runtimes[row.ID] = rt
	return rt
}

func (r *Registry) forget(rt *runtime) {
	r.mu.Lock()
	if r.runtimes[rt.id] == rt {
		delete(r.runtimes, rt.id)
	}
	r.mu.Unlock()
	rt.mu.Lock()
	rt.removed = true
	rt.mu.Unlock()
}

func (rt *runtime) idAndPhone(row *domain.Session) (string, string) {
	if row != nil {
		return row.ID, row.PhoneNumber
	}
	return rt.id, rt.phone
}

func statusOf(row *domain.Session, rt *runtime) domain.SessionStatus {
	if rt != nil {
		return rt.getStatus()
	}
	return row.Status
}

// setStatus records a transition in memory and durably, then announces it.
func (r *Registry) setStatus(rt *runtime, s domain.SessionStatus) {
	prev := rt.swapStatus(s)
	if err := r.deps.Sessions.UpdateStatus(r.ctx, rt.id, s); err != nil {
		r.logError(rt.id, "persist status", err)
	}
	if prev == s {
		return
	}
	zap.L().Info("session status changed",
		zap.String("namespace", "session"),
		zap.String("session", rt.id),
		zap.String("from", prev.String()),
		zap.String("to", s.String()),
	)
	if r.deps.Observer != nil {
		r.deps.Observer.StatusChanged(rt.id, prev, s)
	}
	r.publish(TopicStatus, StatusChange{SessionID: rt.id, From: prev, To: s})
}

func (r *Registry) publish(topic string, arg interface{}) {
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(topic, arg)
	}
}

func (r *Registry) goBackground(fn func()) {
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		defer func() {
			if e := recover(); e != nil {
				zap.S().Errorf("session background task panic: %v\n%s", e, debug.Stack())
			}
		}()
		fn()
	}()
}

func (r *Registry) logError(sessionID, what string, err error) {
	zap.L().Error(what+" failed",
		zap.String("namespace", "session"),
		zap.String("session", sessionID),
		zap.Error(err),
	)
}
