package session

import (
	"context"
	"runtime/debug"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupcache"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
)

// tenant routes the events of one client generation. Events arriving after
// the client was replaced or ended are dropped.
type tenant struct {
	r   *Registry
	rt  *runtime
	gen uint64
}

var _ protocol.Handler = (*tenant)(nil)

func (t *tenant) sink(ev protocol.Event) {
	defer func() {
		if e := recover(); e != nil {
			zap.S().Errorf("session %s event panic: %v\n%s", t.rt.id, e, debug.Stack())
		}
	}()
	if t.client() == nil {
		return
	}
	ev.Dispatch(t.r.ctx, t)
}

func (t *tenant) client() protocol.Client {
	return t.rt.clientFor(t.gen)
}

func (t *tenant) OnConnectionUpdate(ctx context.Context, ev *protocol.ConnectionUpdate) {
	r, rt := t.r, t.rt
	switch ev.State {
	case protocol.StateConnecting:
		if rt.getStatus() != domain.StatusPairing {
			r.setStatus(rt, domain.StatusConnecting)
		}
	case protocol.StateOpen:
		rt.mu.Lock()
		rt.attempts = 0
		rt.pairing = ""
		rt.stopTimerLocked()
		rt.mu.Unlock()
		r.setStatus(rt, domain.StatusActive)
		zap.L().Info("session connected",
			zap.String("namespace", "session"),
			zap.String("session", rt.id),
		)
		if rt.firstOpen() {
			client := t.client()
			r.goBackground(func() { r.postConnectSync(rt, client) })
		}
	case protocol.StateClose:
		t.onClose(ctx, ev)
	}
}

func (t *tenant) onClose(ctx context.Context, ev *protocol.ConnectionUpdate) {
	r, rt := t.r, t.rt
	zap.L().Warn("session connection closed",
		zap.String("namespace", "session"),
		zap.String("session", rt.id),
		zap.String("reason", string(ev.Reason)),
		zap.Error(ev.Err),
	)
	if ev.Reason == protocol.ReasonLoggedOut {
		rt.ops.Lock()
		if c := rt.detach(); c != nil {
			c.End()
		}
		rt.ops.Unlock()
		r.setStatus(rt, domain.StatusInactive)
		return
	}
	if rt.getStatus() == domain.StatusPausedUser {
		return
	}
	if row, err := r.deps.Sessions.Get(ctx, rt.id); err == nil && row.Status == domain.StatusPausedUser {
		return
	}
	r.scheduleReconnect(rt)
}

func (t *tenant) OnCredsUpdate(ctx context.Context, ev *protocol.CredsUpdate) {
	if t.r.deps.Vault == nil {
		return
	}
	for name, value := range ev.Values {
		if err := t.r.deps.Vault.Write(ctx, t.rt.id, name, value); err != nil {
			t.r.logError(t.rt.id, "write credential "+name, err)
		}
	}
}

// OnMessagesUpsert persists every message, turns revokes into deletions and
// hands the batch to the command pipeline.
func (t *tenant) OnMessagesUpsert(ctx context.Context, ev *protocol.MessagesUpsert) {
	r, sid := t.r, t.rt.id
	var revoked []protocol.MessageKey
	for _, m := range ev.Messages {
		if m == nil || m.Key.ID == "" {
			continue
		}
		if pm := m.Content.GetProtocolMessage(); pm != nil && pm.GetType() == waE2E.ProtocolMessage_REVOKE {
			if key := pm.GetKey(); key.GetID() != "" {
				revoked = append(revoked, protocol.MessageKey{
					ID:          key.GetID(),
					RemoteJID:   m.Key.RemoteJID,
					Participant: m.Key.Participant,
					FromMe:      m.Key.FromMe,
				})
			}
			continue
		}
		if r.deps.Messages == nil {
			continue
		}
		payload, err := m.Encode()
		if err != nil {
			r.logError(sid, "encode message", err)
			continue
		}
		if err := r.deps.Messages.Save(ctx, sid, m.Key.ID, payload); err != nil {
			r.logError(sid, "save message", err)
		}
	}
	client := t.client()
	if client == nil {
		return
	}
	if len(revoked) > 0 {
		t.OnMessagesDelete(ctx, &protocol.MessagesDelete{Keys: revoked})
	}
	if r.deps.Dispatcher != nil {
		r.deps.Dispatcher.Dispatch(ctx, sid, client, ev)
	}
}

func (t *tenant) OnMessagesDelete(ctx context.Context, ev *protocol.MessagesDelete) {
	if t.r.deps.Antidelete == nil {
		return
	}
	if client := t.client(); client != nil {
		t.r.deps.Antidelete.Handle(ctx, t.rt.id, client, ev)
	}
}

func (t *tenant) OnGroupParticipantsUpdate(ctx context.Context, ev *protocol.GroupParticipantsUpdate) {
	groups, sid := t.r.deps.Groups, t.rt.id
	if groups == nil || ev.GroupID == "" {
		return
	}
	client := t.client()
	if client == nil {
		return
	}
	ids := make([]string, 0, len(ev.Participants))
	self := client.Self()
	leftSelf := false
	for _, p := range ev.Participants {
		ids = append(ids, p.ID)
		if ev.Action == domain.ParticipantsRemove &&
			(protocol.SameUser(p.ID, self.PN) || protocol.SameUser(p.ID, self.LID) ||
				protocol.SameUser(p.PhoneNumber, self.PN) || protocol.SameUser(p.LID, self.LID)) {
			leftSelf = true
		}
	}
	if leftSelf {
		if err := groups.Delete(ctx, sid, ev.GroupID); err != nil {
			t.r.logError(sid, "drop group", err)
		}
		return
	}
	if md, err := client.GroupMetadata(ctx, ev.GroupID); err == nil {
		if err := groups.Put(ctx, sid, md); err != nil {
			t.r.logError(sid, "cache group", err)
		}
		return
	}
	if err := groups.ApplyParticipants(ctx, sid, ev.GroupID, ev.Action, ids); err != nil {
		t.r.logError(sid, "apply participants", err)
	}
}

func (t *tenant) OnGroupsUpdate(ctx context.Context, ev *protocol.GroupsUpdate) {
	groups, sid := t.r.deps.Groups, t.rt.id
	if groups == nil {
		return
	}
	client := t.client()
	for _, patch := range ev.Patches {
		id, _ := patch["id"].(string)
		if id == "" {
			continue
		}
		if err := groups.Upsert(ctx, sid, groupcache.Patch(patch)); err != nil {
			t.r.logError(sid, "merge group update", err)
		}
		if client == nil {
			continue
		}
		if md, err := client.GroupMetadata(ctx, id); err == nil {
			if err := groups.Put(ctx, sid, md); err != nil {
				t.r.logError(sid, "cache group", err)
			}
		}
	}
}

func (t *tenant) OnGroupsUpsert(ctx context.Context, ev *protocol.GroupsUpsert) {
	if t.r.deps.Groups == nil {
		return
	}
	for _, md := range ev.Groups {
		if md == nil || md.ID == "" {
			continue
		}
		if err := t.r.deps.Groups.Put(ctx, t.rt.id, md); err != nil {
			t.r.logError(t.rt.id, "cache group", err)
		}
	}
}

func (t *tenant) OnLIDMappingUpdate(ctx context.Context, ev *protocol.LIDMappingUpdate) {
	if t.r.deps.Identities == nil {
		return
	}
	for _, m := range ev.Mappings {
		if err := t.r.deps.Identities.AddOrUpdate(ctx, t.rt.id, m.PN, m.LID); err != nil {
			t.r.logError(t.rt.id, "store identity mapping", err)
		}
	}
}

func (t *tenant) OnCall(ctx context.Context, ev *protocol.CallEvent) {
	if t.r.deps.Calls == nil {
		return
	}
	if client := t.client(); client != nil {
		t.r.deps.Calls.Handle(ctx, t.rt.id, client, ev)
	}
}

// postConnectSync runs once per loaded runtime after the first open: the
// account becomes its own sudo user, groups are cached and the self
// identity is recorded.
func (r *Registry) postConnectSync(rt *runtime, client protocol.Client) {
	if client == nil {
		return
	}
	ctx := r.ctx
	self := client.Self()
	if r.deps.Sudo != nil && (self.PN != "" || self.LID != "") {
		if err := r.deps.Sudo.Add(ctx, rt.id, domain.Contact{PN: self.PN, LID: self.LID}); err != nil {
			r.logError(rt.id, "add self to sudo", err)
		}
	}
	if self.PN != "" && self.LID != "" && r.deps.Identities != nil {
		if err := r.deps.Identities.AddOrUpdate(ctx, rt.id, self.PN, self.LID); err != nil {
			r.logError(rt.id, "store self mapping", err)
		}
	}
	if err := r.sleep(ctx, r.opts.SyncDelay); err != nil {
		return
	}
	if !client.IsConnected() {
		return
	}
	if r.deps.Groups != nil {
		groups, err := client.GroupFetchAllParticipating(ctx)
		if err != nil {
			r.logError(rt.id, "fetch groups", err)
		}
		for _, md := range groups {
			if err := r.deps.Groups.Put(ctx, rt.id, md); err != nil {
				r.logError(rt.id, "cache group", err)
			}
		}
		zap.L().Info("session groups synced",
			zap.String("namespace", "session"),
			zap.String("session", rt.id),
			zap.Int("groups", len(groups)),
		)
	}
	if self.PN == "" {
		return
	}
	info := &domain.UserInfo{ID: self.PN, LID: self.LID, Name: self.Name}
	rt.mu.Lock()
	rt.userInfo = info
	rt.mu.Unlock()
	if err := r.deps.Sessions.UpdateUserInfo(ctx, rt.id, info); err != nil {
		r.logError(rt.id, "persist user info", err)
	}
}
