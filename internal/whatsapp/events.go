package whatsapp

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

func (c *Client) emit(ev protocol.Event) {
	if ev != nil && c.sink != nil {
		c.sink(ev)
	}
}

// handle translates whatsmeow events. Anything without a protocol
// counterpart is dropped.
func (c *Client) handle(evt interface{}) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("whatsapp event panic session=%s: %v\n%s", c.sessionID, r, debug.Stack())
		}
	}()
	for _, ev := range c.translate(evt) {
		c.emit(ev)
	}
}

func (c *Client) translate(evt interface{}) []protocol.Event {
	switch v := evt.(type) {
	case *events.Connected:
		out := []protocol.Event{}
		if id := c.cli.Store.ID; id != nil {
			out = append(out, &protocol.CredsUpdate{Values: map[string]string{DeviceJIDKey: id.String()}})
		}
		return append(out, &protocol.ConnectionUpdate{State: protocol.StateOpen})
	case *events.PairSuccess:
		return []protocol.Event{&protocol.CredsUpdate{Values: map[string]string{DeviceJIDKey: v.ID.String()}}}
	case *events.Disconnected:
		return closed(protocol.ReasonConnectionLost, nil)
	case *events.StreamReplaced:
		return closed(protocol.ReasonReplaced, nil)
	case *events.KeepAliveTimeout:
		return closed(protocol.ReasonTimedOut, nil)
	case *events.LoggedOut:
		return closed(protocol.ReasonLoggedOut, nil)
	case *events.ConnectFailure:
		if v.Reason.IsLoggedOut() {
			return closed(protocol.ReasonLoggedOut, nil)
		}
		return closed(protocol.ReasonUnknown, nil)
	case *events.StreamError:
		return closed(protocol.ReasonUnknown, nil)
	case *events.Message:
		return c.message(v)
	case *events.GroupInfo:
		return groupInfoEvents(v)
	case *events.JoinedGroup:
		out := []protocol.Event{}
		if creds := lidMappings(v.Participants); creds != nil {
			out = append(out, creds)
		}
		return append(out, &protocol.GroupsUpsert{Groups: []*domain.GroupMetadata{groupMetadata(&v.GroupInfo)}})
	case *events.CallOffer:
		return []protocol.Event{&protocol.CallEvent{Calls: []protocol.Call{{
			ID:      v.CallID,
			From:    v.From.ToNonAD().String(),
			ChatID:  v.From.ToNonAD().String(),
			IsVideo: isVideoOffer(v),
		}}}}
	}
	return nil
}

func closed(reason protocol.CloseReason, err error) []protocol.Event {
	return []protocol.Event{&protocol.ConnectionUpdate{State: protocol.StateClose, Reason: reason, Err: err}}
}

func isVideoOffer(v *events.CallOffer) bool {
	if v.Data == nil {
		return false
	}
	for _, child := range v.Data.GetChildren() {
		if child.Tag == "video" {
			return true
		}
	}
	return false
}

// message turns one inbound message into an upsert.
func (c *Client) message(v *events.Message) []protocol.Event {
	info := v.Info
	key := protocol.MessageKey{
		ID:        info.ID,
		RemoteJID: info.Chat.String(),
		FromMe:    info.IsFromMe,
	}
	if info.IsGroup {
		key.Participant = info.Sender.ToNonAD().String()
	}
	msg := &protocol.Message{
		Key:       key,
		PushName:  info.PushName,
		Timestamp: info.Timestamp,
		Content:   v.Message,
	}
	return []protocol.Event{&protocol.MessagesUpsert{Type: protocol.UpsertNotify, Messages: []*protocol.Message{msg}}}
}

// lidMappings collects the phone to linked-device pairs a group's
// participant list reveals, as credential entries.
func lidMappings(ps []waTypes.GroupParticipant) *protocol.CredsUpdate {
	values := make(map[string]string)
	for _, p := range ps {
		if pn, lid, ok := mapping(p.JID.ToNonAD(), p.LID.ToNonAD()); ok {
			values["lid-mapping-"+pn] = lid
		}
	}
	if len(values) == 0 {
		return nil
	}
	return &protocol.CredsUpdate{Values: values}
}

// mapping pairs a phone-number user with a linked-device user.
func mapping(a, b waTypes.JID) (pn, lid string, ok bool) {
	if a.IsEmpty() || b.IsEmpty() {
		return "", "", false
	}
	switch {
	case a.Server == waTypes.DefaultUserServer && b.Server == waTypes.HiddenUserServer:
		return a.User, b.User, true
	case a.Server == waTypes.HiddenUserServer && b.Server == waTypes.DefaultUserServer:
		return b.User, a.User, true
	}
	return "", "", false
}

func groupInfoEvents(v *events.GroupInfo) []protocol.Event {
	gid := v.JID.String()
	patch := map[string]interface{}{"id": gid}
	if v.Name != nil {
		patch["subject"] = v.Name.Name
	}
	if v.Topic != nil {
		patch["desc"] = v.Topic.Topic
	}
	if v.Locked != nil {
		patch["restrict"] = v.Locked.IsLocked
	}
	if v.Announce != nil {
		patch["announce"] = v.Announce.IsAnnounce
	}
	if v.Ephemeral != nil {
		timer := uint32(0)
		if v.Ephemeral.IsEphemeral {
			timer = v.Ephemeral.DisappearingTimer
		}
		patch["ephemeralDuration"] = timer
	}
	var out []protocol.Event
	if len(patch) > 1 {
		out = append(out, &protocol.GroupsUpdate{Patches: []map[string]interface{}{patch}})
	}
	author := ""
	if v.Sender != nil {
		author = v.Sender.ToNonAD().String()
	}
	for _, change := range []struct {
		action domain.ParticipantAction
		jids   []waTypes.JID
	}{
		{domain.ParticipantsAdd, v.Join},
		{domain.ParticipantsRemove, v.Leave},
		{domain.ParticipantsPromote, v.Promote},
		{domain.ParticipantsDemote, v.Demote},
	} {
		if len(change.jids) == 0 {
			continue
		}
		ps := make([]domain.Participant, 0, len(change.jids))
		for _, jid := range change.jids {
			ps = append(ps, domain.Participant{ID: jid.ToNonAD().String()})
		}
		out = append(out, &protocol.GroupParticipantsUpdate{
			GroupID:      gid,
			Author:       author,
			Participants: ps,
			Action:       change.action,
		})
	}
	return out
}

func jidString(jid waTypes.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	return jid.String()
}

// groupMetadata converts whatsmeow's group info into the cached document.
func groupMetadata(info *waTypes.GroupInfo) *domain.GroupMetadata {
	md := &domain.GroupMetadata{
		ID:                  info.JID.String(),
		Subject:             info.Name,
		Owner:               jidString(info.OwnerJID),
		Desc:                info.Topic,
		Size:                len(info.Participants),
		Announce:            info.IsAnnounce,
		Restrict:            info.IsLocked,
		JoinApprovalMode:    info.IsJoinApprovalRequired,
		MemberAddMode:       info.MemberAddMode == waTypes.GroupMemberAddModeAllMember,
		IsCommunity:         info.IsParent,
		IsCommunityAnnounce: info.IsDefaultSubGroup,
		LinkedParent:        jidString(info.LinkedParentJID),
		Participants:        make([]domain.Participant, 0, len(info.Participants)),
	}
	if !info.GroupCreated.IsZero() {
		md.Creation = info.GroupCreated.Unix()
	}
	if info.IsEphemeral {
		md.EphemeralDuration = info.DisappearingTimer
	}
	for _, p := range info.Participants {
		dp := domain.Participant{
			ID:  p.JID.String(),
			LID: jidString(p.LID),
		}
		if p.JID.Server == waTypes.DefaultUserServer {
			dp.PhoneNumber = p.JID.String()
		}
		switch {
		case p.IsSuperAdmin:
			role := "superadmin"
			dp.Admin = &role
		case p.IsAdmin:
			role := "admin"
			dp.Admin = &role
		}
		md.Participants = append(md.Participants, dp)
	}
	return md
}

// messageForRetry answers a peer's resend request from the message table,
// at most RetryMax times per message.
func (c *Client) messageForRetry(requester, to waTypes.JID, id waTypes.MessageID) *waE2E.Message {
	if c.messages == nil || !c.retries.Allow(id) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored, err := c.messages.Get(ctx, c.sessionID, id)
	if err != nil || stored == nil {
		return nil
	}
	m, err := protocol.DecodeMessage(stored.Payload)
	if err != nil {
		zap.L().Warn("decode message for retry failed",
			zap.String("namespace", "whatsapp"),
			zap.String("session", c.sessionID),
			zap.String("message", id),
			zap.Error(err))
		return nil
	}
	return m.Content
}
