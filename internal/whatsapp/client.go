package whatsapp

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

const inviteLinkPrefix = "https://chat.whatsapp.com/"

// Client adapts one whatsmeow client to protocol.Client.
type Client struct {
	sessionID string
	cli       *whatsmeow.Client
	sink      protocol.Sink
	messages  MessageSource
	retries   *protocol.RetryCache
	handlerID uint32
}

var _ protocol.Client = (*Client)(nil)

// Retries exposes the resend counter so the registry can sweep it.
func (c *Client) Retries() *protocol.RetryCache {
	return c.retries
}

func parseJID(raw string) (waTypes.JID, error) {
	jid, err := waTypes.ParseJID(protocol.Normalize(raw))
	if err != nil || jid.IsEmpty() {
		return waTypes.EmptyJID, domain.ErrInvalidParameters.With(errors.Errorf("invalid jid %q", raw))
	}
	return jid, nil
}

func parseJIDs(raw []string) ([]waTypes.JID, error) {
	out := make([]waTypes.JID, 0, len(raw))
	for _, r := range raw {
		jid, err := parseJID(r)
		if err != nil {
			return nil, err
		}
		out = append(out, jid)
	}
	return out, nil
}

func (c *Client) Connect(context.Context) error {
	return c.cli.Connect()
}

func (c *Client) IsRegistered() bool {
	return c.cli.Store.ID != nil
}

func (c *Client) IsConnected() bool {
	return c.cli.IsConnected()
}

func (c *Client) Self() protocol.SelfInfo {
	var s protocol.SelfInfo
	if id := c.cli.Store.ID; id != nil {
		s.PN = id.ToNonAD().String()
	}
	s.Name = c.cli.Store.PushName
	return s
}

func (c *Client) RequestPairingCode(_ context.Context, phone string) (string, error) {
	return c.cli.PairPhone(phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
}

func (c *Client) Logout(context.Context) error {
	return c.cli.Logout()
}

func (c *Client) End() {
	c.cli.RemoveEventHandler(c.handlerID)
	c.cli.Disconnect()
}

func (c *Client) SendMessage(ctx context.Context, chat string, msg *waE2E.Message) (string, error) {
	to, err := parseJID(chat)
	if err != nil {
		return "", err
	}
	resp, err := c.cli.SendMessage(ctx, to, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) SendText(ctx context.Context, chat, text string, quoted *protocol.Message) (string, error) {
	if quoted == nil {
		return c.SendMessage(ctx, chat, &waE2E.Message{Conversation: proto.String(text)})
	}
	info := &waE2E.ContextInfo{
		StanzaID:      proto.String(quoted.Key.ID),
		QuotedMessage: quoted.Content,
	}
	if p := quoted.Key.Participant; p != "" {
		info.Participant = proto.String(p)
	} else if !quoted.Key.FromMe {
		info.Participant = proto.String(quoted.Key.RemoteJID)
	}
	return c.SendMessage(ctx, chat, &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		ContextInfo: info,
	}})
}

func (c *Client) MarkRead(_ context.Context, chat, sender string, ids []string, at time.Time) error {
	chatJID, err := parseJID(chat)
	if err != nil {
		return err
	}
	senderJID := waTypes.EmptyJID
	if sender != "" {
		if senderJID, err = parseJID(sender); err != nil {
			return err
		}
	}
	return c.cli.MarkRead(ids, at, chatJID, senderJID)
}

func (c *Client) SendPresence(_ context.Context, chat string, presence protocol.Presence) error {
	switch presence {
	case protocol.PresenceAvailable:
		return c.cli.SendPresence(waTypes.PresenceAvailable)
	case protocol.PresenceUnavailable:
		return c.cli.SendPresence(waTypes.PresenceUnavailable)
	}
	jid, err := parseJID(chat)
	if err != nil {
		return err
	}
	switch presence {
	case protocol.PresenceComposing:
		return c.cli.SendChatPresence(jid, waTypes.ChatPresenceComposing, waTypes.ChatPresenceMediaText)
	case protocol.PresenceRecording:
		return c.cli.SendChatPresence(jid, waTypes.ChatPresenceComposing, waTypes.ChatPresenceMediaAudio)
	default:
		return c.cli.SendChatPresence(jid, waTypes.ChatPresencePaused, waTypes.ChatPresenceMediaText)
	}
}

func (c *Client) GroupMetadata(_ context.Context, groupID string) (*domain.GroupMetadata, error) {
	jid, err := parseJID(groupID)
	if err != nil {
		return nil, err
	}
	info, err := c.cli.GetGroupInfo(jid)
	if err != nil {
		return nil, err
	}
	return groupMetadata(info), nil
}

func (c *Client) GroupFetchAllParticipating(context.Context) ([]*domain.GroupMetadata, error) {
	groups, err := c.cli.GetJoinedGroups()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.GroupMetadata, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupMetadata(g))
	}
	return out, nil
}

var participantChanges = map[domain.ParticipantAction]whatsmeow.ParticipantChange{
	domain.ParticipantsAdd:     whatsmeow.ParticipantChangeAdd,
	domain.ParticipantsRemove:  whatsmeow.ParticipantChangeRemove,
	domain.ParticipantsPromote: whatsmeow.ParticipantChangePromote,
	domain.ParticipantsDemote:  whatsmeow.ParticipantChangeDemote,
}

func (c *Client) GroupParticipantsUpdate(_ context.Context, groupID string, ids []string, action domain.ParticipantAction) error {
	change, ok := participantChanges[action]
	if !ok {
		return domain.ErrUnknownAction
	}
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	targets, err := parseJIDs(ids)
	if err != nil {
		return err
	}
	_, err = c.cli.UpdateGroupParticipants(jid, targets, change)
	return err
}

func (c *Client) GroupUpdateSubject(_ context.Context, groupID, subject string) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	return c.cli.SetGroupName(jid, subject)
}

func (c *Client) GroupUpdateDescription(_ context.Context, groupID, desc string) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	return c.cli.SetGroupTopic(jid, "", "", desc)
}

func (c *Client) GroupSettingUpdate(_ context.Context, groupID string, setting protocol.GroupSetting) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	switch setting {
	case protocol.SettingAnnouncement:
		return c.cli.SetGroupAnnounce(jid, true)
	case protocol.SettingNotAnnouncement:
		return c.cli.SetGroupAnnounce(jid, false)
	case protocol.SettingLocked:
		return c.cli.SetGroupLocked(jid, true)
	case protocol.SettingUnlocked:
		return c.cli.SetGroupLocked(jid, false)
	}
	return domain.ErrUnknownAction
}

func (c *Client) GroupToggleEphemeral(_ context.Context, groupID string, expiration time.Duration) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	return c.cli.SetDisappearingTimer(jid, expiration)
}

func (c *Client) GroupInviteCode(_ context.Context, groupID string, reset bool) (string, error) {
	jid, err := parseJID(groupID)
	if err != nil {
		return "", err
	}
	link, err := c.cli.GetGroupInviteLink(jid, reset)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(link, inviteLinkPrefix), nil
}

func (c *Client) GroupLeave(_ context.Context, groupID string) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	return c.cli.LeaveGroup(jid)
}

func (c *Client) GroupJoinApprovalMode(_ context.Context, groupID string, on bool) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	return c.cli.SetGroupJoinApprovalMode(jid, on)
}

func (c *Client) GroupMemberAddMode(_ context.Context, groupID string, allMembers bool) error {
	jid, err := parseJID(groupID)
	if err != nil {
		return err
	}
	mode := waTypes.GroupMemberAddModeAdmin
	if allMembers {
		mode = waTypes.GroupMemberAddModeAllMember
	}
	return c.cli.SetGroupMemberAddMode(jid, mode)
}

func (c *Client) GroupLinkCommunity(_ context.Context, parentID, groupID string) error {
	parent, err := parseJID(parentID)
	if err != nil {
		return err
	}
	child, err := parseJID(groupID)
	if err != nil {
		return err
	}
	return c.cli.LinkGroup(parent, child)
}

func (c *Client) RejectCall(_ context.Context, from, callID string) error {
	jid, err := parseJID(from)
	if err != nil {
		return err
	}
	return c.cli.RejectCall(jid, callID)
}

func (c *Client) FetchBlocklist(context.Context) ([]string, error) {
	list, err := c.cli.GetBlocklist()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list.JIDs))
	for _, jid := range list.JIDs {
		out = append(out, jid.String())
	}
	return out, nil
}

func (c *Client) UpdateBlockStatus(_ context.Context, jid string, block bool) error {
	target, err := parseJID(jid)
	if err != nil {
		return err
	}
	action := events.BlocklistChangeActionUnblock
	if block {
		action = events.BlocklistChangeActionBlock
	}
	_, err = c.cli.UpdateBlocklist(target, action)
	return err
}
