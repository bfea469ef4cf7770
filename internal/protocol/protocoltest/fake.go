// Package protocoltest provides a scriptable in-memory protocol client.
package protocoltest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// Sent is one outbound message recorded by the fake.
type Sent struct {
	Chat   string
	Text   string
	Quoted string
	Raw    *waE2E.Message
}

// Client records every call. Fields ending in Err make the matching call fail.
type Client struct {
	mu sync.Mutex

	SessionID  string
	Registered bool
	SelfInfo   protocol.SelfInfo
	PairCode   string
	Groups     map[string]*domain.GroupMetadata
	Blocked    map[string]bool

	ConnectErr error
	PairErr    error
	LogoutErr  error
	ActionErr  error

	Sent         []Sent
	Read         []string
	Presences    []protocol.Presence
	Rejected     []string
	Calls        []string
	Connects     int
	Ends         int
	Logouts      int
	PairRequests int
	connected    bool
	sink         protocol.Sink
	sentSeq      int64
}

func NewClient() *Client {
	return &Client{
		PairCode: "ABCD-1234",
		Groups:   make(map[string]*domain.GroupMetadata),
		Blocked:  make(map[string]bool),
	}
}

// Emit delivers ev to the sink the client was opened with.
func (c *Client) Emit(ev protocol.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (c *Client) record(call string) {
	c.Calls = append(c.Calls, call)
}

// Called reports whether call was recorded.
func (c *Client) Called(call string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.Calls {
		if v == call {
			return true
		}
	}
	return false
}

// Texts returns the text of every sent message.
func (c *Client) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Sent))
	for _, s := range c.Sent {
		out = append(out, s.Text)
	}
	return out
}

func (c *Client) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Connects++
	c.record("connect")
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.connected = true
	return nil
}

func (c *Client) IsRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Registered
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Self() protocol.SelfInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SelfInfo
}

func (c *Client) RequestPairingCode(_ context.Context, phone string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PairRequests++
	c.record("pair:" + phone)
	if c.PairErr != nil {
		return "", c.PairErr
	}
	return c.PairCode, nil
}

func (c *Client) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logouts++
	c.record("logout")
	c.connected = false
	return c.LogoutErr
}

func (c *Client) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ends++
	c.record("end")
	c.connected = false
}

func (c *Client) nextID() string {
	return fmt.Sprintf("FAKE%d", atomic.AddInt64(&c.sentSeq, 1))
}

func (c *Client) SendMessage(_ context.Context, chat string, msg *waE2E.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ActionErr != nil {
		return "", c.ActionErr
	}
	text := msg.GetConversation()
	if text == "" {
		text = msg.GetExtendedTextMessage().GetText()
	}
	c.Sent = append(c.Sent, Sent{Chat: chat, Text: text, Raw: msg})
	return c.nextID(), nil
}

func (c *Client) SendText(_ context.Context, chat, text string, quoted *protocol.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ActionErr != nil {
		return "", c.ActionErr
	}
	s := Sent{Chat: chat, Text: text}
	if quoted != nil {
		s.Quoted = quoted.Key.ID
	}
	c.Sent = append(c.Sent, s)
	return c.nextID(), nil
}

func (c *Client) MarkRead(_ context.Context, _, _ string, ids []string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Read = append(c.Read, ids...)
	return nil
}

func (c *Client) SendPresence(_ context.Context, _ string, p protocol.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Presences = append(c.Presences, p)
	return nil
}

func (c *Client) group(id string) (*domain.GroupMetadata, error) {
	g, ok := c.Groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s not found", id)
	}
	return g, nil
}

func (c *Client) GroupMetadata(_ context.Context, groupID string) (*domain.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}
	cp := *g
	cp.Participants = append([]domain.Participant(nil), g.Participants...)
	return &cp, nil
}

func (c *Client) GroupFetchAllParticipating(context.Context) ([]*domain.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("fetch_groups")
	out := make([]*domain.GroupMetadata, 0, len(c.Groups))
	for _, g := range c.Groups {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (c *Client) action(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(call)
	return c.ActionErr
}

func (c *Client) GroupParticipantsUpdate(_ context.Context, groupID string, ids []string, action domain.ParticipantAction) error {
	return c.action(fmt.Sprintf("participants:%s:%s:%s", groupID, action, strings.Join(ids, ",")))
}

func (c *Client) GroupUpdateSubject(_ context.Context, groupID, subject string) error {
	return c.action("subject:" + groupID + ":" + subject)
}

func (c *Client) GroupUpdateDescription(_ context.Context, groupID, desc string) error {
	return c.action("description:" + groupID + ":" + desc)
}

func (c *Client) GroupSettingUpdate(_ context.Context, groupID string, setting protocol.GroupSetting) error {
	return c.action("setting:" + groupID + ":" + string(setting))
}

func (c *Client) GroupToggleEphemeral(_ context.Context, groupID string, expiration time.Duration) error {
	return c.action(fmt.Sprintf("ephemeral:%s:%d", groupID, int64(expiration.Seconds())))
}

func (c *Client) GroupInviteCode(_ context.Context, groupID string, reset bool) (string, error) {
	if err := c.action(fmt.Sprintf("invite:%s:%v", groupID, reset)); err != nil {
		return "", err
	}
	if reset {
		return "NEWCODE", nil
	}
	return "CODE", nil
}

func (c *Client) GroupLeave(_ context.Context, groupID string) error {
	return c.action("leave:" + groupID)
}

func (c *Client) GroupJoinApprovalMode(_ context.Context, groupID string, on bool) error {
	return c.action(fmt.Sprintf("join_approval:%s:%v", groupID, on))
}

func (c *Client) GroupMemberAddMode(_ context.Context, groupID string, allMembers bool) error {
	return c.action(fmt.Sprintf("member_add:%s:%v", groupID, allMembers))
}

func (c *Client) GroupLinkCommunity(_ context.Context, parentID, groupID string) error {
	return c.action("link:" + parentID + ":" + groupID)
}

func (c *Client) RejectCall(_ context.Context, from, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rejected = append(c.Rejected, callID)
	c.record("reject:" + from)
	return nil
}

func (c *Client) FetchBlocklist(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for jid, b := range c.Blocked {
		if b {
			out = append(out, jid)
		}
	}
	return out, nil
}

func (c *Client) UpdateBlockStatus(_ context.Context, jid string, block bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(fmt.Sprintf("block:%s:%v", jid, block))
	if c.ActionErr != nil {
		return c.ActionErr
	}
	c.Blocked[jid] = block
	return nil
}

// Factory hands out fake clients. New builds the client for a session; by
// default every open gets a fresh registered client.
type Factory struct {
	mu      sync.Mutex
	New     func(sessionID string) *Client
	OpenErr error
	Opened  map[string][]*Client
	Purged  []string
}

func NewFactory() *Factory {
	return &Factory{Opened: make(map[string][]*Client)}
}

func (f *Factory) Open(_ context.Context, sessionID string, sink protocol.Sink) (protocol.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	var c *Client
	if f.New != nil {
		c = f.New(sessionID)
	} else {
		c = NewClient()
		c.Registered = true
	}
	c.mu.Lock()
	c.SessionID = sessionID
	c.sink = sink
	c.mu.Unlock()
	f.Opened[sessionID] = append(f.Opened[sessionID], c)
	return c, nil
}

func (f *Factory) Purge(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Purged = append(f.Purged, sessionID)
	return nil
}

// WasPurged reports whether the device keys of sessionID were destroyed.
func (f *Factory) WasPurged(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.Purged {
		if id == sessionID {
			return true
		}
	}
	return false
}

// Last returns the most recent client opened for sessionID.
func (f *Factory) Last(sessionID string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.Opened[sessionID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Count returns how many clients were opened for sessionID.
func (f *Factory) Count(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Opened[sessionID])
}
