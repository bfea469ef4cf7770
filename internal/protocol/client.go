// Package protocol defines the boundary to the WhatsApp Web protocol layer:
// the client handle a tenant drives and the typed events it emits.
package protocol

import (
	"context"
	"time"

	"github.com/talkincode/wamux/internal/domain"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// Presence is a chat or global presence state.
type Presence string

const (
	PresenceAvailable   Presence = "available"
	PresenceUnavailable Presence = "unavailable"
	PresenceComposing   Presence = "composing"
	PresenceRecording   Presence = "recording"
	PresencePaused      Presence = "paused"
)

// GroupSetting toggles who may send messages or edit group info.
type GroupSetting string

const (
	SettingAnnouncement    GroupSetting = "announcement"
	SettingNotAnnouncement GroupSetting = "not_announcement"
	SettingLocked          GroupSetting = "locked"
	SettingUnlocked        GroupSetting = "unlocked"
)

// SelfInfo is the account a client is logged in as.
type SelfInfo struct {
	PN   string
	LID  string
	Name string
}

// Client is one tenant's live protocol connection.
type Client interface {
	Connect(ctx context.Context) error
	IsRegistered() bool
	IsConnected() bool
	Self() SelfInfo

	// RequestPairingCode asks the server for a code to link phone without a QR scan
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	// Logout unlinks the device; credentials become useless
	Logout(ctx context.Context) error
	// End closes the socket and keeps credentials
	End()

	SendMessage(ctx context.Context, chat string, msg *waE2E.Message) (string, error)
	SendText(ctx context.Context, chat, text string, quoted *Message) (string, error)
	MarkRead(ctx context.Context, chat, sender string, ids []string, at time.Time) error
	SendPresence(ctx context.Context, chat string, presence Presence) error

	GroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error)
	GroupFetchAllParticipating(ctx context.Context) ([]*domain.GroupMetadata, error)
	GroupParticipantsUpdate(ctx context.Context, groupID string, ids []string, action domain.ParticipantAction) error
	GroupUpdateSubject(ctx context.Context, groupID, subject string) error
	GroupUpdateDescription(ctx context.Context, groupID, desc string) error
	GroupSettingUpdate(ctx context.Context, groupID string, setting GroupSetting) error
	GroupToggleEphemeral(ctx context.Context, groupID string, expiration time.Duration) error
	GroupInviteCode(ctx context.Context, groupID string, reset bool) (string, error)
	GroupLeave(ctx context.Context, groupID string) error
	GroupJoinApprovalMode(ctx context.Context, groupID string, on bool) error
	GroupMemberAddMode(ctx context.Context, groupID string, allMembers bool) error
	GroupLinkCommunity(ctx context.Context, parentID, groupID string) error

	RejectCall(ctx context.Context, from, callID string) error
	FetchBlocklist(ctx context.Context) ([]string, error)
	UpdateBlockStatus(ctx context.Context, jid string, block bool) error
}

// Sink receives the events of one client. Calls may come from any goroutine.
type Sink func(Event)

// Factory opens protocol clients for tenants.
type Factory interface {
	Open(ctx context.Context, sessionID string, sink Sink) (Client, error)
	// Purge destroys the stored device keys of a tenant. It works without a
	// live client and is a no-op when nothing is stored.
	Purge(ctx context.Context, sessionID string) error
}
