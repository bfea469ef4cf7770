package protocol

import (
	"context"

	"github.com/talkincode/wamux/internal/domain"
)

// Event is the closed set of notifications a client emits. Each kind routes
// itself to the matching Handler method.
type Event interface {
	Dispatch(ctx context.Context, h Handler)
}

// Handler consumes every event kind.
type Handler interface {
	OnConnectionUpdate(ctx context.Context, ev *ConnectionUpdate)
	OnCredsUpdate(ctx context.Context, ev *CredsUpdate)
	OnMessagesUpsert(ctx context.Context, ev *MessagesUpsert)
	OnMessagesDelete(ctx context.Context, ev *MessagesDelete)
	OnGroupParticipantsUpdate(ctx context.Context, ev *GroupParticipantsUpdate)
	OnGroupsUpdate(ctx context.Context, ev *GroupsUpdate)
	OnGroupsUpsert(ctx context.Context, ev *GroupsUpsert)
	OnLIDMappingUpdate(ctx context.Context, ev *LIDMappingUpdate)
	OnCall(ctx context.Context, ev *CallEvent)
}

type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClose      ConnState = "close"
)

type CloseReason string

const (
	ReasonUnknown        CloseReason = "unknown"
	ReasonLoggedOut      CloseReason = "logged_out"
	ReasonConnectionLost CloseReason = "connection_lost"
	ReasonReplaced       CloseReason = "connection_replaced"
	ReasonTimedOut       CloseReason = "timed_out"
	ReasonClosedByUs     CloseReason = "closed"
)

type ConnectionUpdate struct {
	State  ConnState
	Reason CloseReason
	Err    error
}

func (e *ConnectionUpdate) Dispatch(ctx context.Context, h Handler) { h.OnConnectionUpdate(ctx, e) }

// CredsUpdate carries credential values to persist, keyed by name.
type CredsUpdate struct {
	Values map[string]string
}

func (e *CredsUpdate) Dispatch(ctx context.Context, h Handler) { h.OnCredsUpdate(ctx, e) }

type UpsertType string

const (
	UpsertNotify UpsertType = "notify"
	UpsertAppend UpsertType = "append"
)

// MessagesUpsert is a batch of messages delivered together.
type MessagesUpsert struct {
	Type     UpsertType
	Messages []*Message
}

func (e *MessagesUpsert) Dispatch(ctx context.Context, h Handler) { h.OnMessagesUpsert(ctx, e) }

type MessagesDelete struct {
	Keys []MessageKey
}

func (e *MessagesDelete) Dispatch(ctx context.Context, h Handler) { h.OnMessagesDelete(ctx, e) }

type GroupParticipantsUpdate struct {
	GroupID      string
	Author       string
	Participants []domain.Participant
	Action       domain.ParticipantAction
}

func (e *GroupParticipantsUpdate) Dispatch(ctx context.Context, h Handler) {
	h.OnGroupParticipantsUpdate(ctx, e)
}

// GroupsUpdate carries partial metadata documents keyed by JSON field name.
type GroupsUpdate struct {
	Patches []map[string]interface{}
}

func (e *GroupsUpdate) Dispatch(ctx context.Context, h Handler) { h.OnGroupsUpdate(ctx, e) }

type GroupsUpsert struct {
	Groups []*domain.GroupMetadata
}

func (e *GroupsUpsert) Dispatch(ctx context.Context, h Handler) { h.OnGroupsUpsert(ctx, e) }

type LIDMappingUpdate struct {
	Mappings []domain.Contact
}

func (e *LIDMappingUpdate) Dispatch(ctx context.Context, h Handler) { h.OnLIDMappingUpdate(ctx, e) }

type Call struct {
	ID      string
	From    string
	ChatID  string
	IsGroup bool
	IsVideo bool
}

type CallEvent struct {
	Calls []Call
}

func (e *CallEvent) Dispatch(ctx context.Context, h Handler) { h.OnCall(ctx, e) }
