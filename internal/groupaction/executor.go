// Package groupaction applies administrative actions to a group and keeps
// the group cache in step with the result.
package groupaction

import (
	"context"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/phone"
	"github.com/talkincode/wamux/internal/protocol"
	"go.uber.org/zap"
)

// Action names accepted by Execute.
const (
	ActionName           = "name"
	ActionDescription    = "description"
	ActionMute           = "mute"
	ActionUnmute         = "unmute"
	ActionLock           = "lock"
	ActionUnlock         = "unlock"
	ActionAdd            = "add"
	ActionRemove         = "remove"
	ActionPromote        = "promote"
	ActionDemote         = "demote"
	ActionKickAll        = "kick_all"
	ActionEphemeral      = "ephemeral"
	ActionInviteCode     = "invite_code"
	ActionRevokeInvite   = "revoke_invite"
	ActionLeave          = "leave"
	ActionJoinApproval   = "join_approval"
	ActionMemberAddMode  = "member_add_mode"
	ActionLinkCommunity  = "link_community"
	InviteLinkPrefix     = "https://chat.whatsapp.com/"
	MemberAddModeAdmin   = "admin"
	MemberAddModeMembers = "all"
)

// EphemeralDurations are the disappearing-message timers the server accepts,
// in seconds.
var EphemeralDurations = []int64{0, 86400, 604800, 7776000}

// Params carries the optional arguments of an action.
type Params struct {
	Subject      string   `mapstructure:"subject"`
	Description  string   `mapstructure:"description"`
	Participants []string `mapstructure:"participants"`
	Duration     int64    `mapstructure:"duration"`
	Enabled      *bool    `mapstructure:"enabled"`
	Mode         string   `mapstructure:"mode"`
	ParentID     string   `mapstructure:"parent_id"`
}

// DecodeParams converts loosely typed input, such as a JSON body, into Params.
func DecodeParams(input map[string]interface{}) (Params, error) {
	var p Params
	if len(input) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(input); err != nil {
		return p, domain.ErrInvalidParameters.With(err)
	}
	return p, nil
}

// Result reports what an action touched.
type Result struct {
	Action       string   `json:"action"`
	GroupID      string   `json:"group_id"`
	Participants []string `json:"participants,omitempty"`
	InviteLink   string   `json:"invite_link,omitempty"`
}

// GroupCache is the slice of the group cache the executor needs.
type GroupCache interface {
	Get(ctx context.Context, sessionID, groupID string) (*domain.GroupMetadata, error)
	Put(ctx context.Context, sessionID string, md *domain.GroupMetadata) error
	Delete(ctx context.Context, sessionID, groupID string) error
	ApplyParticipants(ctx context.Context, sessionID, groupID string, action domain.ParticipantAction, ids []string) error
}

type IdentityResolver interface {
	Resolve(ctx context.Context, sessionID, raw string) (string, error)
}

type Executor struct {
	cache    GroupCache
	resolver IdentityResolver
}

func NewExecutor(cache GroupCache, resolver IdentityResolver) *Executor {
	return &Executor{cache: cache, resolver: resolver}
}

// load returns the cached metadata, fetching it from the server on a miss.
func (e *Executor) load(ctx context.Context, sessionID string, client protocol.Client, groupID string) (*domain.GroupMetadata, error) {
	md, err := e.cache.Get(ctx, sessionID, groupID)
	if err != nil {
		return nil, err
	}
	if md != nil {
		return md, nil
	}
	md, err = client.GroupMetadata(ctx, groupID)
	if err != nil || md == nil {
		return nil, domain.ErrGroupNotFound.With(err)
	}
	if err := e.cache.Put(ctx, sessionID, md); err != nil {
		return nil, err
	}
	return md, nil
}

// Execute runs action against groupID. Actions whose target state is
// already reflected in the cache fail with ErrAlreadyInState.
func (e *Executor) Execute(ctx context.Context, sessionID string, client protocol.Client, groupID, action string, params Params) (*Result, error) {
	if client == nil {
		return nil, domain.ErrSessionNotConnected
	}
	groupID = protocol.Normalize(groupID)
	if !protocol.IsGroup(groupID) {
		return nil, domain.ErrInvalidParameters
	}
	md, err := e.load(ctx, sessionID, client, groupID)
	if err != nil {
		return nil, err
	}
	res := &Result{Action: action, GroupID: groupID}

	switch action {
	case ActionName:
		subject := strings.TrimSpace(params.Subject)
		if subject == "" {
			return nil, domain.ErrInvalidParameters
		}
		if subject == md.Subject {
			return nil, domain.ErrAlreadyInState
		}
		err = client.GroupUpdateSubject(ctx, groupID, subject)
		md.Subject = subject

	case ActionDescription:
		desc := strings.TrimSpace(params.Description)
		if desc == md.Desc {
			return nil, domain.ErrAlreadyInState
		}
		err = client.GroupUpdateDescription(ctx, groupID, desc)
		md.Desc = desc

	case ActionMute, ActionUnmute:
		want := action == ActionMute
		if md.Announce == want {
			return nil, domain.ErrAlreadyInState
		}
		setting := protocol.SettingNotAnnouncement
		if want {
			setting = protocol.SettingAnnouncement
		}
		err = client.GroupSettingUpdate(ctx, groupID, setting)
		md.Announce = want

	case ActionLock, ActionUnlock:
		want := action == ActionLock
		if md.Restrict == want {
			return nil, domain.ErrAlreadyInState
		}
		setting := protocol.SettingUnlocked
		if want {
			setting = protocol.SettingLocked
		}
		err = client.GroupSettingUpdate(ctx, groupID, setting)
		md.Restrict = want

	case ActionAdd, ActionRemove, ActionPromote, ActionDemote:
		return e.participants(ctx, sessionID, client, md, action, params.Participants)

	case ActionKickAll:
		self := client.Self()
		var targets []string
		for _, p := range md.Participants {
			if p.IsAdmin() || matches(p, md.Owner) || matches(p, self.PN) || matches(p, self.LID) {
				continue
			}
			targets = append(targets, p.ID)
		}
		if len(targets) == 0 {
			return nil, domain.ErrAlreadyInState
		}
		if err := client.GroupParticipantsUpdate(ctx, groupID, targets, domain.ParticipantsRemove); err != nil {
			return nil, domain.Upstream(err)
		}
		res.Participants = targets
		e.refresh(ctx, sessionID, client, groupID, func() error {
			return e.cache.ApplyParticipants(ctx, sessionID, groupID, domain.ParticipantsRemove, targets)
		})
		return res, nil

	case ActionEphemeral:
		if !validDuration(params.Duration) {
			return nil, domain.ErrInvalidParameters
		}
		if int64(md.EphemeralDuration) == params.Duration {
			return nil, domain.ErrAlreadyInState
		}
		err = client.GroupToggleEphemeral(ctx, groupID, time.Duration(params.Duration)*time.Second)
		md.EphemeralDuration = uint32(params.Duration)

	case ActionInviteCode, ActionRevokeInvite:
		code, err := client.GroupInviteCode(ctx, groupID, action == ActionRevokeInvite)
		if err != nil {
			return nil, domain.Upstream(err)
		}
		res.InviteLink = InviteLinkPrefix + code
		return res, nil

	case ActionLeave:
		if err := client.GroupLeave(ctx, groupID); err != nil {
			return nil, domain.Upstream(err)
		}
		if err := e.cache.Delete(ctx, sessionID, groupID); err != nil {
			e.warn(sessionID, groupID, "drop left group", err)
		}
		return res, nil

	case ActionJoinApproval:
		if params.Enabled == nil {
			return nil, domain.ErrInvalidParameters
		}
		if md.JoinApprovalMode == *params.Enabled {
			return nil, domain.ErrAlreadyInState
		}
		err = client.GroupJoinApprovalMode(ctx, groupID, *params.Enabled)
		md.JoinApprovalMode = *params.Enabled

	case ActionMemberAddMode:
		var all bool
		switch strings.ToLower(strings.TrimSpace(params.Mode)) {
		case MemberAddModeAdmin:
		case MemberAddModeMembers, "member", "all_member_add":
			all = true
		default:
			return nil, domain.ErrInvalidParameters
		}
		if md.MemberAddMode == all {
			return nil, domain.ErrAlreadyInState
		}
		err = client.GroupMemberAddMode(ctx, groupID, all)
		md.MemberAddMode = all

	case ActionLinkCommunity:
		parent := protocol.Normalize(params.ParentID)
		if !protocol.IsGroup(parent) {
			return nil, domain.ErrInvalidParameters
		}
		if md.LinkedParent == parent {
			return nil, domain.ErrAlreadyInState
		}
		err = client.GroupLinkCommunity(ctx, parent, groupID)
		md.LinkedParent = parent

	default:
		return nil, domain.ErrUnknownAction
	}

	if err != nil {
		return nil, domain.Upstream(err)
	}
	e.refresh(ctx, sessionID, client, groupID, func() error {
		return e.cache.Put(ctx, sessionID, md)
	})
	return res, nil
}

func (e *Executor) participants(ctx context.Context, sessionID string, client protocol.Client, md *domain.GroupMetadata, action string, raw []string) (*Result, error) {
	if len(raw) == 0 {
		return nil, domain.ErrInvalidParameters
	}
	var targets []string
	for _, token := range raw {
		id, err := e.resolve(ctx, sessionID, token)
		if err != nil {
			return nil, err
		}
		member := findMember(md, id)
		switch action {
		case ActionAdd:
			if member != nil {
				continue
			}
		case ActionRemove:
			if member == nil {
				continue
			}
			id = member.ID
		case ActionPromote:
			if member == nil || member.IsAdmin() {
				continue
			}
			id = member.ID
		case ActionDemote:
			if member == nil || !member.IsAdmin() {
				continue
			}
			id = member.ID
		}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return nil, domain.ErrAlreadyInState
	}

	pa := domain.ParticipantAction(action)
	if err := client.GroupParticipantsUpdate(ctx, md.ID, targets, pa); err != nil {
		return nil, domain.Upstream(err)
	}
	e.refresh(ctx, sessionID, client, md.ID, func() error {
		return e.cache.ApplyParticipants(ctx, sessionID, md.ID, pa, targets)
	})
	return &Result{Action: action, GroupID: md.ID, Participants: targets}, nil
}

// resolve turns a user token into a full identity. Bare numbers unknown to
// the contact table are taken as phone numbers.
func (e *Executor) resolve(ctx context.Context, sessionID, token string) (string, error) {
	id, err := e.resolver.Resolve(ctx, sessionID, token)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	digits := strings.TrimLeft(strings.TrimSpace(token), "@+")
	if phone.IsDigits(digits) {
		return protocol.PN(digits), nil
	}
	return "", domain.ErrInvalidParameters
}

// refresh re-reads the group from the server after a mutation. When that
// fails the local change is applied instead.
func (e *Executor) refresh(ctx context.Context, sessionID string, client protocol.Client, groupID string, local func() error) {
	md, err := client.GroupMetadata(ctx, groupID)
	if err == nil && md != nil {
		err = e.cache.Put(ctx, sessionID, md)
		if err == nil {
			return
		}
	}
	if err := local(); err != nil {
		e.warn(sessionID, groupID, "refresh cache", err)
	}
}

func (e *Executor) warn(sessionID, groupID, what string, err error) {
	zap.L().Warn("group action: "+what+" failed",
		zap.String("namespace", "groupaction"),
		zap.String("session", sessionID),
		zap.String("group", groupID),
		zap.Error(err),
	)
}

func findMember(md *domain.GroupMetadata, id string) *domain.Participant {
	for i := range md.Participants {
		if matches(md.Participants[i], id) {
			return &md.Participants[i]
		}
	}
	return nil
}

func matches(p domain.Participant, id string) bool {
	if id == "" {
		return false
	}
	return protocol.SameUser(p.ID, id) || protocol.SameUser(p.PhoneNumber, id) || protocol.SameUser(p.LID, id)
}

func validDuration(secs int64) bool {
	for _, d := range EphemeralDurations {
		if d == secs {
			return true
		}
	}
	return false
}
