package plugins

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupaction"
)

const (
	replyDone       = "```done```"
	replyNeedUser   = "```Provide a number, mention or quote a user.```"
	replyFailed     = "```Failed: the server rejected the request.```"
	replyNoGroup    = "```Failed: group metadata unavailable.```"
	replyEphemeral  = "```Provide a valid time in seconds:\n0 (disable)\n86400 (1 day)\n604800 (7 days)\n7776000 (90 days)```"
	replyAddMode    = "```Sets who can add new members.\n\nUsage:\naddmode admin\naddmode member```"
	replyJoinMode   = "```Sets the group join mode.\n\nUsage:\njoinmode approval\njoinmode open```"
	replyNeedName   = "```Provide a new name```"
	replyNeedDesc   = "```Provide a new description```"
	replyInviteLink = "Group link: "
)

// groupCommand describes one group command backed by a group action.
type groupCommand struct {
	pattern  string
	alias    []string
	action   string
	conflict string
	admin    bool
	params   func(ctx context.Context, deps Deps, req *command.Request) (groupaction.Params, string, error)
	done     func(res *groupaction.Result) string
}

func noParams(context.Context, Deps, *command.Request) (groupaction.Params, string, error) {
	return groupaction.Params{}, "", nil
}

func userParam(ctx context.Context, deps Deps, req *command.Request) (groupaction.Params, string, error) {
	user, err := target(ctx, deps.Resolver, req)
	if err != nil {
		return groupaction.Params{}, "", err
	}
	if user == "" {
		return groupaction.Params{}, replyNeedUser, nil
	}
	return groupaction.Params{Participants: []string{user}}, "", nil
}

func inviteDone(res *groupaction.Result) string {
	return replyInviteLink + res.InviteLink
}

var groupSpecs = []groupCommand{
	{pattern: "add", action: groupaction.ActionAdd, conflict: "Failed: user already in group", admin: true, params: userParam},
	{pattern: "kick", alias: []string{"remove"}, action: groupaction.ActionRemove, conflict: "Failed: user not in group", admin: true, params: userParam},
	{pattern: "kickall", action: groupaction.ActionKickAll, conflict: "Failed: nobody to remove", admin: true, params: noParams},
	{pattern: "promote", action: groupaction.ActionPromote, conflict: "Failed: user not in group or already admin", admin: true, params: userParam},
	{pattern: "demote", action: groupaction.ActionDemote, conflict: "Failed: user not in group or not admin", admin: true, params: userParam},
	{
		pattern: "gname", action: groupaction.ActionName, conflict: "Failed: name unchanged", admin: true,
		params: func(_ context.Context, _ Deps, req *command.Request) (groupaction.Params, string, error) {
			name := strings.TrimSpace(req.Args)
			if name == "" {
				return groupaction.Params{}, replyNeedName, nil
			}
			return groupaction.Params{Subject: name}, "", nil
		},
	},
	{
		pattern: "gdesc", alias: []string{"gsubject"}, action: groupaction.ActionDescription, conflict: "Failed: description unchanged", admin: true,
		params: func(_ context.Context, _ Deps, req *command.Request) (groupaction.Params, string, error) {
			desc := strings.TrimSpace(req.Args)
			if desc == "" {
				return groupaction.Params{}, replyNeedDesc, nil
			}
			return groupaction.Params{Description: desc}, "", nil
		},
	},
	{pattern: "mute", alias: []string{"announce"}, action: groupaction.ActionMute, conflict: "Failed: group already muted", admin: true, params: noParams},
	{pattern: "unmute", alias: []string{"unannounce"}, action: groupaction.ActionUnmute, conflict: "Failed: group already unmuted", admin: true, params: noParams},
	{pattern: "lock", alias: []string{"grouplock"}, action: groupaction.ActionLock, conflict: "Failed: group already locked", admin: true, params: noParams},
	{pattern: "unlock", alias: []string{"groupunlock"}, action: groupaction.ActionUnlock, conflict: "Failed: group already unlocked", admin: true, params: noParams},
	{pattern: "invite", alias: []string{"glink", "gurl"}, action: groupaction.ActionInviteCode, admin: true, params: noParams, done: inviteDone},
	{pattern: "revoke", alias: []string{"resetlink"}, action: groupaction.ActionRevokeInvite, admin: true, params: noParams, done: inviteDone},
	{
		pattern: "ephemeral", alias: []string{"disappear"}, action: groupaction.ActionEphemeral, conflict: "Failed: already set to this duration", admin: true,
		params: func(_ context.Context, _ Deps, req *command.Request) (groupaction.Params, string, error) {
			secs, err := strconv.ParseInt(strings.TrimSpace(req.Args), 10, 64)
			if err != nil {
				return groupaction.Params{}, replyEphemeral, nil
			}
			return groupaction.Params{Duration: secs}, "", nil
		},
	},
	{
		pattern: "addmode", action: groupaction.ActionMemberAddMode, conflict: "Failed: already set to this mode", admin: true,
		params: func(_ context.Context, _ Deps, req *command.Request) (groupaction.Params, string, error) {
			switch strings.ToLower(strings.TrimSpace(req.Args)) {
			case "admin":
				return groupaction.Params{Mode: groupaction.MemberAddModeAdmin}, "", nil
			case "member":
				return groupaction.Params{Mode: groupaction.MemberAddModeMembers}, "", nil
			}
			return groupaction.Params{}, replyAddMode, nil
		},
	},
	{
		pattern: "joinmode", action: groupaction.ActionJoinApproval, conflict: "Failed: already set to this mode", admin: true,
		params: func(_ context.Context, _ Deps, req *command.Request) (groupaction.Params, string, error) {
			var on bool
			switch strings.ToLower(strings.TrimSpace(req.Args)) {
			case "approval":
				on = true
			case "open":
			default:
				return groupaction.Params{}, replyJoinMode, nil
			}
			return groupaction.Params{Enabled: &on}, "", nil
		},
	},
	{pattern: "leave", action: groupaction.ActionLeave, params: noParams, done: func(*groupaction.Result) string { return "" }},
}

func groupCommands(deps Deps) []*command.Command {
	out := make([]*command.Command, 0, len(groupSpecs))
	for _, gc := range groupSpecs {
		gc := gc
		out = append(out, &command.Command{
			Pattern:   gc.pattern,
			Alias:     gc.alias,
			Category:  CategoryGroups,
			GroupOnly: true,
			AdminOnly: gc.admin,
			Exec: func(ctx context.Context, req *command.Request) error {
				return runGroupCommand(ctx, deps, gc, req)
			},
		})
	}
	return out
}

func runGroupCommand(ctx context.Context, deps Deps, gc groupCommand, req *command.Request) error {
	params, usage, err := gc.params(ctx, deps, req)
	if err != nil {
		return err
	}
	if usage != "" {
		return req.Reply(ctx, usage)
	}
	msg := req.Message
	res, err := deps.Groups.Execute(ctx, msg.SessionID, req.Client, msg.ChatID, gc.action, params)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyInState):
		return req.Reply(ctx, code(gc.conflict))
	case errors.Is(err, domain.ErrGroupNotFound):
		return req.Reply(ctx, replyNoGroup)
	case errors.Is(err, domain.ErrInvalidParameters):
		if gc.action == groupaction.ActionEphemeral {
			return req.Reply(ctx, replyEphemeral)
		}
		return req.Reply(ctx, replyNeedUser)
	case errors.Is(err, domain.ErrActionFailed):
		if rerr := req.Reply(ctx, replyFailed); rerr != nil {
			return rerr
		}
		return err
	default:
		return err
	}

	text := replyDone
	if gc.done != nil {
		text = gc.done(res)
	}
	if text == "" {
		return nil
	}
	return req.Reply(ctx, text)
}
