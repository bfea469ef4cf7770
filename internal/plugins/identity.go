package plugins

import (
	"context"
	"strconv"
	"strings"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

// sendMentions sends text to the chat of req, tagging mentions.
func sendMentions(ctx context.Context, req *command.Request, text string, mentions []string) error {
	var jids []string
	for _, m := range mentions {
		if m != "" {
			jids = append(jids, m)
		}
	}
	_, err := req.Client.SendMessage(ctx, req.Message.ChatID, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: &waE2E.ContextInfo{MentionedJID: jids},
		},
	})
	return err
}

type listTexts struct {
	title, added, removed, already, missing, empty string
}

var (
	sudoTexts = listTexts{
		title:   "*Sudo Users List*",
		added:   "is now sudo user.",
		removed: "is no longer sudo user.",
		already: "User is already Sudo.",
		missing: "User is not a Sudo user.",
		empty:   "No sudo users found.",
	}
	banTexts = listTexts{
		title:   "*Banned Users List*",
		added:   "is now banned.",
		removed: "is no longer banned.",
		already: "User is already banned.",
		missing: "User is not banned.",
		empty:   "No banned users found.",
	}
)

func identityCommands(deps Deps) []*command.Command {
	return []*command.Command{
		listAdd("setsudo", []string{"addsudo"}, deps, deps.Sudo, sudoTexts),
		listRemove("delsudo", []string{"removesudo"}, deps, deps.Sudo, sudoTexts),
		listShow("getsudo", []string{"listsudo", "sudos"}, deps.Sudo, sudoTexts),
		listAdd("ban", nil, deps, deps.Ban, banTexts),
		listRemove("unban", nil, deps, deps.Ban, banTexts),
		listShow("getban", []string{"banlist"}, deps.Ban, banTexts),
	}
}

func listAdd(pattern string, alias []string, deps Deps, list store.IdentityListRepository, t listTexts) *command.Command {
	return &command.Command{
		Pattern:  pattern,
		Alias:    alias,
		Category: CategorySettings,
		SudoOnly: true,
		Exec: func(ctx context.Context, req *command.Request) error {
			sid := req.Message.SessionID
			user, err := target(ctx, deps.Resolver, req)
			if err != nil {
				return err
			}
			if user == "" {
				return req.Reply(ctx, code("Please provide or quote a user."))
			}
			pn, lid, err := contact(ctx, deps.Resolver, sid, user)
			if err != nil {
				return err
			}
			exists, err := list.Contains(ctx, sid, pn, lid)
			if err != nil {
				return err
			}
			if exists {
				return req.Reply(ctx, code(t.already))
			}
			if err := list.Add(ctx, sid, domain.Contact{PN: pn, LID: lid}); err != nil {
				return err
			}
			return sendMentions(ctx, req, code("@"+protocol.UserOf(pn)+" "+t.added), []string{pn, lid})
		},
	}
}

func listRemove(pattern string, alias []string, deps Deps, list store.IdentityListRepository, t listTexts) *command.Command {
	return &command.Command{
		Pattern:  pattern,
		Alias:    alias,
		Category: CategorySettings,
		SudoOnly: true,
		Exec: func(ctx context.Context, req *command.Request) error {
			sid := req.Message.SessionID
			user, err := target(ctx, deps.Resolver, req)
			if err != nil {
				return err
			}
			if user == "" {
				return req.Reply(ctx, code("Please provide or quote a user."))
			}
			pn, lid, err := contact(ctx, deps.Resolver, sid, user)
			if err != nil {
				return err
			}
			removed := false
			for _, id := range []string{pn, lid} {
				if id == "" {
					continue
				}
				ok, err := list.Remove(ctx, sid, id)
				if err != nil {
					return err
				}
				removed = removed || ok
			}
			if !removed {
				return req.Reply(ctx, code(t.missing))
			}
			return sendMentions(ctx, req, code("@"+protocol.UserOf(pn)+" "+t.removed), []string{pn, lid})
		},
	}
}

func listShow(pattern string, alias []string, list store.IdentityListRepository, t listTexts) *command.Command {
	return &command.Command{
		Pattern:  pattern,
		Alias:    alias,
		Category: CategorySettings,
		SudoOnly: true,
		Exec: func(ctx context.Context, req *command.Request) error {
			rows, err := list.List(ctx, req.Message.SessionID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return req.Reply(ctx, code(t.empty))
			}
			var sb strings.Builder
			sb.WriteString(t.title + "\n\n")
			var mentions []string
			for i, c := range rows {
				sb.WriteString(strconv.Itoa(i+1) + ". @" + protocol.UserOf(c.PN) + "\n")
				mentions = append(mentions, c.PN, c.LID)
			}
			return sendMentions(ctx, req, strings.TrimSpace(sb.String()), mentions)
		},
	}
}
