package plugins

import (
	"context"
	"strings"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
)

func settingsCommands(deps Deps) []*command.Command {
	return []*command.Command{
		{
			Pattern:     "mode",
			Alias:       []string{"setmode"},
			Category:    CategorySettings,
			Description: "who may run commands: private or public",
			SudoOnly:    true,
			Exec: func(ctx context.Context, req *command.Request) error {
				sid := req.Message.SessionID
				current, err := deps.Settings.Mode(ctx, sid)
				if err != nil {
					return err
				}
				target := domain.Mode(strings.ToLower(strings.TrimSpace(req.Args)))
				switch target {
				case "":
					return req.Reply(ctx, code("Bot is currently in "+string(current)+" mode.\nUsage: mode private | public"))
				case domain.ModePrivate, domain.ModePublic:
				default:
					return req.Reply(ctx, code("Invalid mode. Use: mode private | public"))
				}
				changed, err := deps.Settings.SetMode(ctx, sid, target)
				if err != nil {
					return err
				}
				if !changed {
					return req.Reply(ctx, code("Bot is already in "+string(current)+" mode."))
				}
				return req.Reply(ctx, code("Mode changed: "+string(current)+" ➜ "+string(target)))
			},
		},
		{
			Pattern:     "setprefix",
			Category:    CategorySettings,
			Description: "set the command prefix symbols",
			SudoOnly:    true,
			Exec: func(ctx context.Context, req *command.Request) error {
				symbols := strings.Join(strings.Fields(req.Args), "")
				if symbols == "" {
					return req.Reply(ctx, code("Usage: setprefix <symbols>"))
				}
				if err := deps.Settings.SetPrefix(ctx, req.Message.SessionID, symbols); err != nil {
					return err
				}
				return req.Reply(ctx, code("Prefix set to: "+symbols))
			},
		},
		{
			Pattern:     "delprefix",
			Alias:       []string{"resetprefix"},
			Category:    CategorySettings,
			Description: "run commands without a prefix",
			SudoOnly:    true,
			Exec: func(ctx context.Context, req *command.Request) error {
				if err := deps.Settings.DeletePrefix(ctx, req.Message.SessionID); err != nil {
					return err
				}
				return req.Reply(ctx, code("Prefix removed"))
			},
		},
	}
}
