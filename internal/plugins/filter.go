package plugins

import (
	"context"
	"strings"

	"github.com/talkincode/wamux/internal/command"
)

func filterCommands(deps Deps) []*command.Command {
	return []*command.Command{
		{
			Pattern:  "filter",
			Category: CategoryUtil,
			SudoOnly: true,
			Exec: func(ctx context.Context, req *command.Request) error {
				switch strings.ToLower(strings.TrimSpace(req.Args)) {
				case "on":
					if err := deps.Filters.SetEnabled(ctx, req.Message.SessionID, true); err != nil {
						return err
					}
					return req.Reply(ctx, code("Filter enabled"))
				case "off":
					if err := deps.Filters.SetEnabled(ctx, req.Message.SessionID, false); err != nil {
						return err
					}
					return req.Reply(ctx, code("Filter disabled"))
				}
				return req.Reply(ctx, code("Usage: filter on|off"))
			},
		},
		{
			Pattern:  "setfilter",
			Category: CategoryUtil,
			SudoOnly: true,
			Exec: func(ctx context.Context, req *command.Request) error {
				parts := strings.Split(req.Args, "|")
				if len(parts) != 2 {
					return req.Reply(ctx, code("Usage: setfilter <trigger> | <reply>"))
				}
				trigger, reply := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
				if trigger == "" || reply == "" {
					return req.Reply(ctx, code("Usage: setfilter <trigger> | <reply>"))
				}
				if err := deps.Filters.Set(ctx, req.Message.SessionID, trigger, reply); err != nil {
					return err
				}
				return req.Reply(ctx, code("Filter set: "+trigger))
			},
		},
		{
			Pattern:  "getfilter",
			Alias:    []string{"filters"},
			Category: CategoryUtil,
			Exec: func(ctx context.Context, req *command.Request) error {
				rules, err := deps.Filters.List(ctx, req.Message.SessionID)
				if err != nil {
					return err
				}
				if len(rules) == 0 {
					return req.Reply(ctx, code("No filters found"))
				}
				var sb strings.Builder
				sb.WriteString("Filters:\n")
				for _, r := range rules {
					status := "Inactive"
					if r.Status {
						status = "Active"
					}
					sb.WriteString("Trigger: " + r.Keyword + "\nReply: " + r.Reply + "\nStatus: " + status + "\n\n")
				}
				return req.Reply(ctx, code(sb.String()))
			},
		},
		{
			Pattern:  "delfilter",
			Category: CategoryUtil,
			SudoOnly: true,
			Exec: func(ctx context.Context, req *command.Request) error {
				trigger := strings.TrimSpace(req.Args)
				if trigger == "" {
					return req.Reply(ctx, code("Usage: delfilter <trigger>"))
				}
				removed, err := deps.Filters.Delete(ctx, req.Message.SessionID, trigger)
				if err != nil {
					return err
				}
				if !removed {
					return req.Reply(ctx, code("No filter for: "+trigger))
				}
				return req.Reply(ctx, code("Filter deleted: "+trigger))
			},
		},
	}
}
