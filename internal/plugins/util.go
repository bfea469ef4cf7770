package plugins

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/talkincode/wamux/internal/command"
)

func utilCommands(deps Deps) []*command.Command {
	return []*command.Command{
		{
			Pattern:  "ping",
			Alias:    []string{"speed"},
			Category: CategoryUtil,
			Exec: func(ctx context.Context, req *command.Request) error {
				start := time.Now()
				if err := req.Reply(ctx, code("pong")); err != nil {
					return err
				}
				ms := time.Since(start).Milliseconds()
				return req.Reply(ctx, code(strconv.FormatInt(ms, 10)+" ms"))
			},
		},
		{
			Pattern:  "runtime",
			Alias:    []string{"uptime"},
			Category: CategoryUtil,
			Exec: func(ctx context.Context, req *command.Request) error {
				return req.Reply(ctx, code(formatUptime(time.Since(deps.Started))))
			},
		},
		{
			Pattern: "menu",
			Alias:   []string{"help"},
			Hidden:  true,
			Exec: func(ctx context.Context, req *command.Request) error {
				return req.Reply(ctx, Menu(deps.Registry))
			},
		},
	}
}

// Menu renders the visible commands grouped by category.
func Menu(reg *command.Registry) string {
	cmds := reg.All()
	if len(cmds) == 0 {
		return code("No commands available")
	}
	var sb strings.Builder
	sb.WriteString("MENU\n\n")
	category := ""
	for _, c := range cmds {
		if c.Category != category {
			if category != "" {
				sb.WriteString("\n")
			}
			category = c.Category
			sb.WriteString(strings.ToUpper(category) + "\n")
		}
		sb.WriteString(". " + c.Pattern)
		if len(c.Alias) > 0 {
			sb.WriteString(" (" + strings.Join(c.Alias, ", ") + ")")
		}
		sb.WriteString("\n")
	}
	return code(strings.TrimSpace(sb.String()))
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	s := (d - m*time.Minute) / time.Second
	parts := []string{}
	if days > 0 {
		parts = append(parts, strconv.Itoa(int(days))+"d")
	}
	if h > 0 {
		parts = append(parts, strconv.Itoa(int(h))+"h")
	}
	if m > 0 {
		parts = append(parts, strconv.Itoa(int(m))+"m")
	}
	parts = append(parts, strconv.Itoa(int(s))+"s")
	return strings.Join(parts, " ")
}
