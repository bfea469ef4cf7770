package plugins

import (
	"context"
	"strings"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/store"
)

type toggle struct {
	pattern string
	label   string
	column  string
}

var toggles = []toggle{
	{"readmessages", "Auto Read Messages", "auto_read_messages"},
	{"antidelete", "Anti Delete", "auto_recover_deleted_messages"},
	{"antispam", "Anti Spam", "auto_antispam"},
	{"typing", "Auto Typing", "auto_typing"},
	{"recording", "Auto Recording", "auto_recording"},
	{"anticall", "Anti Call", "auto_reject_calls"},
	{"online", "Always Online", "auto_always_online"},
}

func activityToggles(deps Deps) []*command.Command {
	out := make([]*command.Command, 0, len(toggles))
	for _, t := range toggles {
		t := t
		out = append(out, &command.Command{
			Pattern:     t.pattern,
			Category:    CategorySettings,
			Description: "toggle " + strings.ToLower(t.label),
			SudoOnly:    true,
			Exec: func(ctx context.Context, req *command.Request) error {
				return runToggle(ctx, deps, t, req)
			},
		})
	}
	return out
}

func state(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// runToggle flips the toggle without an argument and sets it with on|off.
// antidelete also accepts a coverage mode after "on".
func runToggle(ctx context.Context, deps Deps, t toggle, req *command.Request) error {
	sid := req.Message.SessionID
	act, err := deps.Settings.Activity(ctx, sid)
	if err != nil {
		return err
	}
	current, _ := act.Get(t.column)

	args := strings.Fields(strings.ToLower(req.Args))
	if len(args) == 0 {
		if err := deps.Settings.SetActivity(ctx, sid, t.column, !current); err != nil {
			return err
		}
		return req.Reply(ctx, code(t.label+" "+state(!current)))
	}

	var want bool
	switch args[0] {
	case "on":
		want = true
	case "off":
	default:
		return req.Reply(ctx, code("Usage: "+t.pattern+" [on|off]\nCurrent: "+state(current)))
	}

	if t.column == "auto_recover_deleted_messages" && want && len(args) > 1 {
		mode := store.AntideleteMode(args[1])
		if !mode.Valid() {
			return req.Reply(ctx, code("Invalid mode. Use: all, groups, p2p"))
		}
		if err := deps.Settings.SetAntideleteMode(ctx, sid, mode); err != nil {
			return err
		}
		if current {
			return req.Reply(ctx, code(t.label+" mode set to "+string(mode)))
		}
	}

	if current == want {
		return req.Reply(ctx, code(t.label+" is already "+state(want)))
	}
	if err := deps.Settings.SetActivity(ctx, sid, t.column, want); err != nil {
		return err
	}
	return req.Reply(ctx, code(t.label+" "+state(want)))
}
