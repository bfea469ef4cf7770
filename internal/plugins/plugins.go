// Package plugins holds the built-in commands every tenant gets.
package plugins

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/groupaction"
	"github.com/talkincode/wamux/internal/phone"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/store"
)

const (
	CategorySettings = "settings"
	CategoryUtil     = "util"
	CategoryGroups   = "groups"
)

type Resolver interface {
	Resolve(ctx context.Context, sessionID, raw string) (string, error)
	Both(ctx context.Context, sessionID, id string) (pn, lid string, err error)
}

// Deps are the services the built-in commands act on.
type Deps struct {
	Settings store.SettingsRepository
	Sudo     store.IdentityListRepository
	Ban      store.IdentityListRepository
	Filters  store.FilterRepository
	Resolver Resolver
	Groups   *groupaction.Executor
	Registry *command.Registry
	Started  time.Time
}

// Register adds every built-in command to deps.Registry.
func Register(deps Deps) error {
	if deps.Registry == nil {
		return errors.New("plugins: registry is required")
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	var cmds []*command.Command
	cmds = append(cmds, activityToggles(deps)...)
	cmds = append(cmds, settingsCommands(deps)...)
	cmds = append(cmds, identityCommands(deps)...)
	cmds = append(cmds, filterCommands(deps)...)
	cmds = append(cmds, utilCommands(deps)...)
	if deps.Groups != nil {
		cmds = append(cmds, groupCommands(deps)...)
	}
	for _, c := range cmds {
		if err := deps.Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func code(s string) string {
	return "```" + s + "```"
}

// target picks the user a command acts on: the quoted sender, then the
// first mention, then the argument text.
func target(ctx context.Context, r Resolver, req *command.Request) (string, error) {
	msg := req.Message
	if msg.Quoted != nil && msg.Quoted.Sender != "" {
		return protocol.Normalize(msg.Quoted.Sender), nil
	}
	if len(msg.Mentions) > 0 {
		return protocol.Normalize(msg.Mentions[0]), nil
	}
	arg := strings.TrimSpace(req.Args)
	if arg == "" {
		return "", nil
	}
	if f := strings.Fields(arg); len(f) > 0 {
		arg = f[0]
	}
	id, err := r.Resolve(ctx, msg.SessionID, arg)
	if err != nil || id != "" {
		return id, err
	}
	digits := strings.TrimLeft(arg, "@+")
	if phone.IsDigits(digits) {
		return protocol.PN(digits), nil
	}
	return "", nil
}

// contact returns the pn and lid forms of id. Identities known only by lid
// are keyed by the lid.
func contact(ctx context.Context, r Resolver, sessionID, id string) (pn, lid string, err error) {
	pn, lid, err = r.Both(ctx, sessionID, id)
	if err != nil {
		return "", "", err
	}
	if pn == "" {
		pn = lid
	}
	if pn == "" {
		pn = protocol.Normalize(id)
	}
	return pn, lid, nil
}
