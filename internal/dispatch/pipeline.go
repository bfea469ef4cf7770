// Package dispatch routes inbound messages through normalization, command
// execution and the passive handlers.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.uber.org/zap"
)

const (
	ReplySudoOnly  = "```this is for sudo users only!```"
	ReplyGroupOnly = "```this command is for groups only!```"
	ReplyAdminOnly = "```this command requires group admin privileges!```"
)

// Command results reported to the Observer.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDenied  = "denied"
	ResultIgnored = "ignored"
)

type Settings interface {
	Mode(ctx context.Context, sessionID string) (domain.Mode, error)
	Prefix(ctx context.Context, sessionID string) ([]string, error)
}

type IdentitySet interface {
	Contains(ctx context.Context, sessionID string, ids ...string) (bool, error)
}

type Alternates interface {
	AlternateOf(ctx context.Context, sessionID, id string) (string, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, sessionID, groupID string, ids ...string) (bool, error)
}

// Observer receives per-message outcomes, typically for metrics.
type Observer interface {
	MessageClassified(kind command.Kind)
	CommandFinished(name, result string)
}

type Deps struct {
	Registry   *command.Registry
	Settings   Settings
	Sudo       IdentitySet
	Ban        IdentitySet
	Alternates Alternates
	Groups     AdminChecker
	Guard      *Guard
	Observer   Observer
}

// Pipeline is safe for concurrent use by every tenant.
type Pipeline struct {
	Deps
	pool *ants.Pool
}

func New(deps Deps, workers int) (*Pipeline, error) {
	if deps.Registry == nil || deps.Settings == nil {
		return nil, errors.New("dispatch: registry and settings are required")
	}
	if deps.Guard == nil {
		deps.Guard = NewGuard(0)
	}
	if workers <= 0 {
		workers = 256
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		zap.S().Errorf("dispatch worker panic: %v\n%s", p, debug.Stack())
	}))
	if err != nil {
		return nil, errors.Wrap(err, "dispatch pool")
	}
	return &Pipeline{Deps: deps, pool: pool}, nil
}

func (p *Pipeline) Release() {
	p.pool.Release()
}

// Dispatch processes one upsert batch concurrently and returns once every
// message has been handled. Only live deliveries are dispatched.
func (p *Pipeline) Dispatch(ctx context.Context, sessionID string, client protocol.Client, ev *protocol.MessagesUpsert) {
	if ev == nil || ev.Type != protocol.UpsertNotify {
		return
	}
	var wg sync.WaitGroup
	for _, raw := range ev.Messages {
		if raw == nil || raw.Content == nil {
			continue
		}
		raw := raw
		wg.Add(1)
		task := func() {
			defer wg.Done()
			p.Handle(ctx, sessionID, client, raw)
		}
		if err := p.pool.Submit(task); err != nil {
			zap.L().Warn("dispatch pool rejected task, running inline",
				zap.String("namespace", "dispatch"),
				zap.String("session", sessionID),
				zap.Error(err),
			)
			task()
		}
	}
	wg.Wait()
}

// Handle runs the full pipeline for one message. Errors never escape.
func (p *Pipeline) Handle(ctx context.Context, sessionID string, client protocol.Client, raw *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("dispatch panic session=%s message=%s: %v\n%s", sessionID, raw.Key.ID, r, debug.Stack())
		}
	}()

	msg := Normalize(sessionID, client.Self(), raw)
	if !Validate(msg) {
		return
	}
	p.enrich(ctx, msg)
	if p.Observer != nil {
		p.Observer.MessageClassified(msg.Kind)
	}

	if msg.Kind == command.KindCommand {
		p.runCommand(ctx, client, msg)
	}
	p.runPassive(ctx, client, msg)
}

func (p *Pipeline) enrich(ctx context.Context, msg *command.Message) {
	if msg.SenderAlt == "" && p.Alternates != nil {
		alt, err := p.Alternates.AlternateOf(ctx, msg.SessionID, msg.Sender)
		if err != nil {
			zap.L().Debug("alternate lookup failed",
				zap.String("namespace", "dispatch"),
				zap.String("session", msg.SessionID),
				zap.Error(err),
			)
		}
		msg.SenderAlt = alt
	}
	if p.Sudo != nil {
		ok, err := p.Sudo.Contains(ctx, msg.SessionID, msg.Identities()...)
		if err != nil {
			zap.L().Warn("sudo lookup failed",
				zap.String("namespace", "dispatch"),
				zap.String("session", msg.SessionID),
				zap.Error(err),
			)
		}
		msg.IsSudo = ok
	}
}

func (p *Pipeline) runCommand(ctx context.Context, client protocol.Client, msg *command.Message) {
	prefixes, err := p.Settings.Prefix(ctx, msg.SessionID)
	if err != nil {
		zap.L().Warn("prefix lookup failed",
			zap.String("namespace", "dispatch"),
			zap.String("session", msg.SessionID),
			zap.Error(err),
		)
		return
	}
	body, ok := StripPrefix(msg.Text, prefixes)
	if !ok {
		return
	}
	name, args := SplitCommand(body)
	if name == "" {
		return
	}
	cmd := p.Registry.Find(name)
	if cmd == nil {
		return
	}

	req := &command.Request{Message: msg, Client: client, Args: args}
	result, reply := p.gate(ctx, cmd, msg)
	switch {
	case reply != "":
		if err := req.Reply(ctx, reply); err != nil {
			zap.L().Warn("permission reply failed",
				zap.String("namespace", "dispatch"),
				zap.String("session", msg.SessionID),
				zap.Error(err),
			)
		}
	case result == "":
		result = p.exec(ctx, cmd, req)
	}
	if p.Observer != nil {
		p.Observer.CommandFinished(cmd.Pattern, result)
	}
}

// gate evaluates the permission checks in order. A non-empty result means
// the command must not run; reply is the notice to send, if any.
func (p *Pipeline) gate(ctx context.Context, cmd *command.Command, msg *command.Message) (result, reply string) {
	if !msg.IsSudo && p.Ban != nil {
		banned, err := p.Ban.Contains(ctx, msg.SessionID, msg.Identities()...)
		if err != nil || banned {
			return ResultIgnored, ""
		}
	}
	mode, err := p.Settings.Mode(ctx, msg.SessionID)
	if err != nil {
		return ResultIgnored, ""
	}
	if mode == domain.ModePrivate && !msg.IsSudo {
		return ResultIgnored, ""
	}
	if cmd.SudoOnly && !msg.IsSudo {
		return ResultDenied, ReplySudoOnly
	}
	if cmd.GroupOnly && !msg.IsGroup {
		return ResultDenied, ReplyGroupOnly
	}
	if cmd.AdminOnly && msg.IsGroup {
		admin := false
		if p.Groups != nil {
			admin, err = p.Groups.IsAdmin(ctx, msg.SessionID, msg.ChatID, msg.Identities()...)
			if err != nil {
				zap.L().Warn("admin lookup failed",
					zap.String("namespace", "dispatch"),
					zap.String("session", msg.SessionID),
					zap.String("group", msg.ChatID),
					zap.Error(err),
				)
			}
		}
		if !admin {
			return ResultDenied, ReplyAdminOnly
		}
	}
	return "", ""
}

func (p *Pipeline) exec(ctx context.Context, cmd *command.Command, req *command.Request) (result string) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("command %s panic: %v\n%s", cmd.Pattern, r, debug.Stack())
			result = ResultError
		}
	}()
	if err := cmd.Exec(ctx, req); err != nil {
		zap.L().Error("command failed",
			zap.String("namespace", "dispatch"),
			zap.String("session", req.Message.SessionID),
			zap.String("command", cmd.Pattern),
			zap.Error(err),
		)
		return ResultError
	}
	return ResultOK
}

func (p *Pipeline) runPassive(ctx context.Context, client protocol.Client, msg *command.Message) {
	if p.Guard.Seen(msg.SessionID + ":" + msg.ID) {
		return
	}
	for i, h := range p.Registry.Passive() {
		if h.SudoOnly && !msg.IsSudo {
			continue
		}
		name := h.Pattern
		if name == "" {
			name = fmt.Sprintf("passive#%d", i)
		}
		p.runHandler(ctx, name, h, &command.Request{Message: msg, Client: client, Args: msg.Text})
	}
}

func (p *Pipeline) runHandler(ctx context.Context, name string, h *command.Command, req *command.Request) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Errorf("passive handler %s panic: %v\n%s", name, r, debug.Stack())
		}
	}()
	if err := h.Exec(ctx, req); err != nil {
		zap.L().Error("passive handler failed",
			zap.String("namespace", "dispatch"),
			zap.String("session", req.Message.SessionID),
			zap.String("handler", name),
			zap.Error(err),
		)
	}
}
