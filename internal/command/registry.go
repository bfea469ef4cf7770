// Package command holds the process-wide command registry and the types
// commands are written against.
package command

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/talkincode/wamux/internal/protocol"
	"golang.org/x/text/cases"
)

// Exec runs a command. Returned errors are logged by the caller.
type Exec func(ctx context.Context, req *Request) error

// Command is a named action users trigger by text, or a passive handler
// that sees every message.
type Command struct {
	Pattern     string
	Alias       []string
	Category    string
	Description string

	Passive   bool
	GroupOnly bool
	AdminOnly bool
	SudoOnly  bool
	Hidden    bool

	Exec Exec
}

// Request is the invocation context of a command.
type Request struct {
	Message *Message
	Client  protocol.Client
	Args    string
}

// Reply sends text to the chat of the request, quoting the message.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Client.SendText(ctx, r.Message.ChatID, text, r.Message.Raw)
	return err
}

// Registry is built once at startup and shared read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	commands []*Command
	index    map[string]*Command
	passive  []*Command
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]*Command)}
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Register adds cmd. Names and aliases must be unique.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Exec == nil {
		return errors.New("command without exec")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cmd.Passive {
		r.passive = append(r.passive, cmd)
		return nil
	}
	names := append([]string{cmd.Pattern}, cmd.Alias...)
	for _, n := range names {
		key := fold(n)
		if key == "" {
			return errors.Errorf("command %q has an empty name", cmd.Pattern)
		}
		if _, dup := r.index[key]; dup {
			return errors.Errorf("command name %q already registered", key)
		}
	}
	for _, n := range names {
		r.index[fold(n)] = cmd
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// MustRegister panics on a registration error.
func (r *Registry) MustRegister(cmds ...*Command) {
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Find looks token up by pattern or alias, ignoring case.
func (r *Registry) Find(token string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index[fold(token)]
}

// Passive returns passive handlers in registration order.
func (r *Registry) Passive() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command(nil), r.passive...)
}

// All returns the visible commands sorted by category then pattern.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	out := make([]*Command, 0, len(r.commands))
	for _, c := range r.commands {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}
