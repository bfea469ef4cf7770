package automation

import (
	"context"
	"strings"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
)

type FilterSource interface {
	Enabled(ctx context.Context, sessionID string) (bool, error)
	Get(ctx context.Context, sessionID, keyword string) (*domain.Filter, error)
}

// Filters replies to messages whose whole text matches a stored keyword.
type Filters struct {
	filters FilterSource
}

func NewFilters(filters FilterSource) *Filters {
	return &Filters{filters: filters}
}

func (f *Filters) Command() *command.Command {
	return &command.Command{Pattern: "filters", Passive: true, Exec: f.Handle}
}

func (f *Filters) Handle(ctx context.Context, req *command.Request) error {
	msg := req.Message
	text := strings.TrimSpace(msg.Text)
	if msg.FromMe || text == "" {
		return nil
	}
	on, err := f.filters.Enabled(ctx, msg.SessionID)
	if err != nil || !on {
		return err
	}
	rule, err := f.filters.Get(ctx, msg.SessionID, text)
	if err != nil || rule == nil {
		return err
	}
	return req.Reply(ctx, rule.Reply)
}
