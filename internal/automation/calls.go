package automation

import (
	"context"

	"github.com/talkincode/wamux/internal/protocol"
	"go.uber.org/zap"
)

// CallGuard rejects incoming call offers when auto_reject_calls is on.
type CallGuard struct {
	settings ActivitySource
}

func NewCallGuard(settings ActivitySource) *CallGuard {
	return &CallGuard{settings: settings}
}

// Handle returns the number of rejected calls.
func (g *CallGuard) Handle(ctx context.Context, sessionID string, client protocol.Client, ev *protocol.CallEvent) int {
	if ev == nil || len(ev.Calls) == 0 {
		return 0
	}
	act, err := g.settings.Activity(ctx, sessionID)
	if err != nil {
		zap.L().Warn("call guard settings lookup failed",
			zap.String("namespace", "automation"),
			zap.String("session", sessionID),
			zap.Error(err),
		)
		return 0
	}
	if !act.AutoRejectCalls {
		return 0
	}
	rejected := 0
	for _, call := range ev.Calls {
		kind := "voice"
		if call.IsVideo {
			kind = "video"
		}
		if err := client.RejectCall(ctx, call.From, call.ID); err != nil {
			zap.L().Error("reject call failed",
				zap.String("namespace", "automation"),
				zap.String("session", sessionID),
				zap.String("from", call.From),
				zap.Error(err),
			)
			continue
		}
		rejected++
		zap.L().Info("rejected "+kind+" call",
			zap.String("namespace", "automation"),
			zap.String("session", sessionID),
			zap.String("from", call.From),
		)
	}
	return rejected
}
