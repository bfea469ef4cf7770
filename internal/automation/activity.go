// Package automation implements the per-tenant automations that run on
// every message and call: presence simulation, anti-spam, call rejection,
// deleted-message recovery and keyword filters.
package automation

import (
	"context"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.uber.org/zap"
)

const (
	WarnGroup    = "```⚠️ Warning: Stop spamming or you will be kicked from this group!```"
	WarnPrivate  = "```⚠️ Hey, stop the spam or you will be blocked!```"
	KickedNotice = "```🚫 You have been kicked from this group for spamming.```"
	BlockNotice  = "```🚫 You have been blocked for spamming.```"
)

type ActivitySource interface {
	Activity(ctx context.Context, sessionID string) (domain.ActivitySettings, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, sessionID, groupID string, ids ...string) (bool, error)
}

// SpamObserver is notified of warn and punish actions.
type SpamObserver interface {
	SpamAction(action string)
}

// Activity is the passive handler behind the activity toggles.
type Activity struct {
	settings ActivitySource
	groups   AdminChecker
	spam     *SpamTracker
	observer SpamObserver
}

func NewActivity(settings ActivitySource, groups AdminChecker, spam *SpamTracker, observer SpamObserver) *Activity {
	return &Activity{settings: settings, groups: groups, spam: spam, observer: observer}
}

// Command wraps the handler for registration.
func (a *Activity) Command() *command.Command {
	return &command.Command{Pattern: "activity", Passive: true, Exec: a.Handle}
}

func (a *Activity) Handle(ctx context.Context, req *command.Request) error {
	msg, client := req.Message, req.Client
	act, err := a.settings.Activity(ctx, msg.SessionID)
	if err != nil {
		return err
	}
	if act.AutoReadMessages && !msg.FromMe {
		if err := client.MarkRead(ctx, msg.ChatID, senderForReceipt(msg), []string{msg.ID}, msg.Timestamp); err != nil {
			a.warn(msg, "mark read", err)
		}
	}
	if act.AutoTyping {
		if err := client.SendPresence(ctx, msg.ChatID, protocol.PresenceComposing); err != nil {
			a.warn(msg, "typing presence", err)
		}
	}
	if act.AutoRecording {
		if err := client.SendPresence(ctx, msg.ChatID, protocol.PresenceRecording); err != nil {
			a.warn(msg, "recording presence", err)
		}
	}
	if act.AutoAlwaysOnline {
		if err := client.SendPresence(ctx, "", protocol.PresenceAvailable); err != nil {
			a.warn(msg, "online presence", err)
		}
	}
	if act.AutoAntispam {
		return a.antispam(ctx, req)
	}
	return nil
}

func (a *Activity) antispam(ctx context.Context, req *command.Request) error {
	msg, client := req.Message, req.Client
	if msg.FromMe || msg.IsSudo || a.spam == nil {
		return nil
	}
	if msg.IsGroup {
		self := client.Self()
		botAdmin, err := a.groups.IsAdmin(ctx, msg.SessionID, msg.ChatID, self.PN, self.LID)
		if err != nil || !botAdmin {
			return err
		}
		senderAdmin, err := a.groups.IsAdmin(ctx, msg.SessionID, msg.ChatID, msg.Identities()...)
		if err != nil || senderAdmin {
			return err
		}
	}

	switch a.spam.Observe(msg.SessionID, msg.Sender) {
	case VerdictWarn:
		a.observe("warn")
		if msg.IsGroup {
			return req.Reply(ctx, WarnGroup)
		}
		return req.Reply(ctx, WarnPrivate)
	case VerdictPunish:
		if msg.IsGroup {
			a.observe("kick")
			if err := req.Reply(ctx, KickedNotice); err != nil {
				a.warn(msg, "kick notice", err)
			}
			err := client.GroupParticipantsUpdate(ctx, msg.ChatID, []string{msg.Sender}, domain.ParticipantsRemove)
			if err != nil {
				zap.L().Error("antispam kick failed",
					zap.String("namespace", "automation"),
					zap.String("session", msg.SessionID),
					zap.String("group", msg.ChatID),
					zap.String("sender", msg.Sender),
					zap.Error(err),
				)
			}
			return nil
		}
		a.observe("block")
		if err := req.Reply(ctx, BlockNotice); err != nil {
			a.warn(msg, "block notice", err)
		}
		return client.UpdateBlockStatus(ctx, msg.Sender, true)
	}
	return nil
}

func (a *Activity) observe(action string) {
	if a.observer != nil {
		a.observer.SpamAction(action)
	}
}

func (a *Activity) warn(msg *command.Message, what string, err error) {
	zap.L().Warn("activity "+what+" failed",
		zap.String("namespace", "automation"),
		zap.String("session", msg.SessionID),
		zap.Error(err),
	)
}

func senderForReceipt(msg *command.Message) string {
	if msg.IsGroup {
		return msg.Sender
	}
	return ""
}
