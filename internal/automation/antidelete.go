package automation

import (
	"context"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type AntideleteSettings interface {
	ActivitySource
	AntideleteMode(ctx context.Context, sessionID string) (store.AntideleteMode, error)
}

type MessageSource interface {
	Get(ctx context.Context, sessionID, id string) (*domain.StoredMessage, error)
}

// Antidelete forwards the stored copy of a revoked message to the account's
// own chat.
type Antidelete struct {
	settings AntideleteSettings
	messages MessageSource
}

func NewAntidelete(settings AntideleteSettings, messages MessageSource) *Antidelete {
	return &Antidelete{settings: settings, messages: messages}
}

// Handle returns the number of recovered messages.
func (a *Antidelete) Handle(ctx context.Context, sessionID string, client protocol.Client, ev *protocol.MessagesDelete) int {
	if ev == nil || len(ev.Keys) == 0 {
		return 0
	}
	act, err := a.settings.Activity(ctx, sessionID)
	if err != nil || !act.AutoRecoverDeletedMessages {
		return 0
	}
	mode, err := a.settings.AntideleteMode(ctx, sessionID)
	if err != nil {
		return 0
	}
	self := client.Self().PN
	if self == "" {
		return 0
	}

	recovered := 0
	for _, key := range ev.Keys {
		if key.FromMe || !mode.Covers(protocol.IsGroup(key.RemoteJID)) {
			continue
		}
		row, err := a.messages.Get(ctx, sessionID, key.ID)
		if err != nil {
			zap.L().Debug("deleted message not in store",
				zap.String("namespace", "automation"),
				zap.String("session", sessionID),
				zap.String("message", key.ID),
			)
			continue
		}
		stored, err := protocol.DecodeMessage(row.Payload)
		if err != nil || stored.Content == nil {
			continue
		}
		if _, err := client.SendMessage(ctx, self, forwarded(stored.Content)); err != nil {
			zap.L().Error("antidelete forward failed",
				zap.String("namespace", "automation"),
				zap.String("session", sessionID),
				zap.String("message", key.ID),
				zap.Error(err),
			)
			continue
		}
		recovered++
	}
	return recovered
}

// forwarded turns plain text into an extended text so it can carry context,
// and clears the forwarding marks on the content.
func forwarded(content *waE2E.Message) *waE2E.Message {
	msg := proto.Clone(content).(*waE2E.Message)
	if text := msg.GetConversation(); text != "" {
		msg.Conversation = nil
		msg.ExtendedTextMessage = &waE2E.ExtendedTextMessage{Text: proto.String(text)}
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		if ext.ContextInfo == nil {
			ext.ContextInfo = &waE2E.ContextInfo{}
		}
		ext.ContextInfo.IsForwarded = proto.Bool(false)
		ext.ContextInfo.ForwardingScore = proto.Uint32(0)
	}
	return msg
}
