package command

import (
	"time"

	"github.com/talkincode/wamux/internal/protocol"
)

// Kind is the classification of a normalized message.
type Kind string

const (
	KindProtocol       Kind = "protocol"
	KindButtonResponse Kind = "button_response"
	KindSticker        Kind = "sticker"
	KindMedia          Kind = "media"
	KindCommand        Kind = "command"
	KindText           Kind = "text"
	KindUnknown        Kind = "unknown"
)

// Quoted is the message a reply refers to.
type Quoted struct {
	ID     string
	Sender string
	Text   string
}

// Message is an inbound message normalized for commands and handlers.
type Message struct {
	SessionID string
	ID        string
	ChatID    string
	IsGroup   bool
	FromMe    bool
	Sender    string
	SenderAlt string
	PushName  string
	Kind      Kind
	Text      string
	MediaType string
	Mentions  []string
	Quoted    *Quoted
	IsSudo    bool
	Timestamp time.Time
	Raw       *protocol.Message
}

// Identities returns the sender in every known form.
func (m *Message) Identities() []string {
	if m.SenderAlt == "" {
		return []string{m.Sender}
	}
	return []string{m.Sender, m.SenderAlt}
}
