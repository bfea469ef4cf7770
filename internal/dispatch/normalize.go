package dispatch

import (
	"strings"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow/proto/waE2E"
)

const maxCommandWord = 50

// Unwrap strips the ephemeral, view-once and caption wrappers around the
// real content.
func Unwrap(m *waE2E.Message) *waE2E.Message {
	for i := 0; m != nil && i < 4; i++ {
		switch {
		case m.GetEphemeralMessage().GetMessage() != nil:
			m = m.GetEphemeralMessage().GetMessage()
		case m.GetViewOnceMessage().GetMessage() != nil:
			m = m.GetViewOnceMessage().GetMessage()
		case m.GetViewOnceMessageV2().GetMessage() != nil:
			m = m.GetViewOnceMessageV2().GetMessage()
		case m.GetDocumentWithCaptionMessage().GetMessage() != nil:
			m = m.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return m
		}
	}
	return m
}

// ExtractText returns the first non-empty display text of m.
func ExtractText(m *waE2E.Message) string {
	return extractText(Unwrap(m), true)
}

func extractText(m *waE2E.Message, recurse bool) string {
	if m == nil {
		return ""
	}
	for _, v := range []string{
		m.GetExtendedTextMessage().GetText(),
		m.GetConversation(),
		m.GetImageMessage().GetCaption(),
		m.GetVideoMessage().GetCaption(),
		m.GetDocumentMessage().GetCaption(),
		m.GetButtonsMessage().GetContentText(),
		m.GetTemplateMessage().GetHydratedTemplate().GetHydratedContentText(),
		m.GetListMessage().GetDescription(),
	} {
		if v != "" {
			return v
		}
	}
	if recurse {
		if edited := m.GetProtocolMessage().GetEditedMessage(); edited != nil {
			return extractText(Unwrap(edited), false)
		}
	}
	return ""
}

// MediaType names the media carried by m, or "".
func MediaType(m *waE2E.Message) string {
	switch {
	case m.GetImageMessage() != nil:
		return "image"
	case m.GetVideoMessage() != nil:
		return "video"
	case m.GetAudioMessage() != nil:
		return "audio"
	case m.GetDocumentMessage() != nil:
		return "document"
	case m.GetStickerMessage() != nil:
		return "sticker"
	}
	return ""
}

// Classify orders protocol > button_response > sticker > media > command > text > unknown.
func Classify(m *waE2E.Message, text string) command.Kind {
	switch {
	case m.GetProtocolMessage() != nil:
		return command.KindProtocol
	case m.GetButtonsResponseMessage() != nil:
		return command.KindButtonResponse
	case m.GetStickerMessage() != nil:
		return command.KindSticker
	case m.GetImageMessage() != nil, m.GetVideoMessage() != nil,
		m.GetAudioMessage() != nil, m.GetDocumentMessage() != nil:
		return command.KindMedia
	}
	if text != "" {
		if isCommandShaped(text) {
			return command.KindCommand
		}
		return command.KindText
	}
	return command.KindUnknown
}

func isCommandShaped(text string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && len([]rune(fields[0])) <= maxCommandWord
}

// contextInfo finds the context info of whichever content field is set.
func contextInfo(m *waE2E.Message) *waE2E.ContextInfo {
	for _, ci := range []*waE2E.ContextInfo{
		m.GetExtendedTextMessage().GetContextInfo(),
		m.GetImageMessage().GetContextInfo(),
		m.GetVideoMessage().GetContextInfo(),
		m.GetAudioMessage().GetContextInfo(),
		m.GetDocumentMessage().GetContextInfo(),
		m.GetStickerMessage().GetContextInfo(),
	} {
		if ci != nil {
			return ci
		}
	}
	return nil
}

// Normalize builds the domain view of raw without any store lookups.
// Sender alternates and the sudo flag are filled in by the pipeline.
func Normalize(sessionID string, self protocol.SelfInfo, raw *protocol.Message) *command.Message {
	content := Unwrap(raw.Content)
	chat := protocol.Normalize(raw.Key.RemoteJID)
	isGroup := protocol.IsGroup(chat)

	sender := chat
	switch {
	case isGroup:
		sender = protocol.Normalize(raw.Key.Participant)
		if sender == "" {
			sender = chat
		}
	case raw.Key.FromMe:
		sender = protocol.Normalize(self.PN)
	}

	text := ExtractText(content)
	msg := &command.Message{
		SessionID: sessionID,
		ID:        raw.Key.ID,
		ChatID:    chat,
		IsGroup:   isGroup,
		FromMe:    raw.Key.FromMe,
		Sender:    sender,
		PushName:  raw.PushName,
		Kind:      Classify(content, text),
		Text:      text,
		MediaType: MediaType(content),
		Timestamp: raw.Timestamp,
		Raw:       raw,
	}
	if msg.PushName == "" {
		msg.PushName = "Unknown"
	}
	if isGroup && raw.Key.ParticipantAlt != "" {
		msg.SenderAlt = protocol.Normalize(raw.Key.ParticipantAlt)
	} else if !isGroup && !raw.Key.FromMe && raw.Key.RemoteJIDAlt != "" {
		msg.SenderAlt = protocol.Normalize(raw.Key.RemoteJIDAlt)
	}

	if ci := contextInfo(content); ci != nil {
		msg.Mentions = append(msg.Mentions, ci.GetMentionedJID()...)
		if ci.GetStanzaID() != "" && ci.GetQuotedMessage() != nil {
			msg.Quoted = &command.Quoted{
				ID:     ci.GetStanzaID(),
				Sender: protocol.Normalize(ci.GetParticipant()),
				Text:   ExtractText(ci.GetQuotedMessage()),
			}
		}
	}
	return msg
}

// Validate rejects messages that cannot be routed.
func Validate(m *command.Message) bool {
	if m.ID == "" || m.ChatID == "" || m.Sender == "" {
		return false
	}
	return !(m.Kind == command.KindUnknown && m.Text == "" && m.MediaType == "")
}

// SplitCommand lower-cases the first word and returns it with the rest.
func SplitCommand(text string) (name, args string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, isSpace)
	if i < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:i]), strings.TrimSpace(text[i:])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// StripPrefix applies the tenant prefix rule. With no prefixes every text is
// eligible. Otherwise the first rune must be a prefix and every leading prefix
// rune is removed.
func StripPrefix(text string, prefixes []string) (string, bool) {
	text = strings.TrimSpace(text)
	if len(prefixes) == 0 {
		return text, true
	}
	set := make(map[rune]bool, len(prefixes))
	for _, p := range prefixes {
		for _, r := range p {
			set[r] = true
		}
	}
	stripped := strings.TrimLeftFunc(text, func(r rune) bool { return set[r] })
	if stripped == text {
		return "", false
	}
	return strings.TrimSpace(stripped), true
}
