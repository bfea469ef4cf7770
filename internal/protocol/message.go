package protocol

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageKey addresses one stanza. The Alt fields carry the other identity
// form of the chat or participant when the server supplied it.
type MessageKey struct {
	ID             string `json:"id"`
	RemoteJID      string `json:"remoteJid"`
	RemoteJIDAlt   string `json:"remoteJidAlt,omitempty"`
	Participant    string `json:"participant,omitempty"`
	ParticipantAlt string `json:"participantAlt,omitempty"`
	FromMe         bool   `json:"fromMe"`
}

// Message is one raw inbound or outbound message.
type Message struct {
	Key       MessageKey
	PushName  string
	Timestamp time.Time
	Content   *waE2E.Message
}

type envelope struct {
	Key       MessageKey `json:"key"`
	PushName  string     `json:"pushName,omitempty"`
	Timestamp int64      `json:"messageTimestamp"`
	Content   []byte     `json:"message,omitempty"`
}

// Encode serializes m for the message table.
func (m *Message) Encode() (string, error) {
	env := envelope{Key: m.Key, PushName: m.PushName}
	if !m.Timestamp.IsZero() {
		env.Timestamp = m.Timestamp.Unix()
	}
	if m.Content != nil {
		data, err := proto.Marshal(m.Content)
		if err != nil {
			return "", errors.Wrap(err, "marshal message content")
		}
		env.Content = data
	}
	return json.MarshalToString(env)
}

// DecodeMessage is the inverse of Encode.
func DecodeMessage(data string) (*Message, error) {
	var env envelope
	if err := json.UnmarshalFromString(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode message envelope")
	}
	m := &Message{Key: env.Key, PushName: env.PushName}
	if env.Timestamp > 0 {
		m.Timestamp = time.Unix(env.Timestamp, 0)
	}
	if len(env.Content) > 0 {
		m.Content = &waE2E.Message{}
		if err := proto.Unmarshal(env.Content, m.Content); err != nil {
			return nil, errors.Wrap(err, "unmarshal message content")
		}
	}
	return m, nil
}
