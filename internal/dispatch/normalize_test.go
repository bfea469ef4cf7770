package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestExtractText(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"extended wins", &waE2E.Message{
			Conversation:        proto.String("plain"),
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("ext")},
		}, "ext"},
		{"conversation", &waE2E.Message{Conversation: proto.String("plain")}, "plain"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("cap")}}, "cap"},
		{"list description", &waE2E.Message{ListMessage: &waE2E.ListMessage{Description: proto.String("list")}}, "list"},
		{"edited", &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
			EditedMessage: &waE2E.Message{Conversation: proto.String("fixed")},
		}}, "fixed"},
		{"ephemeral wrapper", &waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{Conversation: proto.String("inner")},
		}}, "inner"},
		{"empty", &waE2E.Message{}, ""},
	}
	for _, c := range cases {
		if got := ExtractText(c.msg); got != c.want {
			t.Errorf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}

func TestClassify(t *testing.T) {
	long := strings.Repeat("x", 51)
	cases := []struct {
		msg  *waE2E.Message
		text string
		want command.Kind
	}{
		{&waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{}}, "", command.KindProtocol},
		{&waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{}}, "", command.KindButtonResponse},
		{&waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "", command.KindSticker},
		{&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "caption", command.KindMedia},
		{&waE2E.Message{}, "ping now", command.KindCommand},
		{&waE2E.Message{}, long, command.KindText},
		{&waE2E.Message{}, "", command.KindUnknown},
	}
	for i, c := range cases {
		if got := Classify(c.msg, c.text); got != c.want {
			t.Errorf("case %d: got %s want %s", i, got, c.want)
		}
	}
}

func TestNormalizeSender(t *testing.T) {
	self := protocol.SelfInfo{PN: "100:3@s.whatsapp.net"}
	content := &waE2E.Message{Conversation: proto.String("hi")}

	group := Normalize("s", self, &protocol.Message{
		Key:     protocol.MessageKey{ID: "1", RemoteJID: "123@g.us", Participant: "200:1@s.whatsapp.net", ParticipantAlt: "77@lid"},
		Content: content,
	})
	if !group.IsGroup || group.Sender != "200@s.whatsapp.net" || group.SenderAlt != "77@lid" {
		t.Fatalf("group: %+v", group)
	}

	own := Normalize("s", self, &protocol.Message{
		Key:     protocol.MessageKey{ID: "2", RemoteJID: "300@s.whatsapp.net", FromMe: true},
		Content: content,
	})
	if own.Sender != "100@s.whatsapp.net" {
		t.Fatalf("outgoing 1:1 sender must be self, got %q", own.Sender)
	}

	dm := Normalize("s", self, &protocol.Message{
		Key:     protocol.MessageKey{ID: "3", RemoteJID: "300@s.whatsapp.net"},
		Content: content,
	})
	if dm.Sender != "300@s.whatsapp.net" || dm.PushName != "Unknown" {
		t.Fatalf("dm: %+v", dm)
	}
}

func TestNormalizeQuoted(t *testing.T) {
	m := Normalize("s", protocol.SelfInfo{}, &protocol.Message{
		Key: protocol.MessageKey{ID: "1", RemoteJID: "300@s.whatsapp.net"},
		Content: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("kick"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String("Q1"),
				Participant:   proto.String("400@s.whatsapp.net"),
				QuotedMessage: &waE2E.Message{Conversation: proto.String("original")},
				MentionedJID:  []string{"500@s.whatsapp.net"},
			},
		}},
	})
	if m.Quoted == nil || m.Quoted.Sender != "400@s.whatsapp.net" || m.Quoted.Text != "original" {
		t.Fatalf("quoted: %+v", m.Quoted)
	}
	if len(m.Mentions) != 1 {
		t.Fatalf("mentions: %v", m.Mentions)
	}
}

func TestValidate(t *testing.T) {
	if Validate(&command.Message{ID: "1", ChatID: "c", Sender: "s", Kind: command.KindUnknown}) {
		t.Fatal("unknown without text or media must be rejected")
	}
	if !Validate(&command.Message{ID: "1", ChatID: "c", Sender: "s", Kind: command.KindText, Text: "x"}) {
		t.Fatal("text must pass")
	}
	if Validate(&command.Message{ChatID: "c", Sender: "s", Kind: command.KindText, Text: "x"}) {
		t.Fatal("missing id must be rejected")
	}
}

func TestStripPrefix(t *testing.T) {
	if got, ok := StripPrefix("ping", nil); !ok || got != "ping" {
		t.Fatalf("no prefix: %q %v", got, ok)
	}
	if _, ok := StripPrefix("ping", []string{"."}); ok {
		t.Fatal("missing prefix must not match")
	}
	if got, ok := StripPrefix("..!ping x", []string{".", "!"}); !ok || got != "ping x" {
		t.Fatalf("strip all: %q %v", got, ok)
	}
	name, args := SplitCommand("PING  a b")
	if name != "ping" || args != "a b" {
		t.Fatalf("split: %q %q", name, args)
	}
}

func TestGuard(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGuard(5 * time.Second)
	g.now = func() time.Time { return now }
	if g.Seen("a") {
		t.Fatal("first sighting")
	}
	if !g.Seen("a") {
		t.Fatal("duplicate within ttl")
	}
	now = now.Add(6 * time.Second)
	if g.Seen("a") {
		t.Fatal("expired key is new again")
	}
	now = now.Add(6 * time.Second)
	if g.Sweep() != 1 || g.Len() != 0 {
		t.Fatal("sweep")
	}
}
