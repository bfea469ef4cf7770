package whatsapp

import (
	"testing"
	"time"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/protocol"
	"go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestCloseReasons(t *testing.T) {
	c := &Client{sessionID: "session_1"}
	cases := []struct {
		evt  interface{}
		want protocol.CloseReason
	}{
		{&events.Disconnected{}, protocol.ReasonConnectionLost},
		{&events.StreamReplaced{}, protocol.ReasonReplaced},
		{&events.KeepAliveTimeout{}, protocol.ReasonTimedOut},
		{&events.LoggedOut{}, protocol.ReasonLoggedOut},
	}
	for _, tc := range cases {
		out := c.translate(tc.evt)
		if len(out) != 1 {
			t.Fatalf("%T: %d events", tc.evt, len(out))
		}
		cu, ok := out[0].(*protocol.ConnectionUpdate)
		if !ok || cu.State != protocol.StateClose || cu.Reason != tc.want {
			t.Fatalf("%T: got %+v", tc.evt, out[0])
		}
	}
	if out := c.translate(&events.Receipt{}); out != nil {
		t.Fatalf("receipt translated to %+v", out)
	}
}

func TestMessageTranslation(t *testing.T) {
	c := &Client{sessionID: "session_1"}
	sender := waTypes.NewJID("1888", waTypes.DefaultUserServer)
	evt := &events.Message{
		Info: waTypes.MessageInfo{
			MessageSource: waTypes.MessageSource{
				Chat:    waTypes.NewJID("120363", waTypes.GroupServer),
				Sender:  sender,
				IsGroup: true,
			},
			ID:        "ABC",
			PushName:  "bob",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	}
	out := c.translate(evt)
	if len(out) != 1 {
		t.Fatalf("events = %+v", out)
	}
	up, ok := out[0].(*protocol.MessagesUpsert)
	if !ok || up.Type != protocol.UpsertNotify || len(up.Messages) != 1 {
		t.Fatalf("upsert = %+v", out[0])
	}
	m := up.Messages[0]
	if m.Key.ID != "ABC" || m.Key.RemoteJID != "120363@g.us" || m.Key.Participant != "1888@s.whatsapp.net" ||
		m.PushName != "bob" || m.Content.GetConversation() != "hi" {
		t.Fatalf("message = %+v", m)
	}
}

func TestJoinedGroupMappings(t *testing.T) {
	c := &Client{sessionID: "session_1"}
	evt := &events.JoinedGroup{GroupInfo: waTypes.GroupInfo{
		JID: waTypes.NewJID("120363", waTypes.GroupServer),
		Participants: []waTypes.GroupParticipant{
			{JID: waTypes.NewJID("1888", waTypes.DefaultUserServer), LID: waTypes.NewJID("777", waTypes.HiddenUserServer)},
			{JID: waTypes.NewJID("1999", waTypes.DefaultUserServer)},
		},
	}}
	out := c.translate(evt)
	if len(out) != 2 {
		t.Fatalf("events = %+v", out)
	}
	creds, ok := out[0].(*protocol.CredsUpdate)
	if !ok || len(creds.Values) != 1 || creds.Values["lid-mapping-1888"] != "777" {
		t.Fatalf("creds = %+v", out[0])
	}
	up, ok := out[1].(*protocol.GroupsUpsert)
	if !ok || len(up.Groups) != 1 {
		t.Fatalf("upsert = %+v", out[1])
	}
	ps := up.Groups[0].Participants
	if len(ps) != 2 || ps[0].PhoneNumber != "1888@s.whatsapp.net" || ps[0].LID != "777@lid" {
		t.Fatalf("participants = %+v", ps)
	}
}

func TestMapping(t *testing.T) {
	pn := waTypes.NewJID("1888", waTypes.DefaultUserServer)
	lid := waTypes.NewJID("777", waTypes.HiddenUserServer)
	if p, l, ok := mapping(lid, pn); !ok || p != "1888" || l != "777" {
		t.Fatalf("mapping = %q %q %v", p, l, ok)
	}
	if _, _, ok := mapping(pn, waTypes.EmptyJID); ok {
		t.Fatal("empty alt mapped")
	}
	if _, _, ok := mapping(pn, pn); ok {
		t.Fatal("same-server pair mapped")
	}
}

func TestGroupInfoEvents(t *testing.T) {
	actor := waTypes.NewJID("1999", waTypes.DefaultUserServer)
	evt := &events.GroupInfo{
		JID:      waTypes.NewJID("120363", waTypes.GroupServer),
		Sender:   &actor,
		Name:     &waTypes.GroupName{Name: "team"},
		Announce: &waTypes.GroupAnnounce{IsAnnounce: true},
		Join:     []waTypes.JID{waTypes.NewJID("1888", waTypes.DefaultUserServer)},
		Demote:   []waTypes.JID{waTypes.NewJID("1777", waTypes.DefaultUserServer)},
	}
	out := groupInfoEvents(evt)
	if len(out) != 3 {
		t.Fatalf("events = %+v", out)
	}
	upd := out[0].(*protocol.GroupsUpdate)
	patch := upd.Patches[0]
	if patch["id"] != "120363@g.us" || patch["subject"] != "team" || patch["announce"] != true {
		t.Fatalf("patch = %+v", patch)
	}
	if _, ok := patch["desc"]; ok {
		t.Fatal("absent topic was patched")
	}
	add := out[1].(*protocol.GroupParticipantsUpdate)
	if add.Action != domain.ParticipantsAdd || add.Participants[0].ID != "1888@s.whatsapp.net" || add.Author != "1999@s.whatsapp.net" {
		t.Fatalf("add = %+v", add)
	}
	if out[2].(*protocol.GroupParticipantsUpdate).Action != domain.ParticipantsDemote {
		t.Fatalf("demote = %+v", out[2])
	}
}

func TestGroupMetadata(t *testing.T) {
	info := &waTypes.GroupInfo{
		JID:      waTypes.NewJID("120363", waTypes.GroupServer),
		OwnerJID: waTypes.NewJID("1999", waTypes.DefaultUserServer),
		Participants: []waTypes.GroupParticipant{
			{JID: waTypes.NewJID("1999", waTypes.DefaultUserServer), IsAdmin: true, IsSuperAdmin: true},
			{JID: waTypes.NewJID("1888", waTypes.DefaultUserServer), IsAdmin: true},
			{JID: waTypes.NewJID("1777", waTypes.DefaultUserServer)},
		},
		MemberAddMode: waTypes.GroupMemberAddModeAllMember,
	}
	info.Name = "team"
	info.IsLocked = true
	info.IsEphemeral = true
	info.DisappearingTimer = 86400

	md := groupMetadata(info)
	if md.ID != "120363@g.us" || md.Subject != "team" || md.Owner != "1999@s.whatsapp.net" || md.Size != 3 {
		t.Fatalf("metadata = %+v", md)
	}
	if !md.Restrict || md.Announce || !md.MemberAddMode || md.EphemeralDuration != 86400 || md.LinkedParent != "" {
		t.Fatalf("flags = %+v", md)
	}
	if *md.Participants[0].Admin != "superadmin" || *md.Participants[1].Admin != "admin" || md.Participants[2].Admin != nil {
		t.Fatalf("participants = %+v", md.Participants)
	}
}
