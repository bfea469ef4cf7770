package automation

import (
	"context"
	"testing"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupcache"
	"github.com/talkincode/wamux/internal/identity"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/protocol/protocoltest"
	"github.com/talkincode/wamux/internal/store"
	"github.com/talkincode/wamux/internal/store/storetest"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

const (
	sid     = "session_15550001111"
	selfPN  = "15550001111@s.whatsapp.net"
	groupID = "120363@g.us"
	userPN  = "1888@s.whatsapp.net"
)

type env struct {
	store  *store.Store
	cache  *groupcache.Cache
	client *protocoltest.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := storetest.New(t)
	c := protocoltest.NewClient()
	c.SelfInfo = protocol.SelfInfo{PN: selfPN}
	return &env{
		store:  s,
		cache:  groupcache.New(s.Groups, identity.NewResolver(s.Contacts)),
		client: c,
	}
}

func (e *env) enable(t *testing.T, columns ...string) {
	t.Helper()
	for _, col := range columns {
		if err := e.store.Settings.SetActivity(context.Background(), sid, col, true); err != nil {
			t.Fatal(err)
		}
	}
}

func (e *env) request(chat, sender, text string) *command.Request {
	return &command.Request{
		Client: e.client,
		Message: &command.Message{
			SessionID: sid,
			ID:        "m1",
			ChatID:    chat,
			IsGroup:   protocol.IsGroup(chat),
			Sender:    sender,
			Text:      text,
		},
	}
}

type countingObserver map[string]int

func (o countingObserver) SpamAction(action string) { o[action]++ }

func TestActivityPresenceToggles(t *testing.T) {
	e := newEnv(t)
	e.enable(t, "auto_read_messages", "auto_typing", "auto_always_online")
	a := NewActivity(e.store.Settings, e.cache, NewSpamTracker(0, 0, 0), nil)

	if err := a.Handle(context.Background(), e.request(userPN, userPN, "hi")); err != nil {
		t.Fatal(err)
	}
	if len(e.client.Read) != 1 || e.client.Read[0] != "m1" {
		t.Fatalf("read=%v", e.client.Read)
	}
	want := []protocol.Presence{protocol.PresenceComposing, protocol.PresenceAvailable}
	if len(e.client.Presences) != len(want) {
		t.Fatalf("presences=%v", e.client.Presences)
	}
	for i, p := range want {
		if e.client.Presences[i] != p {
			t.Fatalf("presences=%v", e.client.Presences)
		}
	}
}

func TestActivityAllOffDoesNothing(t *testing.T) {
	e := newEnv(t)
	a := NewActivity(e.store.Settings, e.cache, NewSpamTracker(0, 0, 0), nil)
	_ = a.Handle(context.Background(), e.request(userPN, userPN, "hi"))
	if len(e.client.Read)+len(e.client.Presences)+len(e.client.Sent) != 0 {
		t.Fatal("disabled activity produced side effects")
	}
}

func TestAntispamPrivateWarnsThenBlocks(t *testing.T) {
	e := newEnv(t)
	e.enable(t, "auto_antispam")
	obs := countingObserver{}
	a := NewActivity(e.store.Settings, e.cache, NewSpamTracker(0, 0, 0), obs)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := a.Handle(ctx, e.request(userPN, userPN, "spam")); err != nil {
			t.Fatal(err)
		}
	}
	texts := e.client.Texts()
	if len(texts) != 2 || texts[0] != WarnPrivate || texts[1] != BlockNotice {
		t.Fatalf("texts=%v", texts)
	}
	if !e.client.Blocked[userPN] {
		t.Fatal("spammer not blocked")
	}
	if obs["warn"] != 1 || obs["block"] != 1 {
		t.Fatalf("observer=%v", obs)
	}
}

func TestAntispamSkipsSudo(t *testing.T) {
	e := newEnv(t)
	e.enable(t, "auto_antispam")
	a := NewActivity(e.store.Settings, e.cache, NewSpamTracker(0, 0, 0), nil)
	for i := 0; i < 4; i++ {
		req := e.request(userPN, userPN, "spam")
		req.Message.IsSudo = true
		_ = a.Handle(context.Background(), req)
	}
	if len(e.client.Sent) != 0 {
		t.Fatalf("sudo sender was warned: %v", e.client.Texts())
	}
}

func TestAntispamGroupRequiresBotAdmin(t *testing.T) {
	e := newEnv(t)
	e.enable(t, "auto_antispam")
	ctx := context.Background()
	admin := "admin"
	md := &domain.GroupMetadata{ID: groupID, Participants: []domain.Participant{
		{ID: selfPN},
		{ID: userPN},
	}}
	if err := e.cache.Put(ctx, sid, md); err != nil {
		t.Fatal(err)
	}
	a := NewActivity(e.store.Settings, e.cache, NewSpamTracker(0, 0, 0), nil)
	for i := 0; i < 4; i++ {
		_ = a.Handle(ctx, e.request(groupID, userPN, "spam"))
	}
	if len(e.client.Sent) != 0 {
		t.Fatal("bot without admin rights must not moderate")
	}

	md.Participants[0].Admin = &admin
	if err := e.cache.Put(ctx, sid, md); err != nil {
		t.Fatal(err)
	}
	a = NewActivity(e.store.Settings, e.cache, NewSpamTracker(0, 0, 0), nil)
	for i := 0; i < 4; i++ {
		_ = a.Handle(ctx, e.request(groupID, userPN, "spam"))
	}
	texts := e.client.Texts()
	if len(texts) != 2 || texts[0] != WarnGroup || texts[1] != KickedNotice {
		t.Fatalf("texts=%v", texts)
	}
	if !e.client.Called("participants:" + groupID + ":remove:" + userPN) {
		t.Fatalf("calls=%v", e.client.Calls)
	}
}

func TestCallGuard(t *testing.T) {
	e := newEnv(t)
	g := NewCallGuard(e.store.Settings)
	ev := &protocol.CallEvent{Calls: []protocol.Call{{ID: "c1", From: userPN}, {ID: "c2", From: userPN, IsVideo: true}}}
	if n := g.Handle(context.Background(), sid, e.client, ev); n != 0 {
		t.Fatalf("rejected %d with toggle off", n)
	}
	e.enable(t, "auto_reject_calls")
	if n := g.Handle(context.Background(), sid, e.client, ev); n != 2 {
		t.Fatalf("rejected %d, want 2", n)
	}
	if len(e.client.Rejected) != 2 || e.client.Rejected[1] != "c2" {
		t.Fatalf("rejected=%v", e.client.Rejected)
	}
}

func (e *env) save(t *testing.T, id, chat, text string) {
	t.Helper()
	m := &protocol.Message{
		Key:     protocol.MessageKey{ID: id, RemoteJID: chat},
		Content: &waE2E.Message{Conversation: proto.String(text)},
	}
	payload, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.store.Messages.Save(context.Background(), sid, id, payload); err != nil {
		t.Fatal(err)
	}
}

func TestAntideleteForwardsToSelf(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.save(t, "m1", userPN, "secret")
	a := NewAntidelete(e.store.Settings, e.store.Messages)
	ev := &protocol.MessagesDelete{Keys: []protocol.MessageKey{{ID: "m1", RemoteJID: userPN}}}

	if n := a.Handle(ctx, sid, e.client, ev); n != 0 {
		t.Fatal("recovered with toggle off")
	}
	e.enable(t, "auto_recover_deleted_messages")
	if n := a.Handle(ctx, sid, e.client, ev); n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}
	sent := e.client.Sent[0]
	if sent.Chat != selfPN || sent.Text != "secret" {
		t.Fatalf("sent=%+v", sent)
	}
	if sent.Raw.GetExtendedTextMessage().GetContextInfo().GetIsForwarded() {
		t.Fatal("forward mark must be cleared")
	}
}

func TestAntideleteHonorsModeAndSkips(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.enable(t, "auto_recover_deleted_messages")
	if err := e.store.Settings.SetAntideleteMode(ctx, sid, store.AntideleteGroups); err != nil {
		t.Fatal(err)
	}
	e.save(t, "p1", userPN, "private")
	e.save(t, "g1", groupID, "group")
	a := NewAntidelete(e.store.Settings, e.store.Messages)
	ev := &protocol.MessagesDelete{Keys: []protocol.MessageKey{
		{ID: "p1", RemoteJID: userPN},
		{ID: "g1", RemoteJID: groupID, FromMe: true},
		{ID: "missing", RemoteJID: groupID},
		{ID: "g1", RemoteJID: groupID},
	}}
	if n := a.Handle(ctx, sid, e.client, ev); n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}
	if texts := e.client.Texts(); texts[0] != "group" {
		t.Fatalf("texts=%v", texts)
	}
}

func TestFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.store.Filters.Set(ctx, sid, "Hello", "hi there"); err != nil {
		t.Fatal(err)
	}
	f := NewFilters(e.store.Filters)

	_ = f.Handle(ctx, e.request(userPN, userPN, "hello"))
	if len(e.client.Sent) != 0 {
		t.Fatal("filters replied while disabled")
	}
	if err := e.store.Filters.SetEnabled(ctx, sid, true); err != nil {
		t.Fatal(err)
	}
	_ = f.Handle(ctx, e.request(userPN, userPN, "  HELLO "))
	_ = f.Handle(ctx, e.request(userPN, userPN, "hello world"))
	own := e.request(userPN, userPN, "hello")
	own.Message.FromMe = true
	_ = f.Handle(ctx, own)
	if texts := e.client.Texts(); len(texts) != 1 || texts[0] != "hi there" {
		t.Fatalf("texts=%v", texts)
	}
}
