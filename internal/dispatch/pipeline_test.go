package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
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
	sudoPN  = "1999@s.whatsapp.net"
	userPN  = "1888@s.whatsapp.net"
)

type fixture struct {
	store    *store.Store
	cache    *groupcache.Cache
	pipeline *Pipeline
	client   *protocoltest.Client
	ran      map[string]*int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.New(t)
	resolver := identity.NewResolver(s.Contacts)
	cache := groupcache.New(s.Groups, resolver)
	reg := command.NewRegistry()

	f := &fixture{store: s, cache: cache, ran: map[string]*int32{}}
	counter := func(name string) command.Exec {
		n := new(int32)
		f.ran[name] = n
		return func(context.Context, *command.Request) error {
			atomic.AddInt32(n, 1)
			return nil
		}
	}
	reg.MustRegister(
		&command.Command{Pattern: "ping", Exec: counter("ping")},
		&command.Command{Pattern: "setsudo", SudoOnly: true, Exec: counter("setsudo")},
		&command.Command{Pattern: "kick", GroupOnly: true, AdminOnly: true, Exec: counter("kick")},
		&command.Command{Pattern: "boom", Exec: func(context.Context, *command.Request) error { panic("boom") }},
		&command.Command{Passive: true, Exec: func(context.Context, *command.Request) error { return errors.New("first fails") }},
		&command.Command{Passive: true, Exec: counter("passive")},
	)

	p, err := New(Deps{
		Registry:   reg,
		Settings:   s.Settings,
		Sudo:       s.Sudo,
		Ban:        s.Ban,
		Alternates: resolver,
		Groups:     cache,
	}, 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Release)

	ctx := context.Background()
	if err := s.Sudo.Add(ctx, sid, domain.Contact{PN: sudoPN}); err != nil {
		t.Fatal(err)
	}
	f.client = protocoltest.NewClient()
	f.client.SelfInfo = protocol.SelfInfo{PN: selfPN}
	f.pipeline = p
	return f
}

func (f *fixture) count(name string) int32 {
	return atomic.LoadInt32(f.ran[name])
}

func (f *fixture) send(id, chat, sender, text string) {
	key := protocol.MessageKey{ID: id, RemoteJID: chat}
	if protocol.IsGroup(chat) {
		key.Participant = sender
	}
	f.pipeline.Dispatch(context.Background(), sid, f.client, &protocol.MessagesUpsert{
		Type: protocol.UpsertNotify,
		Messages: []*protocol.Message{{
			Key:     key,
			Content: &waE2E.Message{Conversation: proto.String(text)},
		}},
	})
}

func TestPrivateModeIgnoresNonSudoSilently(t *testing.T) {
	f := newFixture(t)
	f.send("m1", userPN, userPN, "ping")
	if f.count("ping") != 0 || len(f.client.Sent) != 0 {
		t.Fatalf("ran=%d sent=%v", f.count("ping"), f.client.Texts())
	}
	f.send("m2", sudoPN, sudoPN, "ping")
	if f.count("ping") != 1 {
		t.Fatal("sudo sender must run commands in private mode")
	}
}

func TestSudoOnlyNotice(t *testing.T) {
	f := newFixture(t)
	_, _ = f.store.Settings.SetMode(context.Background(), sid, domain.ModePublic)
	f.send("m1", userPN, userPN, "setsudo")
	if f.count("setsudo") != 0 {
		t.Fatal("sudo-only command ran for a regular user")
	}
	if texts := f.client.Texts(); len(texts) != 1 || texts[0] != ReplySudoOnly {
		t.Fatalf("replies %v", texts)
	}
}

func TestGroupGateRunsBeforeAdminGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.cache.Put(ctx, sid, &domain.GroupMetadata{ID: groupID, Participants: []domain.Participant{{ID: sudoPN}}})

	f.send("m1", sudoPN, sudoPN, "kick")
	f.send("m2", groupID, sudoPN, "kick")
	if f.count("kick") != 0 {
		t.Fatal("kick must not run")
	}
	texts := f.client.Texts()
	if len(texts) != 2 || texts[0] != ReplyGroupOnly || texts[1] != ReplyAdminOnly {
		t.Fatalf("replies %v", texts)
	}

	admin := "admin"
	_ = f.cache.Put(ctx, sid, &domain.GroupMetadata{ID: groupID, Participants: []domain.Participant{{ID: sudoPN, Admin: &admin}}})
	f.send("m3", groupID, sudoPN, "kick")
	if f.count("kick") != 1 {
		t.Fatal("admin sudo user must run kick")
	}
}

func TestPrefixHandling(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Settings.SetPrefix(context.Background(), sid, ".!")
	f.send("m1", sudoPN, sudoPN, "ping")
	if f.count("ping") != 0 {
		t.Fatal("text without prefix is not a command")
	}
	f.send("m2", sudoPN, sudoPN, ".!PING extra")
	if f.count("ping") != 1 {
		t.Fatal("prefixed command must run")
	}
}

func TestBannedSenderIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.Settings.SetMode(ctx, sid, domain.ModePublic)
	_ = f.store.Ban.Add(ctx, sid, domain.Contact{PN: userPN})
	f.send("m1", userPN, userPN, "ping")
	if f.count("ping") != 0 {
		t.Fatal("banned sender ran a command")
	}
}

func TestPassiveIsolationAndDedupe(t *testing.T) {
	f := newFixture(t)
	f.send("m1", sudoPN, sudoPN, "boom")
	if f.count("passive") != 1 {
		t.Fatal("passive handlers must run after a panicking command and a failing handler")
	}
	f.send("m1", sudoPN, sudoPN, "hello")
	if f.count("passive") != 1 {
		t.Fatal("redelivered message id must not rerun passive handlers")
	}
	f.send("m2", userPN, userPN, "hello")
	if f.count("passive") != 2 {
		t.Fatal("passive handlers run for non-command senders too")
	}
}

func TestAppendBatchesAreNotDispatched(t *testing.T) {
	f := newFixture(t)
	f.pipeline.Dispatch(context.Background(), sid, f.client, &protocol.MessagesUpsert{
		Type: protocol.UpsertAppend,
		Messages: []*protocol.Message{{
			Key:     protocol.MessageKey{ID: "x", RemoteJID: sudoPN},
			Content: &waE2E.Message{Conversation: proto.String("ping")},
		}},
	})
	if f.count("ping") != 0 || f.count("passive") != 0 {
		t.Fatal("append batch must be ignored")
	}
}
