package plugins

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/groupaction"
	"github.com/talkincode/wamux/internal/groupcache"
	"github.com/talkincode/wamux/internal/identity"
	"github.com/talkincode/wamux/internal/protocol"
	"github.com/talkincode/wamux/internal/protocol/protocoltest"
	"github.com/talkincode/wamux/internal/store"
	"github.com/talkincode/wamux/internal/store/storetest"
)

const (
	sid     = "session_15550001111"
	selfPN  = "15550001111@s.whatsapp.net"
	groupID = "120363@g.us"
	userPN  = "1888@s.whatsapp.net"
	userLID = "777@lid"
)

type fixture struct {
	store    *store.Store
	cache    *groupcache.Cache
	registry *command.Registry
	client   *protocoltest.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.New(t)
	resolver := identity.NewResolver(s.Contacts)
	cache := groupcache.New(s.Groups, resolver)
	reg := command.NewRegistry()
	err := Register(Deps{
		Settings: s.Settings,
		Sudo:     s.Sudo,
		Ban:      s.Ban,
		Filters:  s.Filters,
		Resolver: resolver,
		Groups:   groupaction.NewExecutor(cache, resolver),
		Registry: reg,
		Started:  time.Now().Add(-90 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	c := protocoltest.NewClient()
	c.SelfInfo = protocol.SelfInfo{PN: selfPN}
	return &fixture{store: s, cache: cache, registry: reg, client: c}
}

func (f *fixture) run(t *testing.T, chat, name, args string) string {
	t.Helper()
	return f.runMsg(t, &command.Message{SessionID: sid, ChatID: chat, IsGroup: protocol.IsGroup(chat), Sender: userPN}, name, args)
}

func (f *fixture) runMsg(t *testing.T, msg *command.Message, name, args string) string {
	t.Helper()
	cmd := f.registry.Find(name)
	if cmd == nil {
		t.Fatalf("command %q not registered", name)
	}
	before := len(f.client.Sent)
	if err := cmd.Exec(context.Background(), &command.Request{Message: msg, Client: f.client, Args: args}); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	texts := f.client.Texts()
	if len(texts) == before {
		return ""
	}
	return texts[len(texts)-1]
}

func TestToggleTexts(t *testing.T) {
	f := newFixture(t)
	cases := []struct{ args, want string }{
		{"", "```Auto Typing enabled```"},
		{"on", "```Auto Typing is already enabled```"},
		{"off", "```Auto Typing disabled```"},
		{"off", "```Auto Typing is already disabled```"},
		{"maybe", "```Usage: typing [on|off]\nCurrent: disabled```"},
	}
	for _, c := range cases {
		if got := f.run(t, userPN, "typing", c.args); got != c.want {
			t.Fatalf("typing %q: got %q want %q", c.args, got, c.want)
		}
	}
}

func TestAntideleteToggleWithMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if got := f.run(t, userPN, "antidelete", "on groups"); got != "```Anti Delete enabled```" {
		t.Fatalf("got %q", got)
	}
	mode, _ := f.store.Settings.AntideleteMode(ctx, sid)
	act, _ := f.store.Settings.Activity(ctx, sid)
	if mode != store.AntideleteGroups || !act.AutoRecoverDeletedMessages {
		t.Fatalf("mode=%s act=%+v", mode, act)
	}
	if got := f.run(t, userPN, "antidelete", "on nowhere"); !strings.Contains(got, "Invalid mode") {
		t.Fatalf("got %q", got)
	}
}

func TestModeCommand(t *testing.T) {
	f := newFixture(t)
	if got := f.run(t, userPN, "mode", ""); got != "```Bot is currently in private mode.\nUsage: mode private | public```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "setmode", "PUBLIC"); got != "```Mode changed: private ➜ public```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "mode", "public"); got != "```Bot is already in public mode.```" {
		t.Fatalf("got %q", got)
	}
}

func TestPrefixCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run(t, userPN, "setprefix", ". !")
	p, _ := f.store.Settings.Prefix(ctx, sid)
	if len(p) != 2 || p[0] != "." || p[1] != "!" {
		t.Fatalf("prefix=%v", p)
	}
	f.run(t, userPN, "delprefix", "")
	if p, _ = f.store.Settings.Prefix(ctx, sid); p != nil {
		t.Fatalf("prefix=%v", p)
	}
}

func TestSudoLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.Contacts.Upsert(ctx, sid, domain.Contact{PN: "1888", LID: "777"}); err != nil {
		t.Fatal(err)
	}
	msg := &command.Message{SessionID: sid, ChatID: userPN, Sender: selfPN, Quoted: &command.Quoted{ID: "q", Sender: userLID}}
	if got := f.runMsg(t, msg, "setsudo", ""); got != "```@1888 is now sudo user.```" {
		t.Fatalf("got %q", got)
	}
	if ok, _ := f.store.Sudo.Contains(ctx, sid, userLID); !ok {
		t.Fatal("lid form not stored")
	}
	if got := f.run(t, userPN, "addsudo", "1888"); got != "```User is already Sudo.```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "getsudo", ""); got != "*Sudo Users List*\n\n1. @1888" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "delsudo", "@1888"); got != "```@1888 is no longer sudo user.```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "delsudo", "1888"); got != "```User is not a Sudo user.```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "setsudo", ""); got != "```Please provide or quote a user.```" {
		t.Fatalf("got %q", got)
	}
}

func TestBanUsesMentions(t *testing.T) {
	f := newFixture(t)
	msg := &command.Message{SessionID: sid, ChatID: groupID, IsGroup: true, Sender: selfPN, Mentions: []string{"1999@s.whatsapp.net"}}
	if got := f.runMsg(t, msg, "ban", ""); got != "```@1999 is now banned.```" {
		t.Fatalf("got %q", got)
	}
	if ok, _ := f.store.Ban.Contains(context.Background(), sid, "1999@s.whatsapp.net"); !ok {
		t.Fatal("ban not stored")
	}
}

func TestFilterCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if got := f.run(t, userPN, "setfilter", "hi there"); got != "```Usage: setfilter <trigger> | <reply>```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "setfilter", "Hi | hello!"); got != "```Filter set: Hi```" {
		t.Fatalf("got %q", got)
	}
	f.run(t, userPN, "filter", "on")
	if on, _ := f.store.Filters.Enabled(ctx, sid); !on {
		t.Fatal("filter feature not enabled")
	}
	if got := f.run(t, userPN, "getfilter", ""); got != "```Filters:\nTrigger: hi\nReply: hello!\nStatus: Active\n\n```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "delfilter", "hi"); got != "```Filter deleted: hi```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, userPN, "getfilter", ""); got != "```No filters found```" {
		t.Fatalf("got %q", got)
	}
}

func TestMenuListsVisibleCommands(t *testing.T) {
	f := newFixture(t)
	menu := Menu(f.registry)
	for _, want := range []string{"GROUPS\n", "SETTINGS\n", ". ping (speed)", ". kick (remove)"} {
		if !strings.Contains(menu, want) {
			t.Fatalf("menu missing %q:\n%s", want, menu)
		}
	}
	if strings.Contains(menu, ". menu") {
		t.Fatal("menu lists itself")
	}
}

func TestRuntime(t *testing.T) {
	if got := formatUptime(26*time.Hour + 3*time.Minute + 4*time.Second); got != "1d 2h 3m 4s" {
		t.Fatalf("got %q", got)
	}
	f := newFixture(t)
	if got := f.run(t, userPN, "uptime", ""); !strings.HasPrefix(got, "```1h 30m") {
		t.Fatalf("got %q", got)
	}
}

func TestGroupCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	md := &domain.GroupMetadata{ID: groupID, Subject: "Team", Participants: []domain.Participant{{ID: selfPN}, {ID: userPN}}}
	if err := f.cache.Put(ctx, sid, md); err != nil {
		t.Fatal(err)
	}
	if got := f.run(t, groupID, "mute", ""); got != replyDone {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, groupID, "announce", ""); got != "```Failed: group already muted```" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, groupID, "kick", ""); got != replyNeedUser {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, groupID, "promote", "1888"); got != replyDone {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, groupID, "ephemeral", "12"); got != replyEphemeral {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, groupID, "invite", ""); got != "Group link: https://chat.whatsapp.com/CODE" {
		t.Fatalf("got %q", got)
	}
	if got := f.run(t, groupID, "leave", ""); got != "" {
		t.Fatalf("leave replied %q", got)
	}
	if !f.client.Called("leave:" + groupID) {
		t.Fatalf("calls=%v", f.client.Calls)
	}
	cmd := f.registry.Find("kick")
	if !cmd.GroupOnly || !cmd.AdminOnly {
		t.Fatal("kick must be group and admin only")
	}
}
