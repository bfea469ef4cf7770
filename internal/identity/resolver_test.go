package identity

import (
	"context"
	"testing"

	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/store/storetest"
)

const sid = "session_15550001111"

func newResolver(t *testing.T) *Resolver {
	return NewResolver(storetest.New(t).Contacts)
}

func TestAlternateRoundTrip(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()
	if err := r.AddOrUpdate(ctx, sid, "1555000111", "AAAA"); err != nil {
		t.Fatal(err)
	}
	got, _ := r.AlternateOf(ctx, sid, "1555000111@s.whatsapp.net")
	if got != "AAAA@lid" {
		t.Fatalf("pn -> lid: %q", got)
	}
	got, _ = r.AlternateOf(ctx, sid, "AAAA@lid")
	if got != "1555000111@s.whatsapp.net" {
		t.Fatalf("lid -> pn: %q", got)
	}
	if got, _ := r.AlternateOf(ctx, sid, "4444@lid"); got != "" {
		t.Fatalf("unknown must be empty, got %q", got)
	}
}

func TestLastWriteWins(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()
	_ = r.AddOrUpdate(ctx, sid, "1555000111@s.whatsapp.net", "AAAA@lid")
	_ = r.AddOrUpdate(ctx, sid, "1555000111", "BBBB")
	if got, _ := r.AlternateOf(ctx, sid, "1555000111"); got != "BBBB@lid" {
		t.Fatalf("got %q", got)
	}
}

func TestResolve(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()
	_ = r.AddOrUpdate(ctx, sid, "15550001111", "88776655")

	cases := map[string]string{
		"4477@s.whatsapp.net":   "4477@s.whatsapp.net",
		"@9999@lid":             "9999@lid",
		"1555:4@s.whatsapp.net": "1555@s.whatsapp.net",
		"15550001111":           "15550001111@s.whatsapp.net",
		"88776655":              "88776655@lid",
		"@1555000":              "15550001111@s.whatsapp.net",
		"887766":                "88776655@lid",
		"42":                    "",
		"":                      "",
	}
	for in, want := range cases {
		got, err := r.Resolve(ctx, sid, in)
		if err != nil || got != want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestSyncParticipants(t *testing.T) {
	r := newResolver(t)
	ctx := context.Background()
	err := r.SyncParticipants(ctx, sid, []domain.Participant{
		{ID: "111@lid", PhoneNumber: "2222@s.whatsapp.net"},
		{ID: "3333@s.whatsapp.net", LID: "444@lid"},
		{ID: "555@lid"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := r.AlternateOf(ctx, sid, "2222@s.whatsapp.net"); got != "111@lid" {
		t.Fatalf("got %q", got)
	}
	if got, _ := r.AlternateOf(ctx, sid, "444@lid"); got != "3333@s.whatsapp.net" {
		t.Fatalf("got %q", got)
	}
}
