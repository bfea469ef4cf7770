package command

import (
	"context"
	"testing"
)

func noop(context.Context, *Request) error { return nil }

func TestRegistryFind(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		&Command{Pattern: "ping", Alias: []string{"p"}, Category: "misc", Exec: noop},
		&Command{Pattern: "kick", Category: "group", Exec: noop},
		&Command{Passive: true, Exec: noop},
	)
	if c := r.Find("PING"); c == nil || c.Pattern != "ping" {
		t.Fatalf("case-insensitive lookup failed: %+v", c)
	}
	if c := r.Find("p"); c == nil || c.Pattern != "ping" {
		t.Fatal("alias lookup failed")
	}
	if r.Find("nope") != nil {
		t.Fatal("unexpected match")
	}
	if len(r.Passive()) != 1 {
		t.Fatal("passive handler missing")
	}
	all := r.All()
	if len(all) != 2 || all[0].Pattern != "kick" {
		t.Fatalf("sorted listing: %v", all)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Command{Pattern: "ping", Exec: noop})
	if err := r.Register(&Command{Pattern: "x", Alias: []string{"Ping"}, Exec: noop}); err == nil {
		t.Fatal("duplicate alias accepted")
	}
	if r.Find("x") != nil {
		t.Fatal("failed registration must not leave partial entries")
	}
}
