package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
)

type fixedCounts map[domain.SessionStatus]int

func (f fixedCounts) StatusCounts(context.Context) (map[domain.SessionStatus]int, error) {
	return f, nil
}

func TestObserverCounters(t *testing.T) {
	m := New(nil)
	m.MessageClassified(command.KindCommand)
	m.MessageClassified(command.KindCommand)
	m.CommandFinished("ping", "ok")
	m.SpamAction("kick")
	m.Reconnecting("session_1", 1)
	m.StatusChanged("session_1", domain.StatusConnecting, domain.StatusActive)

	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("command")); got != 2 {
		t.Fatalf("messages = %v", got)
	}
	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("ping", "ok")); got != 1 {
		t.Fatalf("commands = %v", got)
	}
	if got := testutil.ToFloat64(m.SpamActionsTotal.WithLabelValues("kick")); got != 1 {
		t.Fatalf("spam = %v", got)
	}
	if got := testutil.ToFloat64(m.ReconnectsTotal); got != 1 {
		t.Fatalf("reconnects = %v", got)
	}
	if got := testutil.ToFloat64(m.StatusChanges.WithLabelValues("active")); got != 1 {
		t.Fatalf("transitions = %v", got)
	}
}

func TestSessionGauge(t *testing.T) {
	m := New(fixedCounts{domain.StatusActive: 3, domain.StatusPausedUser: 1})
	expected := `
# HELP wamux_sessions Sessions by status.
# TYPE wamux_sessions gauge
wamux_sessions{status="active"} 3
wamux_sessions{status="paused_user"} 1
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "wamux_sessions"); err != nil {
		t.Fatal(err)
	}
}
