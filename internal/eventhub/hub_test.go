package eventhub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	"github.com/talkincode/wamux/internal/domain"
	"github.com/talkincode/wamux/internal/session"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestHubForwardsBusEvents(t *testing.T) {
	h := New("node-1")
	t.Cleanup(h.Close)
	bus := EventBus.New()
	if err := h.Attach(bus); err != nil {
		t.Fatal(err)
	}
	ws := dial(t, h)

	bus.Publish(session.TopicStatus, session.StatusChange{SessionID: "session_1", From: domain.StatusConnecting, To: domain.StatusActive})
	bus.WaitAsync()
	f := read(t, ws)
	if f.Kind != KindStatus || f.Session != "session_1" || f.Status != "active" || f.From != "connecting" {
		t.Fatalf("frame = %+v", f)
	}

	bus.Publish(session.TopicPairing, session.PairingNotice{SessionID: "session_1", Code: "ABCD-1234"})
	bus.WaitAsync()
	if f := read(t, ws); f.Kind != KindPairing || f.Code != "ABCD-1234" {
		t.Fatalf("frame = %+v", f)
	}

	bus.Publish(session.TopicDeleted, "session_1")
	bus.WaitAsync()
	if f := read(t, ws); f.Kind != KindDeleted || f.Session != "session_1" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	h := New("node-1")
	t.Cleanup(h.Close)
	ws := dial(t, h)
	_ = ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed client still registered")
		}
		h.Publish(Frame{Kind: KindStatus, Session: "session_1"})
		time.Sleep(5 * time.Millisecond)
	}
}
