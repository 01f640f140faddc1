package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opsdeck/notifyd/internal/feed"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// newPushServer runs a transport stand-in that upgrades the connection and
// writes each raw frame it is given, then holds the connection open. It
// returns the ws:// URL to dial.
func newPushServer(t *testing.T, frames []string) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collectEvents(t *testing.T) (Handler, chan feed.Event) {
	t.Helper()
	events := make(chan feed.Event, 16)
	return func(ev feed.Event) { events <- ev }, events
}

func waitEvent(t *testing.T, events chan feed.Event) feed.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push event")
		return feed.Event{}
	}
}

func TestSubscribeDeliversMatchingEvents(t *testing.T) {
	wsURL := newPushServer(t, []string{
		`{"channel":"phc-updates","event":"PhcSubmitted","data":{"id":"p5","message":"handover checklist submitted","user_ids":[42],"created_at":"2026-08-27T10:00:00Z"}}`,
		`{"channel":"phc-updates","event":"SomethingElse","data":{"id":"x9","message":"not ours"}}`,
		`{"channel":"phc-updates","event":"PhcSubmitted","data":{"id":"p6","message":"second checklist"}}`,
	})

	handler, events := collectEvents(t)
	sub, err := NewSubscriber(wsURL, "secret-token", handler, nil).Subscribe(context.Background(), ChannelSpec{
		Channel:  "phc-updates",
		Event:    "PhcSubmitted",
		Category: feed.CategoryPHC,
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	t.Cleanup(func() { sub.Close() })

	first := waitEvent(t, events)
	if first.ID != "p5" || first.Category != feed.CategoryPHC {
		t.Errorf("first event = %+v, want id p5 category phc", first)
	}
	if len(first.UserIDs) != 1 || first.UserIDs[0] != 42 {
		t.Errorf("user_ids = %v, want [42]", first.UserIDs)
	}

	second := waitEvent(t, events)
	if second.ID != "p6" {
		t.Errorf("second event id = %q, want p6 (SomethingElse must be filtered)", second.ID)
	}
}

func TestSubscribePrivateChannelTakesEveryEvent(t *testing.T) {
	wsURL := newPushServer(t, []string{
		`{"channel":"user.42","event":"WorkOrderAssigned","data":{"id":"w1","type":"work order","message":"assigned to you"}}`,
	})

	handler, events := collectEvents(t)
	sub, err := NewSubscriber(wsURL, "secret-token", handler, nil).Subscribe(context.Background(), ChannelSpec{
		Channel:  "user.42",
		Category: feed.CategoryLog,
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	t.Cleanup(func() { sub.Close() })

	ev := waitEvent(t, events)
	if ev.ID != "w1" {
		t.Errorf("event id = %q, want w1", ev.ID)
	}
	// Payload type overrides the spec's default category.
	if ev.Category != feed.CategoryWorkOrder {
		t.Errorf("category = %q, want %q", ev.Category, feed.CategoryWorkOrder)
	}
}

func TestSubscribeSkipsUndecodablePayload(t *testing.T) {
	wsURL := newPushServer(t, []string{
		`{"channel":"logs","event":"LogCreated","data":"not an object"}`,
		`{"channel":"logs","event":"LogCreated","data":{"message":"fine"}}`,
	})

	handler, events := collectEvents(t)
	sub, err := NewSubscriber(wsURL, "", handler, nil).Subscribe(context.Background(), ChannelSpec{
		Channel:  "logs",
		Event:    "LogCreated",
		Category: feed.CategoryLog,
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	t.Cleanup(func() { sub.Close() })

	ev := waitEvent(t, events)
	if ev.Message != "fine" {
		t.Errorf("message = %q, want the decodable event only", ev.Message)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	wsURL := newPushServer(t, nil)

	handler, _ := collectEvents(t)
	sub, err := NewSubscriber(wsURL, "", handler, nil).Subscribe(context.Background(), ChannelSpec{
		Channel:  "logs",
		Event:    "LogCreated",
		Category: feed.CategoryLog,
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Error("read loop did not stop after Close")
	}

	// Closing twice is harmless.
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestParseChannelSpec(t *testing.T) {
	tests := []struct {
		raw     string
		want    ChannelSpec
		wantErr bool
	}{
		{raw: "phc-updates:PhcSubmitted:phc", want: ChannelSpec{Channel: "phc-updates", Event: "PhcSubmitted", Category: feed.CategoryPHC}},
		{raw: "user.42::log", want: ChannelSpec{Channel: "user.42", Category: feed.CategoryLog}},
		{raw: "missing-category:Ev:", wantErr: true},
		{raw: ":Ev:log", wantErr: true},
		{raw: "no-parts", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseChannelSpec(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseChannelSpec(%q) error = nil, want error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseChannelSpec(%q) error = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseChannelSpec(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
		if tt.want.Event == "" && !got.Private() {
			t.Errorf("ParseChannelSpec(%q).Private() = false, want true", tt.raw)
		}
	}
}
