package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestChannelEmitAndReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Envelope, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		received <- env
		_ = conn.WriteJSON(Envelope{
			Event:   EventCycleUpdate,
			Payload: json.RawMessage(`{"cycle":1}`),
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan string, 4)
	ch, err := DialChannel(context.Background(), ChannelConfig{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		OnEvent: func(event string, _ json.RawMessage) {
			events <- event
		},
	})
	if err != nil {
		t.Fatalf("DialChannel: %v", err)
	}

	if err := ch.Emit(EventRunJoin, map[string]any{"runId": "run-1"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	select {
	case env := <-received:
		if env.Event != EventRunJoin {
			t.Fatalf("server received %q", env.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the join")
	}
	select {
	case event := <-events:
		if event != EventCycleUpdate {
			t.Fatalf("dispatched %q", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound event never dispatched")
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := ch.Emit("x", nil); err == nil {
		t.Fatal("expected emit on closed channel to fail")
	}
}

func TestDialChannelRequiresURL(t *testing.T) {
	if _, err := DialChannel(context.Background(), ChannelConfig{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestNormalizeReconnectPolicy(t *testing.T) {
	p := normalizeReconnectPolicy(ReconnectPolicy{})
	if p.InitialBackoff != 250*time.Millisecond || p.MaxBackoff != 5*time.Second {
		t.Fatalf("backoff defaults: %+v", p)
	}
	if p.BackoffFactor != 2.0 || p.MaxRetries != 5 {
		t.Fatalf("factor/retries defaults: %+v", p)
	}

	p = normalizeReconnectPolicy(ReconnectPolicy{
		InitialBackoff: time.Second,
		MaxBackoff:     100 * time.Millisecond,
	})
	if p.MaxBackoff != time.Second {
		t.Fatalf("max backoff not lifted to initial: %+v", p)
	}
}
