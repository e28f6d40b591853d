package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/webrunner/pkg/storage"
)

func TestStreamHubFanOut(t *testing.T) {
	hub := newStreamHub()

	a := hub.subscribe()
	b := hub.subscribe()
	hub.broadcast(storage.Event{Type: storage.EventSessionCreated, SessionID: "s1"})

	for _, ch := range []chan storage.Event{a, b} {
		select {
		case event := <-ch:
			if event.SessionID != "s1" {
				t.Fatalf("unexpected event: %+v", event)
			}
		default:
			t.Fatal("expected buffered event")
		}
	}

	hub.unsubscribe(b)
	hub.broadcast(storage.Event{Type: storage.EventSessionUpdated, SessionID: "s1"})
	select {
	case <-b:
		t.Fatal("unsubscribed channel should not receive events")
	default:
	}
	if len(a) != 1 {
		t.Fatalf("expected remaining subscriber to receive event, got %d", len(a))
	}
}

func TestStreamHubDropsWhenFull(t *testing.T) {
	hub := newStreamHub()
	ch := hub.subscribe()

	// Overfill the buffer; broadcast must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.broadcast(storage.Event{Type: storage.EventSessionUpdated})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer, got %d of %d", len(ch), cap(ch))
	}
}

func TestServerRegistersStoreObserver(t *testing.T) {
	ts := newTestServer(t)
	if len(ts.store.observers) != 1 {
		t.Fatalf("expected one registered observer, got %d", len(ts.store.observers))
	}
}

func TestSSEStreamDeliversStorageEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.server.httpServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stream?session_id=s1")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream content type, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() StreamEvent {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("decode event %q: %v", line, err)
			}
			return event
		}
	}

	if event := readEvent(); event.Type != "connected" {
		t.Fatalf("expected connected event, got %+v", event)
	}

	// Filtered-out session events must not appear; matching ones must.
	observer := ts.store.observers[0]
	observer.HandleStorageEvent(storage.Event{Type: storage.EventSessionUpdated, SessionID: "other"})
	observer.HandleStorageEvent(storage.Event{Type: storage.EventSessionUpdated, SessionID: "s1"})

	event := readEvent()
	if event.Type != string(storage.EventSessionUpdated) || event.SessionID != "s1" {
		t.Fatalf("expected filtered session event, got %+v", event)
	}
}
