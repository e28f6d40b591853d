package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/storage"
)

// StreamEvent is the wire format shared by the SSE and websocket streams.
type StreamEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// streamHub fans storage events out to connected stream clients. The store
// observer list is append-only, so the hub registers once and manages
// per-connection subscriptions itself.
type streamHub struct {
	mu   sync.Mutex
	subs map[chan storage.Event]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{subs: make(map[chan storage.Event]struct{})}
}

func (h *streamHub) broadcast(event storage.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Drop if the client is not keeping up.
		}
	}
}

func (h *streamHub) subscribe() chan storage.Event {
	ch := make(chan storage.Event, 128)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *streamHub) unsubscribe(ch chan storage.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func streamEventFrom(event storage.Event) StreamEvent {
	return StreamEvent{
		Type:      string(event.Type),
		SessionID: event.SessionID,
		Timestamp: event.Timestamp,
		Data:      event.Data,
	}
}

// handleStream provides an SSE stream of session events. An optional
// session_id query param narrows the stream to one session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sessionFilter := r.URL.Query().Get("session_id")

	events := s.hub.subscribe()
	defer s.hub.unsubscribe(events)

	ctx := r.Context()
	sendSSE(w, flusher, StreamEvent{
		Type:      "connected",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"session_id": sessionFilter},
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sendSSE(w, flusher, StreamEvent{Type: "heartbeat", Timestamp: time.Now().UTC()}) {
				return
			}
		case event := <-events:
			if sessionFilter != "" && event.SessionID != sessionFilter {
				continue
			}
			if !sendSSE(w, flusher, streamEventFrom(event)) {
				return
			}
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, event StreamEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket provides the same event stream over a websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Warn(logging.CategoryAPI, "ws_upgrade_failed", "", err.Error(), nil)
		return
	}
	defer conn.Close()

	sessionFilter := r.URL.Query().Get("session_id")

	events := s.hub.subscribe()
	defer s.hub.unsubscribe(events)

	// Reader loop: clients send nothing meaningful, but reading is required
	// to process control frames and notice closure.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(StreamEvent{
		Type:      "connected",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"session_id": sessionFilter, "protocol": "websocket"},
	}); err != nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case event := <-events:
			if sessionFilter != "" && event.SessionID != sessionFilter {
				continue
			}
			if err := conn.WriteJSON(streamEventFrom(event)); err != nil {
				return
			}
		}
	}
}
