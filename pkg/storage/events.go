package storage

import "time"

// EventType represents the type of storage event emitted.
type EventType string

// Storage event type constants.
const (
	EventSessionCreated EventType = "session.created"
	EventSessionUpdated EventType = "session.updated"
	EventSessionDeleted EventType = "session.deleted"
)

// Event represents a change inside the storage layer that other subsystems
// can react to, e.g. the API's live update streams.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives storage events.
type Observer interface {
	HandleStorageEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// HandleStorageEvent calls the wrapped function.
func (f ObserverFunc) HandleStorageEvent(event Event) {
	f(event)
}

func newEvent(eventType EventType, sessionID string, data any) Event {
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
