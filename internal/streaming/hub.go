// Package streaming is the in-process pub/sub channel between conversation
// sessions and their observers (SSE clients, snapshot writers).
package streaming

import "context"

// Event types published by conversation sessions.
const (
	EventMessage      = "message"       // a transcript entry was appended
	EventStateChanged = "state_changed" // the session moved between states
	EventRestarted    = "restarted"     // generation bumped, transcript cleared
	EventClosed       = "closed"        // the session was discarded
)

// StreamEvent is a real-time event emitted during a conversation.
type StreamEvent struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for live conversation events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
