package session

import "time"

// EventType identifies what changed in an Event.
type EventType string

const (
	EventTagMessage EventType = "tagMessage"
	EventOutcome    EventType = "outcome"
)

// Outcome describes how a session ended.
type Outcome struct {
	SessionID string    `json:"sessionId"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	// Value is the text read, or the value written.
	Value     string    `json:"value,omitempty"`
	TagUID    string    `json:"tagUid,omitempty"`
	Time      time.Time `json:"time"`
}

// Event is published to subscribers on the UI queue.
type Event struct {
	Type       EventType `json:"type"`
	TagMessage string    `json:"tagMessage,omitempty"`
	Outcome    *Outcome  `json:"outcome,omitempty"`
}
