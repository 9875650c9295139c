// Package protocol holds the JSON types of the form API and WebSocket.
// It is importable by clients without pulling in server dependencies.
package protocol

import "time"

// WriteRequest is the body of POST /api/v1/write.
type WriteRequest struct {
	// Message is the text written as a single NDEF Text record
	Message *string `json:"message"`
}

// StartResponse answers the session start endpoints. A successful response
// only means the session began; the result arrives as an outcome event.
type StartResponse struct {
	Success   bool   `json:"success"`
	Operation string `json:"operation,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// TagMessageResponse is returned by GET /api/v1/tag-message.
type TagMessageResponse struct {
	TagMessage string `json:"tagMessage"`
	Active     bool   `json:"active"`
	Operation  string `json:"operation"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// DeeplinkResponse is returned by GET /open.
type DeeplinkResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Action  string `json:"action,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TagMessagePayload is pushed when a read publishes a new tag message.
type TagMessagePayload struct {
	TagMessage string `json:"tagMessage"`
}

// OutcomePayload is pushed when a session ends.
type OutcomePayload struct {
	SessionID string    `json:"sessionId"`
	Operation string    `json:"operation"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Value     string    `json:"value,omitempty"`
	TagUID    string    `json:"tagUid,omitempty"`
	Time      time.Time `json:"time"`
}

// Error codes for StartResponse and WebSocket errors
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeReaderUnavailable = "READER_UNAVAILABLE"
	ErrCodeUnavailable       = "UNAVAILABLE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnknownType       = "UNKNOWN_TYPE"
	ErrCodeParseError        = "PARSE_ERROR"
)
