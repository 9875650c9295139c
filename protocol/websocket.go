package protocol

// WebSocket request types sent by clients
const (
	WSTypeRead          = "read"
	WSTypeWrite         = "write"
	WSTypeWriteURL      = "writeURL"
	WSTypeWriteDeeplink = "writeDeeplink"
)

// WebSocket types pushed by the server
const (
	WSTypeTagMessage = "tagMessage"
	WSTypeOutcome    = "outcome"
	WSTypeResponse   = "response"
	WSTypeError      = "error"
)

// WebSocketMessage is the envelope for pushed events.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is an incoming client request.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse answers a WebSocketRequest with the same ID.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
