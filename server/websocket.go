package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/protocol"
)

// Client is one WebSocket connection. Writes are serialized so handler
// responses and broadcasts can share the connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{ID: uuid.NewString(), conn: conn}
}

// WriteJSON sends v as a text frame.
func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SendResponse answers the request with the given id.
func (c *Client) SendResponse(requestID, responseType string, payload any) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    responseType,
		Success: true,
		Payload: payload,
	})
}

// SendError sends a structured error response.
func (c *Client) SendError(requestID, errorCode, message string) error {
	return c.WriteJSON(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{"code": errorCode},
	})
}

// ClientManager manages WebSocket client connections and broadcasting.
type ClientManager struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewClientManager creates a new ClientManager instance.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[*Client]bool),
	}
}

// Register adds a new client connection.
func (cm *ClientManager) Register(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[c] = true
}

// Unregister removes a client connection.
func (cm *ClientManager) Unregister(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, c)
}

// Count returns the number of connected clients.
func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CloseAll closes all client connections.
func (cm *ClientManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for client := range cm.clients {
		client.Close()
		delete(cm.clients, client)
	}
}

// Broadcast sends a message to all connected clients, dropping the ones
// that fail.
func (cm *ClientManager) Broadcast(message protocol.WebSocketMessage) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for client := range cm.clients {
		if err := client.WriteJSON(message); err != nil {
			logrus.WithError(err).WithField("client", client.ID).Debug("WebSocket write error")
			client.Close()
			delete(cm.clients, client)
		}
	}
}

// handleWebSocket upgrades the connection, sends the current tag message,
// and dispatches client requests through the handler registry.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("WebSocket upgrade error")
		return
	}

	client := newClient(conn)
	log := logrus.WithFields(logrus.Fields{"client": client.ID, "remote": r.RemoteAddr})
	log.Info("WebSocket connected")

	s.clients.Register(client)
	defer func() {
		s.clients.Unregister(client)
		client.Close()
		log.Info("WebSocket disconnected")
	}()

	client.WriteJSON(protocol.WebSocketMessage{
		Type:    protocol.WSTypeTagMessage,
		Payload: protocol.TagMessagePayload{TagMessage: s.config.Controller.TagMessage()},
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			log.WithError(err).Debug("Failed to parse WebSocket message")
			client.SendError("", protocol.ErrCodeParseError, "Invalid message format")
			continue
		}

		handler, ok := s.handlerRegistry.Get(req.Type)
		if !ok {
			client.SendError(req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}

		if err := handler(r.Context(), client, req); err != nil {
			// Handlers send their own error responses
			log.WithError(err).WithField("type", req.Type).Debug("Handler error")
		}
	}
}
