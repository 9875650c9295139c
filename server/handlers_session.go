package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/protocol"
	"github.com/nedpals/davi-nfc-writer/session"
)

// SessionHandler serves the WebSocket requests that start NFC sessions.
type SessionHandler struct {
	controller Controller
}

// NewSessionHandler creates a handler for controller.
func NewSessionHandler(controller Controller) *SessionHandler {
	return &SessionHandler{controller: controller}
}

// Register implements ServerHandler.
func (h *SessionHandler) Register(server HandlerServer) {
	server.Handle(protocol.WSTypeRead, h.handleRead)
	server.Handle(protocol.WSTypeWrite, h.handleWrite)
	server.Handle(protocol.WSTypeWriteURL, h.handleWriteURL)
	server.Handle(protocol.WSTypeWriteDeeplink, h.handleWriteDeeplink)
}

func (h *SessionHandler) handleRead(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return h.respond(client, req, session.OperationRead, h.controller.StartReading())
}

func (h *SessionHandler) handleWrite(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	raw, ok := req.Payload["message"]
	if !ok {
		client.SendError(req.ID, protocol.ErrCodeInvalidRequest, "message is required")
		return fmt.Errorf("write request without message")
	}
	message, ok := raw.(string)
	if !ok {
		client.SendError(req.ID, protocol.ErrCodeInvalidRequest, "message must be a string")
		return fmt.Errorf("write request message is %T", raw)
	}
	return h.respond(client, req, session.OperationWriteText, h.controller.StartWriting(message))
}

func (h *SessionHandler) handleWriteURL(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return h.respond(client, req, session.OperationWriteURL, h.controller.StartWritingURL())
}

func (h *SessionHandler) handleWriteDeeplink(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return h.respond(client, req, session.OperationWriteDeeplink, h.controller.StartWritingDeeplink())
}

func (h *SessionHandler) respond(client *Client, req protocol.WebSocketRequest, op session.Operation, err error) error {
	if err != nil {
		_, code := startError(err)
		client.SendError(req.ID, code, err.Error())
		return err
	}
	logrus.WithFields(logrus.Fields{"client": client.ID, "operation": op.String()}).Debug("Session started over WebSocket")
	return client.SendResponse(req.ID, protocol.WSTypeResponse, protocol.StartResponse{
		Success:   true,
		Operation: op.String(),
	})
}
