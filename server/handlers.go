package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/buildinfo"
	"github.com/nedpals/davi-nfc-writer/protocol"
	"github.com/nedpals/davi-nfc-writer/session"
)

// maxBodySize caps request bodies; a Text record on a Type 2 tag is far smaller.
const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write JSON response")
	}
}

// startError maps a controller start error to an HTTP status and error code.
func startError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrReadingUnavailable):
		return http.StatusServiceUnavailable, protocol.ErrCodeReaderUnavailable
	case errors.Is(err, session.ErrControllerClosed):
		return http.StatusServiceUnavailable, protocol.ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, protocol.ErrCodeInternalError
	}
}

func (s *Server) respondStart(w http.ResponseWriter, op session.Operation, err error) {
	if err != nil {
		status, code := startError(err)
		logrus.WithError(err).WithField("operation", op.String()).Warn("Failed to start NFC session")
		writeJSON(w, status, protocol.StartResponse{
			Success:   false,
			Operation: op.String(),
			Error:     err.Error(),
			ErrorCode: code,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, protocol.StartResponse{Success: true, Operation: op.String()})
}

// handleRead starts a read session (POST /api/v1/read)
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	s.respondStart(w, session.OperationRead, s.config.Controller.StartReading())
}

// handleWrite starts a text write session (POST /api/v1/write)
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req protocol.WriteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.StartResponse{
			Operation: session.OperationWriteText.String(),
			Error:     "Invalid JSON: " + err.Error(),
			ErrorCode: protocol.ErrCodeInvalidRequest,
		})
		return
	}
	if req.Message == nil {
		writeJSON(w, http.StatusBadRequest, protocol.StartResponse{
			Operation: session.OperationWriteText.String(),
			Error:     "message is required",
			ErrorCode: protocol.ErrCodeInvalidRequest,
		})
		return
	}
	s.respondStart(w, session.OperationWriteText, s.config.Controller.StartWriting(*req.Message))
}

// handleWriteURL starts a URL write session (POST /api/v1/write-url)
func (s *Server) handleWriteURL(w http.ResponseWriter, r *http.Request) {
	s.respondStart(w, session.OperationWriteURL, s.config.Controller.StartWritingURL())
}

// handleWriteDeeplink starts a deeplink write session (POST /api/v1/write-deeplink)
func (s *Server) handleWriteDeeplink(w http.ResponseWriter, r *http.Request) {
	s.respondStart(w, session.OperationWriteDeeplink, s.config.Controller.StartWritingDeeplink())
}

// handleTagMessage returns the published tag message (GET /api/v1/tag-message)
func (s *Server) handleTagMessage(w http.ResponseWriter, r *http.Request) {
	c := s.config.Controller
	writeJSON(w, http.StatusOK, protocol.TagMessageResponse{
		TagMessage: c.TagMessage(),
		Active:     c.Active(),
		Operation:  c.Operation().String(),
	})
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:    "ok",
		Version:   buildinfo.FullVersion(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// handleOpen forwards an app link to the deeplink handler (GET /open?url=...)
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if s.config.Deeplinks == nil {
		writeJSON(w, http.StatusNotFound, protocol.DeeplinkResponse{Error: "deeplinks are not enabled"})
		return
	}
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, protocol.DeeplinkResponse{Error: "url is required"})
		return
	}

	link, err := s.config.Deeplinks.Handle(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.DeeplinkResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, protocol.DeeplinkResponse{
		Success: true,
		URL:     link.String(),
		Action:  link.Action,
	})
}

// handleCACert serves the CA certificate so LAN clients can trust the form.
func (s *Server) handleCACert(w http.ResponseWriter, r *http.Request) {
	caCert, err := s.config.TLS.CACert()
	if err != nil {
		http.Error(w, "CA certificate not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", "attachment; filename=\"davi-nfc-writer-ca.pem\"")
	w.Write(caCert)
	logrus.WithField("remote", r.RemoteAddr).Info("CA certificate downloaded")
}
