// Package server serves the read/write form over HTTP, pushes session
// events over a WebSocket, and advertises itself over mDNS.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/deeplink"
	"github.com/nedpals/davi-nfc-writer/protocol"
	"github.com/nedpals/davi-nfc-writer/session"
)

// Controller is the session controller the form drives.
// *session.Controller implements it.
type Controller interface {
	StartReading() error
	StartWriting(message string) error
	StartWritingURL() error
	StartWritingDeeplink() error
	TagMessage() string
	Active() bool
	Operation() session.Operation
	Subscribe(fn func(session.Event)) func()
}

// TLSConfig enables HTTPS with certificates from a certificate source.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	// CACert returns the PEM of the issuing CA, served at /ca.pem. Optional.
	CACert func() ([]byte, error)
}

// Config holds the server configuration
type Config struct {
	Controller Controller
	Deeplinks  *deeplink.Handler
	Port       int
	MDNS       bool
	TLS        *TLSConfig
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	httpServer *http.Server
	mux        *http.ServeMux
	listener   net.Listener

	clients         *ClientManager
	handlerRegistry *HandlerRegistry
	upgrader        websocket.Upgrader

	unsubscribe func()
	mdnsServer  *zeroconf.Server
	mu          sync.Mutex
}

// New creates a server. Routes are ready immediately; Start begins listening.
func New(config Config) *Server {
	s := &Server{
		config:          config,
		clients:         NewClientManager(),
		handlerRegistry: NewHandlerRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}

	NewSessionHandler(config.Controller).Register(s)
	s.mux = s.routes()
	return s
}

// Handle implements HandlerServer.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// Handler returns the HTTP handler with every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(APIPrefix+"/health", enableCORS(methods(s.handleHealthCheck, http.MethodGet)))
	mux.HandleFunc(APIPrefix+"/tag-message", enableCORS(methods(s.handleTagMessage, http.MethodGet)))
	mux.HandleFunc(APIPrefix+"/read", enableCORS(methods(s.handleRead, http.MethodPost)))
	mux.HandleFunc(APIPrefix+"/write", enableCORS(methods(s.handleWrite, http.MethodPost)))
	mux.HandleFunc(APIPrefix+"/write-url", enableCORS(methods(s.handleWriteURL, http.MethodPost)))
	mux.HandleFunc(APIPrefix+"/write-deeplink", enableCORS(methods(s.handleWriteDeeplink, http.MethodPost)))
	mux.HandleFunc("/open", enableCORS(methods(s.handleOpen, http.MethodGet)))
	mux.HandleFunc("/ws", enableCORS(s.handleWebSocket))

	if s.config.TLS != nil && s.config.TLS.CACert != nil {
		mux.HandleFunc("/ca.pem", s.handleCACert)
	}

	mux.Handle("/", formHandler())
	return mux
}

// Start listens on the configured port, subscribes to controller events
// and registers mDNS. It blocks until ctx is done, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	unsubscribe := s.config.Controller.Subscribe(s.broadcastEvent)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	scheme := "http"
	if s.config.TLS != nil {
		scheme = "https"
	}
	logrus.WithField("addr", ln.Addr().String()).Infof("Serving form on %s://%s", scheme, ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS != nil {
			err = httpServer.ServeTLS(ln, s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.config.MDNS {
		if err := s.startMDNS(); err != nil {
			logrus.WithError(err).Warn("Failed to start mDNS service, auto-discovery disabled")
		}
	}

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err, ok := <-errCh:
		s.Stop()
		if ok {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		logrus.Info("mDNS service stopped")
	}
	s.clients.CloseAll()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Server shutdown error")
		}
		s.httpServer = nil
	}
}

// startMDNS registers the form as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	port := s.config.Port
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	txtRecords := []string{
		"version=1.0",
		"protocol=websocket",
		"path=/ws",
		"form=/",
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	logrus.WithFields(logrus.Fields{"service": MDNSServiceType, "port": port}).Info("mDNS service registered")
	return nil
}

// broadcastEvent runs on the controller's UI queue.
func (s *Server) broadcastEvent(ev session.Event) {
	switch ev.Type {
	case session.EventTagMessage:
		s.clients.Broadcast(protocol.WebSocketMessage{
			Type:    protocol.WSTypeTagMessage,
			Payload: protocol.TagMessagePayload{TagMessage: ev.TagMessage},
		})
	case session.EventOutcome:
		if ev.Outcome == nil {
			return
		}
		s.clients.Broadcast(protocol.WebSocketMessage{
			Type:    protocol.WSTypeOutcome,
			Payload: outcomePayload(ev.Outcome),
		})
	}
}

func outcomePayload(o *session.Outcome) protocol.OutcomePayload {
	return protocol.OutcomePayload{
		SessionID: o.SessionID,
		Operation: o.Operation,
		Success:   o.Success,
		Message:   o.Message,
		Value:     o.Value,
		TagUID:    o.TagUID,
		Time:      o.Time,
	}
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// methods rejects requests whose method is not listed.
func methods(next http.HandlerFunc, allowed ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range allowed {
			if r.Method == m {
				next(w, r)
				return
			}
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
