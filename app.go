package main

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/certs"
	"github.com/nedpals/davi-nfc-writer/config"
	"github.com/nedpals/davi-nfc-writer/deeplink"
	"github.com/nedpals/davi-nfc-writer/dispatch"
	"github.com/nedpals/davi-nfc-writer/nfc"
	"github.com/nedpals/davi-nfc-writer/server"
	"github.com/nedpals/davi-nfc-writer/session"
)

// App wires the reader, the session controller and the form server.
type App struct {
	Config     *config.Config
	Devices    *nfc.DeviceManager
	Controller *session.Controller
	Deeplinks  *deeplink.Handler

	sessionQueue *dispatch.Queue
	uiQueue      *dispatch.Queue
	certs        *certs.Store
}

// NewApp builds the application around manager. Nothing touches the reader
// until the first session starts.
func NewApp(cfg *config.Config, manager nfc.Manager) *App {
	devices := nfc.NewDeviceManager(manager, cfg.Device)
	sessionQueue := dispatch.NewQueue("session")
	uiQueue := dispatch.NewQueue("ui")

	starter := session.NewDeviceStarter(devices, sessionQueue, cfg.SessionOptions())
	controller := session.NewController(starter, uiQueue, cfg.ControllerConfig())

	links := deeplink.NewHandler(cfg.Deeplink.Scheme)
	links.OnLink(func(l deeplink.Link) {
		logrus.WithFields(logrus.Fields{"action": l.Action, "url": l.String()}).Info("Deeplink received")
	})

	return &App{
		Config:       cfg,
		Devices:      devices,
		Controller:   controller,
		Deeplinks:    links,
		sessionQueue: sessionQueue,
		uiQueue:      uiQueue,
		certs:        certs.NewStore(cfg.ResolvedCertsDir()),
	}
}

// ServerConfig builds the form server configuration, issuing a certificate
// first when HTTPS is enabled.
func (a *App) ServerConfig() (server.Config, error) {
	sc := server.Config{
		Controller: a.Controller,
		Deeplinks:  a.Deeplinks,
		Port:       a.Config.Server.Port,
		MDNS:       a.Config.Server.MDNS,
	}
	if !a.Config.Server.TLS {
		return sc, nil
	}

	certFile, keyFile, err := a.certs.Ensure()
	if err != nil {
		return sc, fmt.Errorf("prepare TLS certificate: %w", err)
	}
	sc.TLS = &server.TLSConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
		CACert:   a.certs.ReadCACert,
	}
	return sc, nil
}

// Serve runs the form server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	sc, err := a.ServerConfig()
	if err != nil {
		return err
	}
	return server.New(sc).Start(ctx)
}

// FormURL is the address a browser on this machine uses to reach the form.
func (a *App) FormURL() string {
	scheme := "http"
	if a.Config.Server.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d/", scheme, a.Config.Server.Port)
}

// LANFormURL is the form address for other devices on the network, falling
// back to FormURL when no LAN address is found.
func (a *App) LANFormURL() string {
	ips, err := certs.LANAddresses()
	if err != nil || len(ips) == 0 {
		return a.FormURL()
	}
	scheme := "http"
	if a.Config.Server.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(ips[0], fmt.Sprint(a.Config.Server.Port)))
}

// RunOnce starts one session and waits for its outcome.
func (a *App) RunOnce(ctx context.Context, op session.Operation, message string) (*session.Outcome, error) {
	outcomes := make(chan *session.Outcome, 1)
	unsubscribe := a.Controller.Subscribe(func(ev session.Event) {
		if ev.Type != session.EventOutcome || ev.Outcome == nil {
			return
		}
		select {
		case outcomes <- ev.Outcome:
		default:
		}
	})
	defer unsubscribe()

	if err := a.Controller.Start(op, message); err != nil {
		return nil, err
	}

	select {
	case o := <-outcomes:
		return o, nil
	case <-ctx.Done():
		a.Controller.Close()
		return nil, ctx.Err()
	}
}

// Close stops the active session and releases the reader.
func (a *App) Close() {
	a.Controller.Close()
	a.sessionQueue.Close()
	a.uiQueue.Close()
	if err := a.Devices.Close(); err != nil {
		logrus.WithError(err).Debug("Error closing NFC device")
	}
}
