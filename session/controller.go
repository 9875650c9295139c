package session

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/dispatch"
	"github.com/nedpals/davi-nfc-writer/nfc"
)

const (
	DefaultWriteURL    = "https://javios.eu/portfolio/"
	DefaultDeeplinkURL = "nfcreader://jca.nfcreader.open"

	promptMessage = "Hold a tag near the reader"
)

// Config holds the fixed values used by the write operations.
type Config struct {
	WriteURL    string
	DeeplinkURL string
	Language    string
}

func (c Config) withDefaults() Config {
	if c.WriteURL == "" {
		c.WriteURL = DefaultWriteURL
	}
	if c.DeeplinkURL == "" {
		c.DeeplinkURL = DefaultDeeplinkURL
	}
	if c.Language == "" {
		c.Language = nfc.DefaultLanguage
	}
	return c
}

// run is the state tied to one reader session.
type run struct {
	session   *ReaderSession
	operation Operation
	message   string
	tagUID    string
	finished  bool
	// superseded runs publish nothing more.
	superseded bool
}

// Controller owns at most one reader session at a time and drives it
// through connect, NDEF status check, read or write, and invalidation.
// Published state (the tag message and events) changes only on the UI queue.
type Controller struct {
	starter Starter
	ui      *dispatch.Queue
	cfg     Config

	mu          sync.Mutex
	current     *run
	operation   Operation
	tagMessage  string
	closed      bool
	subscribers map[int]func(Event)
	nextSubID   int
}

var _ ReaderSessionDelegate = (*Controller)(nil)

// NewController creates a controller. ui is the queue published state is
// mutated and observed on.
func NewController(starter Starter, ui *dispatch.Queue, cfg Config) *Controller {
	return &Controller{
		starter:     starter,
		ui:          ui,
		cfg:         cfg.withDefaults(),
		subscribers: make(map[int]func(Event)),
	}
}

// StartReading begins a session that reads the first record of a tag.
func (c *Controller) StartReading() error {
	return c.start(OperationRead, "")
}

// StartWriting begins a session that writes message as a Text record.
func (c *Controller) StartWriting(message string) error {
	return c.start(OperationWriteText, message)
}

// StartWritingURL begins a session that writes the configured URL.
func (c *Controller) StartWritingURL() error {
	return c.start(OperationWriteURL, "")
}

// StartWritingDeeplink begins a session that writes the configured deeplink.
func (c *Controller) StartWritingDeeplink() error {
	return c.start(OperationWriteDeeplink, "")
}

// Start begins a session for op. message is only used by OperationWriteText.
func (c *Controller) Start(op Operation, message string) error {
	return c.start(op, message)
}

func (c *Controller) start(op Operation, message string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	previous := c.current
	c.mu.Unlock()

	// The previous session releases the reader before the new one opens it.
	if previous != nil {
		c.supersede(previous)
	}

	session, err := c.starter.NewSession(c)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.Invalidate()
		return ErrControllerClosed
	}
	// A concurrent start may have installed its own run meanwhile.
	previous = c.current
	c.current = &run{session: session, operation: op, message: message}
	c.operation = op
	c.mu.Unlock()

	if previous != nil {
		c.supersede(previous)
	}

	c.logRun(session.ID(), op).Info("Starting NFC session")
	session.SetAlertMessage(promptMessage)
	session.Begin()
	return nil
}

// TagMessage returns the last message read from a tag.
func (c *Controller) TagMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tagMessage
}

// Operation returns the mode of the latest session.
func (c *Controller) Operation() Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operation
}

// Active reports whether a session is in flight.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Subscribe registers fn for events. fn runs on the UI queue. The returned
// function removes the subscription.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Close invalidates the active session and refuses new ones.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	current := c.current
	c.mu.Unlock()

	if current != nil {
		current.session.Invalidate()
	}
}

// supersede drops r's pending results and ends its session. It returns
// once r no longer uses the reader.
func (c *Controller) supersede(r *run) {
	c.mu.Lock()
	already := r.superseded
	r.superseded = true
	c.mu.Unlock()

	if !already {
		logrus.WithField("session", r.session.ID()).Info("Superseding active NFC session")
	}
	r.session.Invalidate()
}

func (c *Controller) runFor(session *ReaderSession) *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.session != session || c.current.superseded {
		return nil
	}
	return c.current
}

// release forgets the run of session once it has ended.
func (c *Controller) release(session *ReaderSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.session == session {
		c.current = nil
	}
}

// ReaderSessionDidBecomeActive implements ReaderSessionDelegate.
func (c *Controller) ReaderSessionDidBecomeActive(session *ReaderSession) {
	logrus.WithField("session", session.ID()).Debug("NFC session active")
}

// ReaderSessionDidDetect implements ReaderSessionDelegate.
func (c *Controller) ReaderSessionDidDetect(session *ReaderSession, tags []*Tag) {
	r := c.runFor(session)
	if r == nil || len(tags) == 0 {
		return
	}
	tag := tags[0]

	c.mu.Lock()
	r.tagUID = tag.UID()
	c.mu.Unlock()

	session.Connect(tag, func(err error) {
		if err != nil {
			c.fail(r, fmt.Sprintf("Connection error: %v", err))
			return
		}

		tag.QueryNDEFStatus(func(status nfc.NDEFStatus, capacity int, err error) {
			if err != nil {
				c.logRun(session.ID(), r.operation).WithError(err).Warn("NDEF status query failed")
				c.fail(r, "Error checking NDEF status")
				return
			}

			switch status {
			case nfc.NDEFStatusNotSupported:
				c.fail(r, "Tag is not NDEF compatible")
			case nfc.NDEFStatusReadOnly:
				c.fail(r, "Tag is read-only")
			case nfc.NDEFStatusReadWrite:
				c.handleReadWrite(r, tag)
			default:
				c.fail(r, "Unknown NDEF status")
			}
		})
	})
}

func (c *Controller) handleReadWrite(r *run, tag *Tag) {
	switch r.operation {
	case OperationRead:
		c.read(r, tag)
	case OperationWriteText:
		if r.message == "" {
			c.fail(r, "No message to write")
			return
		}
		c.write(r, tag, nfc.NewTextRecord(r.message, c.cfg.Language), r.message)
	case OperationWriteURL:
		c.writeURL(r, tag, c.cfg.WriteURL)
	case OperationWriteDeeplink:
		c.writeURL(r, tag, c.cfg.DeeplinkURL)
	default:
		c.fail(r, "Unknown operation")
	}
}

func (c *Controller) read(r *run, tag *Tag) {
	tag.ReadNDEF(func(msg *nfc.NDEFMessage, err error) {
		if err != nil {
			c.fail(r, fmt.Sprintf("Reading error: %v", err))
			return
		}
		record, ok := msg.First()
		if !ok {
			c.fail(r, "No records found")
			return
		}

		tagMessage := record.PayloadString()
		if c.succeed(r, "Reading succeeded: "+tagMessage, tagMessage) {
			c.logRun(r.session.ID(), r.operation).WithField("message", tagMessage).Info("Read tag message")
			c.publishTagMessage(tagMessage)
		}
	})
}

func (c *Controller) writeURL(r *run, tag *Tag, raw string) {
	u, err := parseAbsoluteURL(raw)
	if err != nil {
		c.logRun(r.session.ID(), r.operation).WithError(err).Warn("Invalid URL for NDEF payload")
		c.fail(r, "Could not create the NDEF payload")
		return
	}
	value := u.String()
	c.write(r, tag, nfc.NewURIRecord(value), value)
}

func (c *Controller) write(r *run, tag *Tag, record nfc.NDEFRecord, value string) {
	tag.WriteNDEF(nfc.NewNDEFMessage(record), func(err error) {
		if err != nil {
			c.fail(r, fmt.Sprintf("Writing error: %v", err))
			return
		}
		if c.succeed(r, "Writing succeeded", value) {
			c.logRun(r.session.ID(), r.operation).WithField("value", value).Info("Wrote tag")
		}
	})
}

// succeed shows msg and ends the session. It reports false if r no longer
// owns the controller.
func (c *Controller) succeed(r *run, msg, value string) bool {
	if !c.finish(r, true, msg, value) {
		return false
	}
	r.session.SetAlertMessage(msg)
	r.session.Invalidate()
	return true
}

// fail ends the session with msg as the error.
func (c *Controller) fail(r *run, msg string) {
	if !c.finish(r, false, msg, "") {
		return
	}
	c.logRun(r.session.ID(), r.operation).WithField("error", msg).Warn("NFC session failed")
	r.session.InvalidateWithError(msg)
}

// finish records the outcome of r once. It reports false when r has
// already finished or was superseded.
func (c *Controller) finish(r *run, success bool, msg, value string) bool {
	c.mu.Lock()
	if r.finished || r.superseded || c.current != r {
		c.mu.Unlock()
		return false
	}
	r.finished = true
	outcome := &Outcome{
		SessionID: r.session.ID(),
		Operation: r.operation.String(),
		Success:   success,
		Message:   msg,
		Value:     value,
		TagUID:    r.tagUID,
		Time:      time.Now(),
	}
	c.mu.Unlock()

	c.publish(Event{Type: EventOutcome, Outcome: outcome})
	return true
}

// ReaderSessionDidInvalidate implements ReaderSessionDelegate.
func (c *Controller) ReaderSessionDidInvalidate(session *ReaderSession, err *InvalidationError) {
	r := c.runFor(session)
	if r == nil {
		logrus.WithField("session", session.ID()).Debug("Superseded NFC session ended")
		c.release(session)
		return
	}
	c.logRun(session.ID(), r.operation).WithField("reason", err.Reason.String()).Infof("Session ended: %s", err.Message)

	// Timeouts and reader errors have not recorded an outcome yet.
	c.finish(r, false, err.Message, "")
	c.release(session)
}

func (c *Controller) publishTagMessage(msg string) {
	c.ui.Async(func() {
		c.mu.Lock()
		c.tagMessage = msg
		c.mu.Unlock()
		c.notify(Event{Type: EventTagMessage, TagMessage: msg})
	})
}

func (c *Controller) publish(ev Event) {
	c.ui.Async(func() {
		c.notify(ev)
	})
}

// notify runs on the UI queue.
func (c *Controller) notify(ev Event) {
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (c *Controller) logRun(sessionID string, op Operation) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": "controller",
		"session":   sessionID,
		"operation": op.String(),
	})
}

// parseAbsoluteURL accepts URLs with a scheme and either a host or an
// opaque part ("tel:123").
func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q has no scheme", raw)
	}
	if u.Host == "" && u.Opaque == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}
