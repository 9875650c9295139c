package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/dispatch"
	"github.com/nedpals/davi-nfc-writer/nfc"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
)

// DeviceSource hands out the reader a session polls. nfc.DeviceManager
// implements it. Lock and Unlock bracket every device and tag operation,
// across all sessions sharing the reader.
type DeviceSource interface {
	sync.Locker
	Acquire() (nfc.Device, error)
	Reset(cause error)
}

// Options tune a reader session.
type Options struct {
	PollInterval time.Duration
	// Timeout ends the session when it is still running. Zero disables it.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// ReaderSession is one tag discovery attempt on a reader. It polls the
// device after Begin, reports the first tags found to its delegate, and
// keeps the connection to one tag until it is invalidated.
type ReaderSession struct {
	id       string
	source   DeviceSource
	delegate ReaderSessionDelegate
	queue    *dispatch.Queue
	opts     Options

	mu          sync.Mutex
	begun       bool
	invalidated bool
	alert       string
	connected   *Tag
	timer       *time.Timer

	stop chan struct{}
	done chan struct{}
}

// NewReaderSession creates a session. Delegate callbacks run on queue.
func NewReaderSession(source DeviceSource, delegate ReaderSessionDelegate, queue *dispatch.Queue, opts Options) *ReaderSession {
	return &ReaderSession{
		id:       uuid.NewString(),
		source:   source,
		delegate: delegate,
		queue:    queue,
		opts:     opts.withDefaults(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *ReaderSession) ID() string {
	return s.id
}

// Done is closed after the invalidation callback has run.
func (s *ReaderSession) Done() <-chan struct{} {
	return s.done
}

// IsInvalidated reports whether the session has ended.
func (s *ReaderSession) IsInvalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

// IsReady reports whether the session has begun and is still running.
func (s *ReaderSession) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begun && !s.invalidated
}

// AlertMessage returns the message currently shown for this session.
func (s *ReaderSession) AlertMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alert
}

// SetAlertMessage updates the message shown for this session. It becomes
// the message of a later Invalidate.
func (s *ReaderSession) SetAlertMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = msg
}

// Begin starts polling for tags. Calling it again, or after
// invalidation, does nothing.
func (s *ReaderSession) Begin() {
	s.mu.Lock()
	if s.begun || s.invalidated {
		s.mu.Unlock()
		return
	}
	s.begun = true
	if s.opts.Timeout > 0 {
		s.timer = time.AfterFunc(s.opts.Timeout, func() {
			s.invalidate(&InvalidationError{Reason: ReasonTimeout, Message: "Session timeout"})
		})
	}
	s.mu.Unlock()

	s.log().Debug("Reader session started")
	s.deliver(func() {
		s.delegate.ReaderSessionDidBecomeActive(s)
	})
	go s.poll()
}

// Invalidate ends the session showing the current alert message.
func (s *ReaderSession) Invalidate() {
	s.invalidate(&InvalidationError{Reason: ReasonUserCanceled, Message: s.AlertMessage()})
}

// InvalidateWithError ends the session showing msg as an error.
func (s *ReaderSession) InvalidateWithError(msg string) {
	s.mu.Lock()
	if !s.invalidated {
		s.alert = msg
	}
	s.mu.Unlock()
	s.invalidate(&InvalidationError{Reason: ReasonUserCanceled, Message: msg})
}

// Connect connects to one of the tags this session detected. Only one
// tag can be connected at a time. cb runs on the session queue.
func (s *ReaderSession) Connect(tag *Tag, cb func(error)) {
	go func() {
		err := s.connect(tag)
		s.deliver(func() { cb(err) })
	}()
}

func (s *ReaderSession) connect(tag *Tag) error {
	if tag == nil || tag.session != s {
		return ErrTagNotConnected
	}

	s.source.Lock()
	defer s.source.Unlock()

	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return ErrSessionInvalidated
	}
	if s.connected == tag {
		s.mu.Unlock()
		return nil
	}
	previous := s.connected
	s.connected = nil
	s.mu.Unlock()

	if previous != nil {
		previous.tag.Disconnect()
	}
	if err := tag.tag.Connect(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		tag.tag.Disconnect()
		return ErrSessionInvalidated
	}
	s.connected = tag
	s.mu.Unlock()

	s.log().WithField("uid", tag.UID()).Debug("Connected to tag")
	return nil
}

// withTag runs fn under the device lease if tag is still the connected
// tag of a live session.
func (s *ReaderSession) withTag(tag *Tag, fn func() error) error {
	s.source.Lock()
	defer s.source.Unlock()
	if err := s.isConnected(tag); err != nil {
		return err
	}
	return fn()
}

func (s *ReaderSession) isConnected(tag *Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return ErrSessionInvalidated
	}
	if s.connected != tag {
		return ErrTagNotConnected
	}
	return nil
}

func (s *ReaderSession) poll() {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if s.pollOnce() {
			return
		}
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// pollOnce checks the field once and reports whether polling should stop.
func (s *ReaderSession) pollOnce() bool {
	if s.IsInvalidated() {
		return true
	}

	tags, failure := s.scan()
	if failure != nil {
		s.invalidate(failure)
		return true
	}
	if len(tags) == 0 {
		return s.IsInvalidated()
	}

	handles := make([]*Tag, len(tags))
	for i, t := range tags {
		handles[i] = &Tag{session: s, tag: t}
	}

	s.log().WithField("count", len(handles)).Debug("Tags detected")
	s.deliver(func() {
		if s.IsInvalidated() {
			return
		}
		s.delegate.ReaderSessionDidDetect(s, handles)
	})
	return true
}

// scan polls the reader once under the device lease.
func (s *ReaderSession) scan() ([]nfc.Tag, *InvalidationError) {
	s.source.Lock()
	defer s.source.Unlock()

	// Superseded while waiting for the lease.
	if s.IsInvalidated() {
		return nil, nil
	}

	device, err := s.source.Acquire()
	if err != nil {
		return nil, &InvalidationError{Reason: ReasonDeviceError, Message: "NFC reader unavailable", Cause: err}
	}

	tags, err := device.GetTags()
	if err != nil {
		s.source.Reset(err)
		return nil, &InvalidationError{Reason: ReasonDeviceError, Message: "NFC reader error", Cause: err}
	}
	return tags, nil
}

// invalidate ends the session. It returns once no operation of this
// session is using the reader, so a following session starts on an idle
// device.
func (s *ReaderSession) invalidate(reason *InvalidationError) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		return
	}
	s.invalidated = true
	close(s.stop)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.source.Lock()
	s.mu.Lock()
	connected := s.connected
	s.connected = nil
	s.mu.Unlock()
	if connected != nil {
		if err := connected.tag.Disconnect(); err != nil {
			s.log().WithError(err).Debug("Error disconnecting tag")
		}
	}
	s.source.Unlock()

	s.log().WithFields(logrus.Fields{
		"reason":  reason.Reason.String(),
		"message": reason.Message,
	}).Debug("Reader session invalidated")

	if !s.queue.Async(func() {
		defer close(s.done)
		s.delegate.ReaderSessionDidInvalidate(s, reason)
	}) {
		close(s.done)
	}
}

// deliver runs fn on the session queue.
func (s *ReaderSession) deliver(fn func()) {
	s.queue.Async(fn)
}

func (s *ReaderSession) log() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"component": "reader-session",
		"session":   s.id,
	})
}
