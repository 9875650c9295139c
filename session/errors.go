package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionInvalidated is returned by operations on a session that has ended.
	ErrSessionInvalidated = errors.New("session invalidated")
	// ErrTagNotConnected is returned by tag operations before a successful Connect.
	ErrTagNotConnected = errors.New("tag not connected to session")
	// ErrReadingUnavailable means no reader could be opened to start a session.
	ErrReadingUnavailable = errors.New("NFC reading unavailable")
	// ErrControllerClosed is returned by Start calls after Close.
	ErrControllerClosed = errors.New("controller closed")
)

// InvalidationReason says why a reader session ended.
type InvalidationReason int

const (
	// ReasonUserCanceled covers every invalidation requested by the app.
	ReasonUserCanceled InvalidationReason = iota + 200
	// ReasonTimeout means no tag finished within the session timeout.
	ReasonTimeout
	// ReasonDeviceError means the reader failed while polling.
	ReasonDeviceError
)

func (r InvalidationReason) String() string {
	switch r {
	case ReasonUserCanceled:
		return "user-canceled"
	case ReasonTimeout:
		return "timeout"
	case ReasonDeviceError:
		return "device-error"
	default:
		return "unknown"
	}
}

// InvalidationError is delivered to the delegate when a session ends.
// Message is the alert or error text shown to the user.
type InvalidationError struct {
	Reason  InvalidationReason
	Message string
	Cause   error
}

func (e *InvalidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "session invalidated"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", msg, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Reason)
}

func (e *InvalidationError) Unwrap() error {
	return e.Cause
}

// Is makes every InvalidationError match ErrSessionInvalidated.
func (e *InvalidationError) Is(target error) bool {
	return target == ErrSessionInvalidated
}
