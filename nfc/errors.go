package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeTagRemoved
	ErrCodeReadFailed
	ErrCodeWriteFailed
	ErrCodeTagNotConnected
	ErrCodeReadOnly
	ErrCodeCapacityExceeded
	ErrCodeInvalidData
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "ReadData", "QueryNDEFStatus")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

// Is matches any *NFCError carrying the same code.
func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels usable with errors.Is.
var (
	ErrNotSupported     = &NFCError{Code: ErrCodeNotSupported, Message: "operation not supported"}
	ErrTagRemoved       = &NFCError{Code: ErrCodeTagRemoved, Message: "tag removed during operation"}
	ErrTagNotConnected  = &NFCError{Code: ErrCodeTagNotConnected, Message: "tag not connected"}
	ErrReadOnly         = &NFCError{Code: ErrCodeReadOnly, Message: "tag is read-only"}
	ErrCapacityExceeded = &NFCError{Code: ErrCodeCapacityExceeded, Message: "NDEF message exceeds tag capacity"}
	ErrInvalidData      = &NFCError{Code: ErrCodeInvalidData, Message: "invalid data"}
)

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewTagRemovedError creates an error for when a tag is removed mid-operation.
func NewTagRemovedError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagRemoved,
		Op:      op,
		Message: "tag removed during operation",
		Cause:   cause,
	}
}

// NewReadError creates an error for read failures.
func NewReadError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewWriteError creates an error for write failures.
func NewWriteError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeWriteFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "write failed",
		Cause:   cause,
	}
}

// NewNotConnectedError is returned by tag operations issued before Connect.
func NewNotConnectedError(op, tagUID string) *NFCError {
	return &NFCError{
		Code:    ErrCodeTagNotConnected,
		Op:      op,
		TagUID:  tagUID,
		Message: "tag not connected",
	}
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsTagRemovedError checks if an error indicates the tag was removed.
func IsTagRemovedError(err error) bool {
	if err == nil {
		return false
	}
	if GetErrorCode(err) == ErrCodeTagRemoved {
		return true
	}
	// libnfc reports a lost target through plain error strings
	errStr := err.Error()
	return strings.Contains(errStr, "tag removed") ||
		strings.Contains(errStr, "tag lost") ||
		strings.Contains(errStr, "Target was removed") ||
		strings.Contains(errStr, "RF Transmission Error")
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
